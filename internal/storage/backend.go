package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/welldanyogia/attachmentfx/internal/errors"
	"github.com/welldanyogia/attachmentfx/internal/models"
)

// Backend names
const (
	FileSystem = "file_system"
	DBFile     = "db_file"
)

// Backend stores the data of one attachment. Paths are relative to the
// application root, e.g. "public/files/0000/0001/photo.jpg".
type Backend interface {
	Name() string
	// Store persists data for attachment a at filePath.
	Store(ctx context.Context, a *models.Attachment, filePath string, data []byte) error
	// FullFilename returns the absolute path of the stored file, downloading it
	// first when the backend keeps data elsewhere.
	FullFilename(ctx context.Context, a *models.Attachment, filePath string) (string, error)
	// Read returns the stored data.
	Read(ctx context.Context, a *models.Attachment, filePath string) ([]byte, error)
	// Remove deletes the stored data.
	Remove(ctx context.Context, a *models.Attachment, filePath string) error
}

// DBFileStore persists file blobs; it is implemented by the repository layer
type DBFileStore interface {
	Create(ctx context.Context, file *models.DBFile) error
	GetByID(ctx context.Context, id uint) (*models.DBFile, error)
	Delete(ctx context.Context, id uint) error
}

// fileSystemBackend keeps attachment data on disk below the application root
type fileSystemBackend struct {
	files FileStorage
}

// NewFileSystemBackend creates a Backend writing straight to files
func NewFileSystemBackend(files FileStorage) Backend {
	return &fileSystemBackend{files: files}
}

func (b *fileSystemBackend) Name() string { return FileSystem }

func (b *fileSystemBackend) Store(_ context.Context, _ *models.Attachment, filePath string, data []byte) error {
	if _, err := b.files.Save(filePath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}
	return nil
}

func (b *fileSystemBackend) FullFilename(_ context.Context, _ *models.Attachment, filePath string) (string, error) {
	return b.files.FullPath(filePath)
}

func (b *fileSystemBackend) Read(_ context.Context, _ *models.Attachment, filePath string) ([]byte, error) {
	return readAll(b.files, filePath)
}

func (b *fileSystemBackend) Remove(_ context.Context, _ *models.Attachment, filePath string) error {
	return b.files.Delete(filePath)
}

// dbFileBackend keeps attachment data in the db_files table and downloads it
// to the file system on demand, so it can be served like any public file.
// Concurrent downloads of one path share a single blob read.
type dbFileBackend struct {
	files     FileStorage
	blobs     DBFileStore
	downloads singleflight.Group
}

// NewDBFileBackend creates a Backend storing blobs in the database
func NewDBFileBackend(files FileStorage, blobs DBFileStore) Backend {
	return &dbFileBackend{files: files, blobs: blobs}
}

func (b *dbFileBackend) Name() string { return DBFile }

func (b *dbFileBackend) Store(ctx context.Context, a *models.Attachment, filePath string, data []byte) error {
	blob := &models.DBFile{Data: data}
	if err := b.blobs.Create(ctx, blob); err != nil {
		return fmt.Errorf("failed to store db file: %w", err)
	}
	if a.DBFileID != nil {
		if err := b.blobs.Delete(ctx, *a.DBFileID); err != nil && !apperrors.IsNotFound(err) {
			return fmt.Errorf("failed to replace db file: %w", err)
		}
	}
	a.DBFileID = &blob.ID

	// drop a stale download of the previous data
	return b.files.Delete(filePath)
}

func (b *dbFileBackend) FullFilename(ctx context.Context, a *models.Attachment, filePath string) (string, error) {
	if b.files.Exists(filePath) {
		return b.files.FullPath(filePath)
	}

	v, err, _ := b.downloads.Do(filePath, func() (any, error) {
		data, err := b.Read(ctx, a, filePath)
		if err != nil {
			return "", err
		}
		fullPath, err := b.files.Save(filePath, bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("failed to download db file: %w", err)
		}
		return fullPath, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (b *dbFileBackend) Read(ctx context.Context, a *models.Attachment, _ string) ([]byte, error) {
	if a.DBFileID == nil {
		return nil, apperrors.ErrFileNotFound
	}
	blob, err := b.blobs.GetByID(ctx, *a.DBFileID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to load db file: %w", err)
	}
	return blob.Data, nil
}

func (b *dbFileBackend) Remove(ctx context.Context, a *models.Attachment, filePath string) error {
	if a.DBFileID != nil {
		if err := b.blobs.Delete(ctx, *a.DBFileID); err != nil && !apperrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete db file: %w", err)
		}
		a.DBFileID = nil
	}
	// downloads of every variant share one directory
	return b.files.DeleteDir(filepath.Dir(filePath))
}

func readAll(files FileStorage, filePath string) ([]byte, error) {
	rc, err := files.Get(filePath)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, apperrors.ErrFileNotFound
		}
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// New returns the backend registered under name
func New(name string, files FileStorage, blobs DBFileStore) (Backend, error) {
	switch name {
	case "", FileSystem:
		return NewFileSystemBackend(files), nil
	case DBFile:
		if blobs == nil {
			return nil, fmt.Errorf("%w: db_file storage needs a db file store", apperrors.ErrConfiguration)
		}
		return NewDBFileBackend(files, blobs), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage %q", apperrors.ErrConfiguration, name)
	}
}
