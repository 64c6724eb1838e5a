package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Security errors
var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrFileNotFound  = errors.New("file not found")
	ErrBlockedExt    = errors.New("file extension is blocked")
)

// PublicFileMode is applied to every written file; files live below the
// public root and must be world readable.
const PublicFileMode os.FileMode = 0644

// BlockedExtensions contains file extensions that are not allowed
var BlockedExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true,
	".pif": true, ".scr": true, ".vbs": true, ".js": true,
	".jar": true, ".ps1": true, ".sh": true, ".bash": true,
	".msi": true, ".dll": true, ".sys": true,
}

// FileStorage stores files at caller chosen paths relative to a base directory
type FileStorage interface {
	Save(filePath string, content io.Reader) (string, error)
	Get(filePath string) (io.ReadCloser, error)
	Exists(filePath string) bool
	FullPath(filePath string) (string, error)
	Delete(filePath string) error
	DeleteDir(dirPath string) error
}

// localStorage implements FileStorage using local filesystem
type localStorage struct {
	basePath string
}

// NewLocalStorage creates a new localStorage instance
func NewLocalStorage(basePath string) (FileStorage, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &localStorage{basePath: basePath}, nil
}

// validatePath ensures path is within basePath (prevents traversal)
func (s *localStorage) validatePath(filePath string) (string, error) {
	// Clean the path
	cleanPath := filepath.Clean(filePath)

	// Prevent absolute paths
	if filepath.IsAbs(cleanPath) || filepath.VolumeName(cleanPath) != "" {
		return "", ErrPathTraversal
	}

	// Prevent path traversal
	if strings.Contains(cleanPath, "..") {
		return "", ErrPathTraversal
	}

	fullPath := filepath.Join(s.basePath, cleanPath)

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("invalid file path: %w", err)
	}

	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	// Security check: ensure file is within allowed directory
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) &&
		absPath != absBase {
		return "", ErrPathTraversal
	}

	return absPath, nil
}

// ValidateFile rejects executable file extensions
func ValidateFile(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if BlockedExtensions[ext] {
		return ErrBlockedExt
	}
	return nil
}

// FullPath returns the absolute path for filePath without touching the disk
func (s *localStorage) FullPath(filePath string) (string, error) {
	return s.validatePath(filePath)
}

// Save writes content to filePath and returns the absolute path. The data is
// written to a temporary file first and renamed into place.
func (s *localStorage) Save(filePath string, content io.Reader) (string, error) {
	fullPath, err := s.validatePath(filePath)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := filepath.Join(dir, "."+uuid.New().String()+".tmp")
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, PublicFileMode)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	// umask may have narrowed the mode on create
	if err := os.Chmod(tmpPath, PublicFileMode); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to chmod file: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	return fullPath, nil
}

// Get retrieves a file by its path
func (s *localStorage) Get(filePath string) (io.ReadCloser, error) {
	// Validate path to prevent traversal
	fullPath, err := s.validatePath(filePath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Exists reports whether a regular file is stored at filePath
func (s *localStorage) Exists(filePath string) bool {
	fullPath, err := s.validatePath(filePath)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes a file by its path and prunes its directory when empty
func (s *localStorage) Delete(filePath string) error {
	// Validate path to prevent traversal
	fullPath, err := s.validatePath(filePath)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			// File already doesn't exist, not an error
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	// fails while other variants remain
	_ = os.Remove(filepath.Dir(fullPath))

	return nil
}

// DeleteDir removes a directory and everything below it
func (s *localStorage) DeleteDir(dirPath string) error {
	fullPath, err := s.validatePath(dirPath)
	if err != nil {
		return err
	}

	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return fmt.Errorf("invalid base path: %w", err)
	}
	if fullPath == absBase {
		return ErrPathTraversal
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("failed to delete directory: %w", err)
	}
	return nil
}
