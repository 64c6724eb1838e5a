// Package attachment stores uploaded files as attachment records.
//
// An attachment row holds the metadata of one file; the data itself lives in
// a storage backend. Originals may own thumbnail variants, stored as child
// rows of the thumbnail kind. Save and Destroy notify registered hooks so
// owners can keep derived state in sync.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/welldanyogia/attachmentfx/internal/database"
	apperrors "github.com/welldanyogia/attachmentfx/internal/errors"
	"github.com/welldanyogia/attachmentfx/internal/imaging"
	"github.com/welldanyogia/attachmentfx/internal/logger"
	"github.com/welldanyogia/attachmentfx/internal/mimetypes"
	"github.com/welldanyogia/attachmentfx/internal/models"
	"github.com/welldanyogia/attachmentfx/internal/repository"
	"github.com/welldanyogia/attachmentfx/internal/storage"
	"github.com/welldanyogia/attachmentfx/internal/validator"
)

// Hook is notified after an original attachment was saved or destroyed.
type Hook interface {
	AttachmentSaved(ctx context.Context, a *models.Attachment) error
	AttachmentDestroyed(ctx context.Context, a *models.Attachment) error
}

// UploadedData is file content waiting to be attached.
type UploadedData struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Size returns the number of bytes uploaded.
func (u *UploadedData) Size() int64 {
	return int64(len(u.Data))
}

// OwnerRef identifies the owner row of an attachment.
type OwnerRef struct {
	Type string
	ID   uint
}

// SaveOptions control a single Save call.
type SaveOptions struct {
	// SkipValidation persists without running constraint checks. Resizing
	// and thumbnail generation still run.
	SkipValidation bool
}

// Config wires a Service.
type Config struct {
	DB         *gorm.DB
	Registry   *Registry
	Repository repository.AttachmentRepository
	Files      storage.FileStorage
	Blobs      storage.DBFileStore // required by db_file kinds
	Resolver   *mimetypes.Resolver
	AppRoot    string
	PublicPath string
	Logger     *logger.EventLogger
}

// Service manages attachment records and their files.
type Service struct {
	db       *gorm.DB
	registry *Registry
	repo     repository.AttachmentRepository
	files    storage.FileStorage
	backends map[string]storage.Backend
	resolver *mimetypes.Resolver
	root     string
	public   string
	log      *logger.EventLogger
	hooks    []Hook
}

// NewService creates a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.DB == nil || cfg.Registry == nil || cfg.Repository == nil || cfg.Files == nil {
		return nil, fmt.Errorf("%w: attachment service needs a database, registry, repository and file storage", apperrors.ErrConfiguration)
	}

	root, err := filepath.Abs(cfg.AppRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid app root: %w", err)
	}
	public := cfg.PublicPath
	if public == "" {
		public = filepath.Join(root, "public")
	}
	public, err = filepath.Abs(public)
	if err != nil {
		return nil, fmt.Errorf("invalid public path: %w", err)
	}

	backends := map[string]storage.Backend{
		storage.FileSystem: storage.NewFileSystemBackend(cfg.Files),
	}
	if cfg.Blobs != nil {
		backends[storage.DBFile] = storage.NewDBFileBackend(cfg.Files, cfg.Blobs)
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = mimetypes.NewResolver()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewEventLogger(nil)
	}

	return &Service{
		db:       cfg.DB,
		registry: cfg.Registry,
		repo:     cfg.Repository,
		files:    cfg.Files,
		backends: backends,
		resolver: resolver,
		root:     root,
		public:   public,
		log:      log,
	}, nil
}

// Registry returns the kind registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// PublicRoot returns the absolute public directory.
func (s *Service) PublicRoot() string {
	return s.public
}

// AddHook registers h for save and destroy notifications.
func (s *Service) AddHook(h Hook) {
	s.hooks = append(s.hooks, h)
}

// Kind returns the kind of a.
func (s *Service) Kind(a *models.Attachment) (*Kind, error) {
	k, ok := s.registry.Lookup(a.Type)
	if !ok {
		return nil, apperrors.NewConfigError(a.Type, "", "unknown attachment kind")
	}
	return k, nil
}

// CheckStorage reports a ConfigError when k or its thumbnail kind uses a
// storage this service has no backend for.
func (s *Service) CheckStorage(k *Kind) error {
	if _, err := s.backend(k); err != nil {
		return err
	}
	if k.Thumbnailable() {
		if _, err := s.backend(s.registry.ThumbnailKind(k)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) backend(k *Kind) (storage.Backend, error) {
	b, ok := s.backends[k.Options.Storage]
	if !ok {
		return nil, apperrors.NewConfigError(k.Name, "", "storage %q is not configured", k.Options.Storage)
	}
	return b, nil
}

// ==================== Building ====================

// FileAsUploadedData reads the file at path. An empty contentType is
// resolved from the filename, then from the content.
func (s *Service) FileAsUploadedData(path, contentType string) (*UploadedData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if contentType == "" {
		contentType, err = s.resolver.ContentTypeFor(path, data)
		if err != nil {
			return nil, err
		}
	}
	return &UploadedData{
		Filename:    filepath.Base(path),
		ContentType: mimetypes.Normalize(contentType),
		Data:        data,
	}, nil
}

// NewFromFile builds an unsaved attachment of kind from the file at path.
func (s *Service) NewFromFile(kind, path string) (*models.Attachment, error) {
	data, err := s.FileAsUploadedData(path, "")
	if err != nil {
		return nil, err
	}
	return s.Build(kind, data)
}

// Build creates an unsaved attachment of kind holding data. A content type
// that cannot be resolved is left empty for validation to report.
func (s *Service) Build(kind string, data *UploadedData) (*models.Attachment, error) {
	k, ok := s.registry.Lookup(kind)
	if !ok {
		return nil, apperrors.NewConfigError(kind, "", "unknown attachment kind")
	}

	a := &models.Attachment{Type: k.Name}
	if data == nil {
		return a, nil
	}

	a.Filename = validator.SanitizeFilename(data.Filename)
	a.Data = data.Data
	a.Size = data.Size()
	a.ContentType = mimetypes.Normalize(data.ContentType)
	if a.ContentType == "" {
		if ct, err := s.resolver.ContentTypeFor(a.Filename, data.Data); err == nil {
			a.ContentType = ct
		}
	}
	if mimetypes.IsImage(a.ContentType) {
		if w, h, _, err := imaging.Dimensions(a.Data); err == nil {
			a.Width, a.Height = w, h
		}
	}
	return a, nil
}

// BuildAttachment destroys old, if any, and builds an unsaved replacement
// owned by owner.
func (s *Service) BuildAttachment(ctx context.Context, owner OwnerRef, kind string, data *UploadedData, old *models.Attachment) (*models.Attachment, error) {
	if old != nil && !old.IsNew() {
		if err := s.Destroy(ctx, old); err != nil {
			return nil, err
		}
	}
	a, err := s.Build(kind, data)
	if err != nil {
		return nil, err
	}
	setOwner(a, owner)
	return a, nil
}

// CreateAttachment saves a new attachment owned by owner and destroys old once
// the replacement has an id. An invalid replacement is returned unsaved with
// its errors and old is kept.
func (s *Service) CreateAttachment(ctx context.Context, owner OwnerRef, kind string, data *UploadedData, old *models.Attachment, opts SaveOptions) (*models.Attachment, error) {
	a, err := s.Build(kind, data)
	if err != nil {
		return nil, err
	}
	setOwner(a, owner)

	err = database.Transaction(ctx, s.db, func(ctx context.Context) error {
		ok, err := s.Save(ctx, a, opts)
		if err != nil || !ok {
			return err
		}
		if old != nil && !old.IsNew() && old.ID != a.ID {
			return s.Destroy(ctx, old)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func setOwner(a *models.Attachment, owner OwnerRef) {
	id := owner.ID
	a.OwnerType = owner.Type
	a.OwnerID = &id
}

// ==================== Validation ====================

// Validate checks a against its kind and leaves the errors on a.Errors.
func (s *Service) Validate(a *models.Attachment) bool {
	a.Errors.Clear()

	k, err := s.Kind(a)
	if err != nil {
		a.Errors.Add("type", "is not a known attachment kind")
		return false
	}

	if a.IsNew() && a.Data == nil {
		a.Errors.Add("size", "can't be blank")
	}
	if a.ContentType == "" {
		a.Errors.Add("content_type", "can't be blank")
	}
	if a.Filename == "" {
		a.Errors.Add("filename", "can't be blank")
	} else if err := storage.ValidateFile(a.Filename); err != nil {
		a.Errors.Add("filename", "has a blocked extension")
	}

	opts := k.Options
	sizeOK := a.Size >= opts.MinSize && a.Size <= opts.MaxSize
	contentTypeOK := a.ContentType == "" || contentTypeAllowed(k.ContentTypes(), a.ContentType)

	if field := opts.ReportErrorsOn; field != "" {
		if !sizeOK {
			a.Errors.Add(field, "file_size_invalid")
		}
		if !contentTypeOK {
			a.Errors.Add(field, "file_content_type_invalid")
		}
	} else {
		if !sizeOK {
			a.Errors.Add("size", "is not included in the list")
		}
		if !contentTypeOK {
			a.Errors.Add("content_type", "is not included in the list")
		}
	}

	return a.Errors.Empty()
}

func contentTypeAllowed(allowed []string, contentType string) bool {
	if len(allowed) == 0 {
		return true
	}
	ct := mimetypes.Normalize(contentType)
	for _, t := range allowed {
		if t == ct {
			return true
		}
	}
	return false
}

// ==================== Persistence ====================

// Save validates and persists a, stores pending data and renders thumbnails.
// It returns false, leaving errors on a, when validation fails.
func (s *Service) Save(ctx context.Context, a *models.Attachment, opts SaveOptions) (bool, error) {
	k, err := s.Kind(a)
	if err != nil {
		return false, err
	}
	if !opts.SkipValidation && !s.Validate(a) {
		return false, nil
	}

	err = database.Transaction(ctx, s.db, func(ctx context.Context) error {
		return s.persist(ctx, k, a)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) persist(ctx context.Context, k *Kind, a *models.Attachment) error {
	original := a.Data
	s.process(k, a)

	if a.IsNew() {
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
	} else if err := s.repo.Update(ctx, a); err != nil {
		return err
	}

	if a.Data != nil {
		if err := s.storeData(ctx, k, a); err != nil {
			return err
		}
		if !a.IsThumbnail() && k.Thumbnailable() {
			if err := s.createThumbnails(ctx, k, a, original); err != nil {
				return err
			}
		}
		a.Data = nil
	}

	if a.IsThumbnail() {
		return nil
	}
	for _, h := range s.hooks {
		if err := h.AttachmentSaved(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// process applies the kind's resize geometry to pending image data
func (s *Service) process(k *Kind, a *models.Attachment) {
	if a.Data == nil || !mimetypes.IsImage(a.ContentType) {
		return
	}
	if k.resize == nil || a.IsThumbnail() {
		if w, h, _, err := imaging.Dimensions(a.Data); err == nil {
			a.Width, a.Height = w, h
		}
		return
	}

	res, err := imaging.Resize(a.Data, *k.resize)
	if err != nil {
		s.log.Debug("image left unprocessed", "kind", k.Name, "filename", a.Filename, "error", err.Error())
		return
	}
	a.Data = res.Data
	a.Size = int64(len(res.Data))
	a.Width, a.Height = res.Width, res.Height
}

func (s *Service) storeData(ctx context.Context, k *Kind, a *models.Attachment) error {
	b, err := s.backend(k)
	if err != nil {
		return err
	}

	path := s.relativePath(k, a)
	fresh := !s.files.Exists(path)
	blobID := a.DBFileID
	if err := b.Store(ctx, a, path, a.Data); err != nil {
		return err
	}
	if fresh {
		stored := *a
		database.OnRollback(ctx, func(ctx context.Context) {
			s.removeData(ctx, b, &stored, path)
		})
	}
	if a.DBFileID != blobID {
		return s.repo.Update(ctx, a)
	}
	return nil
}

// removeData deletes the stored data of a and logs failures
func (s *Service) removeData(ctx context.Context, b storage.Backend, a *models.Attachment, path string) {
	if err := b.Remove(ctx, a, path); err != nil {
		s.log.FileCleanupFailed(path, err)
	}
}

func (s *Service) createThumbnails(ctx context.Context, k *Kind, a *models.Attachment, data []byte) error {
	tk := s.registry.ThumbnailKind(k)
	for _, variant := range k.ThumbnailVariants() {
		res, err := imaging.Resize(data, k.thumbnails[variant])
		if err != nil {
			s.log.Debug("thumbnail skipped", "kind", k.Name, "variant", variant, "error", err.Error())
			continue
		}

		existing, err := s.repo.FindThumbnail(ctx, a.ID, variant)
		switch {
		case err == nil:
			if err := s.destroy(ctx, existing, relativePath(tk.Options.PathPrefix, a.ID, a.ThumbnailName(variant))); err != nil {
				return err
			}
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		parentID := a.ID
		thumb := &models.Attachment{
			Type:        tk.Name,
			ParentID:    &parentID,
			Thumbnail:   variant,
			Filename:    a.ThumbnailName(variant),
			ContentType: a.ContentType,
			Size:        int64(len(res.Data)),
			Width:       res.Width,
			Height:      res.Height,
			Data:        res.Data,
		}
		if err := s.persist(ctx, tk, thumb); err != nil {
			return fmt.Errorf("failed to create thumbnail %q: %w", variant, err)
		}
	}
	return nil
}

// Destroy removes a, its thumbnails and their stored data.
func (s *Service) Destroy(ctx context.Context, a *models.Attachment) error {
	if a.IsNew() {
		return nil
	}
	return database.Transaction(ctx, s.db, func(ctx context.Context) error {
		return s.destroy(ctx, a, "")
	})
}

// destroy deletes the rows of a and its thumbnails. Their stored data is
// removed once the transaction commits, except for a file at rewritten,
// which the same transaction has just stored again.
func (s *Service) destroy(ctx context.Context, a *models.Attachment, rewritten string) error {
	k, err := s.Kind(a)
	if err != nil {
		return err
	}

	if !a.IsThumbnail() {
		thumbs, err := s.repo.ListThumbnails(ctx, a.ID)
		if err != nil {
			return err
		}
		for i := range thumbs {
			if err := s.destroy(ctx, &thumbs[i], ""); err != nil {
				return err
			}
		}
	}

	if err := s.repo.Delete(ctx, a.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	path := s.relativePath(k, a)
	if b, err := s.backend(k); err != nil {
		s.log.FileCleanupFailed(path, err)
	} else if path != rewritten || b.Name() != storage.FileSystem {
		removed := *a
		database.AfterCommit(ctx, func(ctx context.Context) {
			s.removeData(ctx, b, &removed, path)
		})
	}

	if a.IsThumbnail() {
		return nil
	}
	for _, h := range s.hooks {
		if err := h.AttachmentDestroyed(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Detach clears the owner reference of a and keeps its files.
func (s *Service) Detach(ctx context.Context, a *models.Attachment) error {
	if a.IsNew() {
		return nil
	}
	a.OwnerID = nil
	a.OwnerType = ""
	return s.repo.Update(ctx, a)
}

// ==================== Lookups ====================

// Find retrieves an attachment by id.
func (s *Service) Find(ctx context.Context, id uint) (*models.Attachment, error) {
	return s.repo.GetByID(ctx, id)
}

// FindByOwner retrieves the attachment of kind, or a descendant kind, that
// belongs to owner.
func (s *Service) FindByOwner(ctx context.Context, kind string, owner OwnerRef) (*models.Attachment, error) {
	return s.repo.FindByOwner(ctx, owner.Type, owner.ID, s.registry.Descendants(kind))
}

// FindThumbnail retrieves the variant rendition of a.
func (s *Service) FindThumbnail(ctx context.Context, a *models.Attachment, variant string) (*models.Attachment, error) {
	if a.IsNew() {
		return nil, apperrors.ErrThumbnailNotFound
	}
	thumb, err := s.repo.FindThumbnail(ctx, a.ID, variant)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q of attachment %d", apperrors.ErrThumbnailNotFound, variant, a.ID)
		}
		return nil, err
	}
	return thumb, nil
}

// HasThumbnail reports whether a has a variant rendition.
func (s *Service) HasThumbnail(ctx context.Context, a *models.Attachment, variant string) (bool, error) {
	_, err := s.FindThumbnail(ctx, a, variant)
	if errors.Is(err, apperrors.ErrThumbnailNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Thumbnails lists every rendition of a.
func (s *Service) Thumbnails(ctx context.Context, a *models.Attachment) ([]models.Attachment, error) {
	if a.IsNew() {
		return nil, nil
	}
	return s.repo.ListThumbnails(ctx, a.ID)
}

// Count counts the original attachments of kind and its descendants.
func (s *Service) Count(ctx context.Context, kind string) (int64, error) {
	if _, ok := s.registry.Lookup(kind); !ok {
		return 0, apperrors.NewConfigError(kind, "", "unknown attachment kind")
	}
	return s.repo.CountByKinds(ctx, s.registry.Descendants(kind))
}

// ==================== Paths ====================

// relativePath returns the path of a's own file below the application root
func (s *Service) relativePath(k *Kind, a *models.Attachment) string {
	return relativePath(k.Options.PathPrefix, a.PathID(), a.Filename)
}

// variantPath returns the kind and relative path used for a variant of a
func (s *Service) variantPath(k *Kind, a *models.Attachment, variant string) (*Kind, string, error) {
	if variant == "" {
		return k, s.relativePath(k, a), nil
	}
	if _, ok := k.thumbnails[variant]; !ok {
		return nil, "", fmt.Errorf("%w: %q is not a variant of %s", apperrors.ErrThumbnailNotFound, variant, k.Name)
	}
	tk := s.registry.ThumbnailKind(k)
	return tk, relativePath(tk.Options.PathPrefix, a.ID, a.ThumbnailName(variant)), nil
}

// FullFilename returns the absolute path of a's file or of its variant. Data
// kept in the database is downloaded first.
func (s *Service) FullFilename(ctx context.Context, a *models.Attachment, variant string) (string, error) {
	if a.IsNew() {
		return "", apperrors.ErrNotYetSaved
	}
	k, err := s.Kind(a)
	if err != nil {
		return "", err
	}
	vk, rel, err := s.variantPath(k, a, variant)
	if err != nil {
		return "", err
	}

	b, err := s.backend(vk)
	if err != nil {
		return "", err
	}

	// file system paths are computed; db files are downloaded per row
	target := a
	if variant != "" && vk.Options.Storage == storage.DBFile {
		if target, err = s.FindThumbnail(ctx, a, variant); err != nil {
			return "", err
		}
	}
	return b.FullFilename(ctx, target, rel)
}

// PublicFilename returns the path of a's file, or of its variant, relative to
// the public root, e.g. "/attachment_files/0000/0001/photo.jpg".
func (s *Service) PublicFilename(ctx context.Context, a *models.Attachment, variant string) (string, error) {
	full, err := s.FullFilename(ctx, a, variant)
	if err != nil {
		return "", err
	}
	return publicPath(s.public, full), nil
}

// ExpandPublicPath turns a public path back into an absolute file path.
// Paths outside the public root are already absolute and returned as is.
func (s *Service) ExpandPublicPath(publicFilename string) string {
	if strings.HasPrefix(publicFilename, s.root+string(filepath.Separator)) {
		return publicFilename
	}
	return filepath.Join(s.public, filepath.FromSlash(publicFilename))
}
