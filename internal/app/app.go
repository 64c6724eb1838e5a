// Package app wires configuration, storage, the attachment service and the
// owner models into a runnable HTTP application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/welldanyogia/attachmentfx/internal/api"
	"github.com/welldanyogia/attachmentfx/internal/api/handlers"
	"github.com/welldanyogia/attachmentfx/internal/api/middleware"
	"github.com/welldanyogia/attachmentfx/internal/attachment"
	"github.com/welldanyogia/attachmentfx/internal/config"
	"github.com/welldanyogia/attachmentfx/internal/logger"
	"github.com/welldanyogia/attachmentfx/internal/mimetypes"
	"github.com/welldanyogia/attachmentfx/internal/models"
	"github.com/welldanyogia/attachmentfx/internal/owner"
	"github.com/welldanyogia/attachmentfx/internal/repository"
	"github.com/welldanyogia/attachmentfx/internal/storage"
)

// Attachment kinds used by the bundled member model
const (
	PhotoKind          = "Photo"
	PhotoThumbnailSize = "64x64>"
	PhotoResize        = "1024x1024>"
)

// ShutdownTimeout bounds graceful shutdown
const ShutdownTimeout = 10 * time.Second

// App is a wired application.
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Attachments *attachment.Service
	Owners      *owner.Manager
	Members     *owner.Model[models.Member]
	Echo        *echo.Echo

	limiter *middleware.IPRateLimiter
}

// DefineKinds declares the attachment kinds of the bundled owner models.
func DefineKinds(registry *attachment.Registry, cfg *config.Config) error {
	_, err := registry.Define(PhotoKind, attachment.Options{
		ContentTypes: []string{mimetypes.ImageToken},
		MaxSize:      cfg.MaxUploadSize,
		ResizeTo:     PhotoResize,
		Thumbnails:   map[string]string{handlers.MemberPhotoThumbnail: PhotoThumbnailSize},
	})
	return err
}

// New wires an App on an open, migrated database.
func New(cfg *config.Config, db *gorm.DB, log *slog.Logger) (*App, error) {
	events := logger.NewEventLogger(log)

	if err := os.MkdirAll(cfg.PublicPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create public directory: %w", err)
	}
	files, err := storage.NewLocalStorage(cfg.AppRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}

	registry := attachment.NewRegistry(attachment.Options{
		Storage:    cfg.AttachmentStorage,
		PathPrefix: cfg.AttachmentPathPrefix,
	}, events)
	if err := DefineKinds(registry, cfg); err != nil {
		return nil, err
	}

	attachments, err := attachment.NewService(attachment.Config{
		DB:         db,
		Registry:   registry,
		Repository: repository.NewAttachmentRepository(db),
		Files:      files,
		Blobs:      repository.NewDBFileRepository(db),
		Resolver:   mimetypes.NewResolver(),
		AppRoot:    cfg.AppRoot,
		PublicPath: cfg.PublicPath,
		Logger:     events,
	})
	if err != nil {
		return nil, err
	}

	owners, err := owner.NewManager(db, attachments, owner.CacheOptions{
		Enabled:         cfg.PathCacheEnabled,
		Column:          cfg.PathCacheColumn,
		PartitionByHost: cfg.PathCachePartitionByHost,
		HostID:          cfg.PathCacheHostID,
		NilPath:         cfg.NilPath,
	}, events)
	if err != nil {
		return nil, err
	}

	members, err := owner.NewModel[models.Member](owners,
		owner.HasAttachmentFile(handlers.MemberPhotoSlot),
	)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:      cfg,
		DB:          db,
		Attachments: attachments,
		Owners:      owners,
		Members:     members,
	}
	if cfg.UploadRateLimit > 0 {
		a.limiter = middleware.NewIPRateLimiter(cfg.UploadRateLimit, cfg.UploadRateBurst)
	}

	a.Echo = api.NewRouter(&api.RouterConfig{
		DB:             db,
		Attachments:    attachments,
		Members:        members,
		Logger:         log,
		PublicPath:     attachments.PublicRoot(),
		MaxUploadSize:  cfg.MaxUploadSize,
		AllowedOrigins: cfg.AllowedOrigins,
		UploadLimiter:  a.limiter,
	})
	return a, nil
}

// Run serves HTTP on the configured port until ctx is done, then shuts the
// server down, waiting up to ShutdownTimeout for open requests.
func (a *App) Run(ctx context.Context) error {
	if a.limiter != nil {
		go a.limiter.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Echo.Start(fmt.Sprintf(":%d", a.Config.APIPort))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := a.Echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
