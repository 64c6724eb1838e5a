package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/attachmentfx/internal/api/handlers"
	"github.com/welldanyogia/attachmentfx/internal/api/middleware"
	"github.com/welldanyogia/attachmentfx/internal/models"
	"github.com/welldanyogia/attachmentfx/internal/owner"
	"gorm.io/gorm"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB          *gorm.DB
	Attachments handlers.AttachmentFinder
	Members     *owner.Model[models.Member]
	Logger      *slog.Logger

	// PublicPath is served as static files, attachment paths are relative to it
	PublicPath     string
	MaxUploadSize  int64
	AllowedOrigins []string
	// UploadLimiter throttles member writes per client; nil disables it
	UploadLimiter *middleware.IPRateLimiter
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	if cfg.Logger != nil {
		e.Use(middleware.RequestLogger(cfg.Logger))
	}
	e.Use(middleware.CORS(cfg.AllowedOrigins...))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.PublicPath)
	memberHandler := handlers.NewMemberHandler(cfg.Members)
	attachmentHandler := handlers.NewAttachmentHandler(cfg.Attachments)

	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)

	api := e.Group("/api")

	// Write routes carry uploads
	writes := []echo.MiddlewareFunc{}
	if cfg.MaxUploadSize > 0 {
		writes = append(writes, middleware.BodyLimit(cfg.MaxUploadSize))
	}
	if cfg.UploadLimiter != nil {
		writes = append(writes, middleware.RateLimit(cfg.UploadLimiter, cfg.Logger))
	}

	members := api.Group("/members")
	members.POST("", memberHandler.Create, writes...)
	members.GET("/:id", memberHandler.Get)
	members.PUT("/:id", memberHandler.Update, writes...)
	members.DELETE("/:id", memberHandler.Delete)
	members.DELETE("/:id/photo", memberHandler.DeletePhoto)
	members.POST("/:id/path-cache/refresh", memberHandler.RefreshPathCache)
	members.DELETE("/:id/path-cache", memberHandler.ExpirePathCache)

	attachments := api.Group("/attachments")
	attachments.GET("/:id", attachmentHandler.Get)
	attachments.GET("/:id/download", attachmentHandler.Download)

	// Cached attachment paths point below the public root
	if cfg.PublicPath != "" {
		e.Static("/", cfg.PublicPath)
	}

	return e
}
