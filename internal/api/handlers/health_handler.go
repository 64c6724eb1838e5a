package handlers

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/attachmentfx/internal/database"
	"gorm.io/gorm"
)

// HealthHandler handles health check HTTP requests
type HealthHandler struct {
	db         *gorm.DB
	publicRoot string
}

// NewHealthHandler creates a new HealthHandler. publicRoot is the directory
// attachment files are served from.
func NewHealthHandler(db *gorm.DB, publicRoot string) *HealthHandler {
	return &HealthHandler{db: db, publicRoot: publicRoot}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	services := map[string]string{
		"database": "healthy",
		"storage":  "healthy",
	}
	status := "healthy"

	if err := database.Ping(h.db); err != nil {
		services["database"] = "unhealthy"
		status = "unhealthy"
	}
	if info, err := os.Stat(h.publicRoot); err != nil || !info.IsDir() {
		services["storage"] = "unhealthy"
		status = "unhealthy"
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, HealthResponse{
		Status:   status,
		Services: services,
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c echo.Context) error {
	if err := database.Ping(h.db); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
	})
}
