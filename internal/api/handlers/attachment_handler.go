package handlers

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/attachmentfx/internal/api/response"
	apperrors "github.com/welldanyogia/attachmentfx/internal/errors"
	"github.com/welldanyogia/attachmentfx/internal/models"
)

// AttachmentFinder looks up attachments and their stored files
type AttachmentFinder interface {
	Find(ctx context.Context, id uint) (*models.Attachment, error)
	FullFilename(ctx context.Context, a *models.Attachment, variant string) (string, error)
}

// AttachmentHandler handles attachment-related HTTP requests
type AttachmentHandler struct {
	attachments AttachmentFinder
}

// NewAttachmentHandler creates a new AttachmentHandler
func NewAttachmentHandler(attachments AttachmentFinder) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// Get handles GET /api/attachments/:id
func (h *AttachmentHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return response.Error(c, err)
	}

	a, err := h.attachments.Find(c.Request().Context(), id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return response.NotFound(c, "attachment not found")
		}
		return response.InternalError(c, "failed to get attachment")
	}

	return response.Success(c, a)
}

// Download handles GET /api/attachments/:id/download. The optional variant
// query parameter selects a thumbnail. Files kept in the database are
// written to disk before being served.
func (h *AttachmentHandler) Download(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c, "id")
	if err != nil {
		return response.Error(c, err)
	}
	a, err := h.attachments.Find(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return response.NotFound(c, "attachment not found")
		}
		return response.InternalError(c, "failed to get attachment")
	}

	variant := c.QueryParam("variant")
	path, err := h.attachments.FullFilename(ctx, a, variant)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return response.NotFound(c, fmt.Sprintf("variant %q not found", variant))
		}
		return response.InternalError(c, "failed to retrieve file")
	}

	filename := a.Filename
	if variant != "" {
		filename = a.ThumbnailName(variant)
	} else if a.ContentType != "" {
		c.Response().Header().Set(echo.HeaderContentType, a.ContentType)
	}
	return c.Attachment(path, filename)
}
