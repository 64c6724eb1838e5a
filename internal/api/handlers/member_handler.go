package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/attachmentfx/internal/api/response"
	"github.com/welldanyogia/attachmentfx/internal/attachment"
	apperrors "github.com/welldanyogia/attachmentfx/internal/errors"
	"github.com/welldanyogia/attachmentfx/internal/models"
	"github.com/welldanyogia/attachmentfx/internal/owner"
	"github.com/welldanyogia/attachmentfx/internal/validator"
)

// Member attachment slot and the thumbnail shown in listings
const (
	MemberPhotoSlot      = "photo"
	MemberPhotoThumbnail = "thumb"

	// MaxMemberNameLength matches the size of the name column
	MaxMemberNameLength = 255
)

// MemberHandler handles member HTTP requests
type MemberHandler struct {
	members *owner.Model[models.Member]
}

// NewMemberHandler creates a new MemberHandler
func NewMemberHandler(members *owner.Model[models.Member]) *MemberHandler {
	return &MemberHandler{members: members}
}

// MemberResponse is a member with its photo paths
type MemberResponse struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	HasPhoto       bool   `json:"has_photo"`
	PhotoPath      string `json:"photo_path"`
	PhotoThumbPath string `json:"photo_thumb_path"`
}

// PathCacheResponse reports whether a refresh wrote the cache
type PathCacheResponse struct {
	Updated bool           `json:"updated"`
	Member  MemberResponse `json:"member"`
}

// Create handles POST /api/members
func (h *MemberHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	attrs, err := memberAttributes(c)
	if err != nil {
		return response.Error(c, err)
	}

	rec := h.members.New(nil)
	if err := rec.AssignAttributes(ctx, attrs); err != nil {
		return response.Error(c, err)
	}
	ok, err := rec.Save(ctx, owner.SaveOptions{})
	if err != nil {
		return response.InternalError(c, "failed to create member")
	}
	if !ok {
		return response.ValidationFailed(c, rec.Errors())
	}

	return response.Created(c, present(ctx, rec))
}

// Get handles GET /api/members/:id
func (h *MemberHandler) Get(c echo.Context) error {
	rec, err := h.find(c)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, present(c.Request().Context(), rec))
}

// Update handles PUT /api/members/:id. Name changes are saved even when the
// new photo is rejected.
func (h *MemberHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	rec, err := h.find(c)
	if err != nil {
		return response.Error(c, err)
	}
	attrs, err := memberAttributes(c)
	if err != nil {
		return response.Error(c, err)
	}
	if err := rec.AssignAttributes(ctx, attrs); err != nil {
		return response.Error(c, err)
	}

	ok, err := rec.Save(ctx, owner.SaveOptions{})
	if err != nil {
		return response.InternalError(c, "failed to update member")
	}
	if !ok {
		return response.ValidationFailed(c, rec.Errors())
	}

	return response.Success(c, present(ctx, rec))
}

// DeletePhoto handles DELETE /api/members/:id/photo
func (h *MemberHandler) DeletePhoto(c echo.Context) error {
	ctx := c.Request().Context()

	rec, err := h.find(c)
	if err != nil {
		return response.Error(c, err)
	}
	if err := rec.DestroyAttachment(ctx, MemberPhotoSlot); err != nil {
		return response.InternalError(c, "failed to delete photo")
	}

	return response.Success(c, present(ctx, rec))
}

// RefreshPathCache handles POST /api/members/:id/path-cache/refresh
func (h *MemberHandler) RefreshPathCache(c echo.Context) error {
	ctx := c.Request().Context()

	rec, err := h.find(c)
	if err != nil {
		return response.Error(c, err)
	}
	updated, err := rec.UpdateAllPathCaches(ctx)
	if err != nil {
		return response.InternalError(c, "failed to refresh path cache")
	}

	return response.Success(c, PathCacheResponse{
		Updated: updated,
		Member:  present(ctx, rec),
	})
}

// ExpirePathCache handles DELETE /api/members/:id/path-cache[?slot=photo]
func (h *MemberHandler) ExpirePathCache(c echo.Context) error {
	ctx := c.Request().Context()

	rec, err := h.find(c)
	if err != nil {
		return response.Error(c, err)
	}

	if slot := c.QueryParam("slot"); slot != "" {
		err = rec.ExpirePathCacheSlot(ctx, slot)
		if errors.Is(err, apperrors.ErrUnknownSlot) {
			return response.BadRequest(c, "unknown attachment slot")
		}
	} else {
		err = rec.ExpirePathCache(ctx)
	}
	if err != nil {
		return response.InternalError(c, "failed to expire path cache")
	}
	return response.NoContent(c)
}

// Delete handles DELETE /api/members/:id
func (h *MemberHandler) Delete(c echo.Context) error {
	rec, err := h.find(c)
	if err != nil {
		return response.Error(c, err)
	}
	if err := rec.Destroy(c.Request().Context()); err != nil {
		return response.InternalError(c, "failed to delete member")
	}
	return response.NoContent(c)
}

func (h *MemberHandler) find(c echo.Context) (*owner.Record[models.Member], error) {
	id, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	return h.members.Find(c.Request().Context(), id)
}

// present reads the photo through the path cache
func present(ctx context.Context, rec *owner.Record[models.Member]) MemberResponse {
	m := rec.Owner()
	return MemberResponse{
		ID:             m.ID,
		Name:           m.Name,
		HasPhoto:       rec.Has(ctx, MemberPhotoSlot),
		PhotoPath:      rec.Path(ctx, MemberPhotoSlot, ""),
		PhotoThumbPath: rec.Path(ctx, MemberPhotoSlot, MemberPhotoThumbnail),
	}
}

// memberAttributes collects the submitted name and photo. Absent fields are
// left out so updates keep the stored values.
func memberAttributes(c echo.Context) (map[string]any, error) {
	attrs := map[string]any{}

	form, err := c.FormParams()
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if names, ok := form["name"]; ok && len(names) > 0 {
		attrs["name"] = validator.SanitizeString(names[0], MaxMemberNameLength)
	}

	photo, err := readUpload(c, MemberPhotoSlot)
	if err != nil {
		return nil, err
	}
	if photo != nil {
		attrs[MemberPhotoSlot] = photo
	}
	return attrs, nil
}

// readUpload reads the multipart file field. A missing field yields nil.
func readUpload(c echo.Context, field string) (*attachment.UploadedData, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidInput, field, err)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", field, err)
	}

	// clients default to octet-stream; let the resolver detect the type
	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == echo.MIMEOctetStream {
		contentType = ""
	}
	return &attachment.UploadedData{
		Filename:    fh.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

func parseID(c echo.Context, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", apperrors.ErrInvalidInput, param, c.Param(param))
	}
	return uint(id), nil
}
