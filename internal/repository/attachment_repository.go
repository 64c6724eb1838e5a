package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/welldanyogia/attachmentfx/internal/database"
	"github.com/welldanyogia/attachmentfx/internal/models"
	"gorm.io/gorm"
)

// AttachmentRepository defines the interface for attachment data access
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *models.Attachment) error
	Update(ctx context.Context, attachment *models.Attachment) error
	GetByID(ctx context.Context, id uint) (*models.Attachment, error)
	FindByOwner(ctx context.Context, ownerType string, ownerID uint, kinds []string) (*models.Attachment, error)
	FindThumbnail(ctx context.Context, parentID uint, variant string) (*models.Attachment, error)
	ListThumbnails(ctx context.Context, parentID uint) ([]models.Attachment, error)
	ListByOwner(ctx context.Context, ownerType string, ownerID uint) ([]models.Attachment, error)
	Delete(ctx context.Context, id uint) error
	CountByKinds(ctx context.Context, kinds []string) (int64, error)
}

// attachmentRepository implements AttachmentRepository using GORM
type attachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository creates a new AttachmentRepository instance
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

// Create creates a new attachment record
func (r *attachmentRepository) Create(ctx context.Context, attachment *models.Attachment) error {
	result := database.Conn(ctx, r.db).Create(attachment)
	if result.Error != nil {
		return fmt.Errorf("failed to create attachment: %w", result.Error)
	}
	return nil
}

// Update saves all columns of an existing attachment record
func (r *attachmentRepository) Update(ctx context.Context, attachment *models.Attachment) error {
	if attachment.ID == 0 {
		return fmt.Errorf("failed to update attachment: %w", ErrInvalidInput)
	}
	result := database.Conn(ctx, r.db).Save(attachment)
	if result.Error != nil {
		return fmt.Errorf("failed to update attachment: %w", result.Error)
	}
	return nil
}

// GetByID retrieves an attachment by its ID
func (r *attachmentRepository) GetByID(ctx context.Context, id uint) (*models.Attachment, error) {
	var attachment models.Attachment
	result := database.Conn(ctx, r.db).First(&attachment, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attachment by ID: %w", result.Error)
	}
	return &attachment, nil
}

// FindByOwner retrieves the newest original attachment of one of kinds that
// belongs to the owner
func (r *attachmentRepository) FindByOwner(ctx context.Context, ownerType string, ownerID uint, kinds []string) (*models.Attachment, error) {
	var attachment models.Attachment
	query := database.Conn(ctx, r.db).
		Where("owner_type = ? AND owner_id = ? AND parent_id IS NULL", ownerType, ownerID)
	if len(kinds) > 0 {
		query = query.Where("type IN ?", kinds)
	}

	result := query.Order("id DESC").Take(&attachment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find attachment by owner: %w", result.Error)
	}
	return &attachment, nil
}

// FindThumbnail retrieves the named thumbnail variant of an attachment
func (r *attachmentRepository) FindThumbnail(ctx context.Context, parentID uint, variant string) (*models.Attachment, error) {
	var attachment models.Attachment
	result := database.Conn(ctx, r.db).
		Where("parent_id = ? AND thumbnail = ?", parentID, variant).
		Take(&attachment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find thumbnail: %w", result.Error)
	}
	return &attachment, nil
}

// ListThumbnails retrieves all thumbnails of an attachment
func (r *attachmentRepository) ListThumbnails(ctx context.Context, parentID uint) ([]models.Attachment, error) {
	var thumbnails []models.Attachment
	result := database.Conn(ctx, r.db).
		Where("parent_id = ?", parentID).
		Order("thumbnail ASC").
		Find(&thumbnails)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list thumbnails: %w", result.Error)
	}
	return thumbnails, nil
}

// ListByOwner retrieves all original attachments that belong to the owner
func (r *attachmentRepository) ListByOwner(ctx context.Context, ownerType string, ownerID uint) ([]models.Attachment, error) {
	var attachments []models.Attachment
	result := database.Conn(ctx, r.db).
		Where("owner_type = ? AND owner_id = ? AND parent_id IS NULL", ownerType, ownerID).
		Order("id ASC").
		Find(&attachments)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", result.Error)
	}
	return attachments, nil
}

// Delete deletes an attachment record by its ID. File data is owned by the
// storage backend and must be removed by the caller.
func (r *attachmentRepository) Delete(ctx context.Context, id uint) error {
	result := database.Conn(ctx, r.db).Delete(&models.Attachment{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete attachment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByKinds counts the original attachments of the given kinds
func (r *attachmentRepository) CountByKinds(ctx context.Context, kinds []string) (int64, error) {
	var count int64
	result := database.Conn(ctx, r.db).
		Model(&models.Attachment{}).
		Where("type IN ? AND parent_id IS NULL", kinds).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count attachments: %w", result.Error)
	}
	return count, nil
}
