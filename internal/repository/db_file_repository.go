package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/welldanyogia/attachmentfx/internal/database"
	"github.com/welldanyogia/attachmentfx/internal/models"
	"gorm.io/gorm"
)

// DBFileRepository defines the interface for db_files blob access
type DBFileRepository interface {
	Create(ctx context.Context, file *models.DBFile) error
	GetByID(ctx context.Context, id uint) (*models.DBFile, error)
	Delete(ctx context.Context, id uint) error
}

type dbFileRepository struct {
	db *gorm.DB
}

// NewDBFileRepository creates a new DBFileRepository instance
func NewDBFileRepository(db *gorm.DB) DBFileRepository {
	return &dbFileRepository{db: db}
}

// Create stores a new blob
func (r *dbFileRepository) Create(ctx context.Context, file *models.DBFile) error {
	if file.Data == nil {
		file.Data = []byte{}
	}
	result := database.Conn(ctx, r.db).Create(file)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create db file: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a blob by its ID
func (r *dbFileRepository) GetByID(ctx context.Context, id uint) (*models.DBFile, error) {
	var file models.DBFile
	result := database.Conn(ctx, r.db).First(&file, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get db file by ID: %w", result.Error)
	}
	return &file, nil
}

// Delete deletes a blob by its ID
func (r *dbFileRepository) Delete(ctx context.Context, id uint) error {
	result := database.Conn(ctx, r.db).Delete(&models.DBFile{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete db file: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
