package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/welldanyogia/attachmentfx/internal/models"
)

// MockAttachmentFinder implements handlers.AttachmentFinder
type MockAttachmentFinder struct {
	mock.Mock
}

// Find retrieves an attachment by ID
func (m *MockAttachmentFinder) Find(ctx context.Context, id uint) (*models.Attachment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attachment), args.Error(1)
}

// FullFilename returns the absolute path of an attachment or its variant
func (m *MockAttachmentFinder) FullFilename(ctx context.Context, a *models.Attachment, variant string) (string, error) {
	args := m.Called(ctx, a, variant)
	return args.String(0), args.Error(1)
}
