package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
	"github.com/welldanyogia/attachmentfx/internal/models"
)

// MockFileStorage implements storage.FileStorage
type MockFileStorage struct {
	mock.Mock
}

// Save stores a file at filePath and returns the path
func (m *MockFileStorage) Save(filePath string, content io.Reader) (string, error) {
	args := m.Called(filePath, content)
	return args.String(0), args.Error(1)
}

// Get retrieves a file by its path
func (m *MockFileStorage) Get(filePath string) (io.ReadCloser, error) {
	args := m.Called(filePath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// Exists reports whether a file exists
func (m *MockFileStorage) Exists(filePath string) bool {
	args := m.Called(filePath)
	return args.Bool(0)
}

// FullPath returns the absolute path of filePath
func (m *MockFileStorage) FullPath(filePath string) (string, error) {
	args := m.Called(filePath)
	return args.String(0), args.Error(1)
}

// Delete removes a file by its path
func (m *MockFileStorage) Delete(filePath string) error {
	args := m.Called(filePath)
	return args.Error(0)
}

// DeleteDir removes a directory and its contents
func (m *MockFileStorage) DeleteDir(dirPath string) error {
	args := m.Called(dirPath)
	return args.Error(0)
}

// MockDBFileStore implements storage.DBFileStore
type MockDBFileStore struct {
	mock.Mock
}

// Create stores a blob
func (m *MockDBFileStore) Create(ctx context.Context, file *models.DBFile) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

// GetByID retrieves a blob by ID
func (m *MockDBFileStore) GetByID(ctx context.Context, id uint) (*models.DBFile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DBFile), args.Error(1)
}

// Delete removes a blob
func (m *MockDBFileStore) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
