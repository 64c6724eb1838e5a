package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/welldanyogia/attachmentfx/internal/errors"
	"github.com/welldanyogia/attachmentfx/internal/models"
	"github.com/welldanyogia/attachmentfx/tests/mocks"
)

const blobPath = "public/files/0000/0004/report.pdf"

func TestFileSystemBackend_StoreWrapsSaveError(t *testing.T) {
	files := new(mocks.MockFileStorage)
	files.On("Save", blobPath, mock.Anything).Return("", errors.New("disk full"))

	err := NewFileSystemBackend(files).Store(context.Background(), &models.Attachment{ID: 4}, blobPath, []byte("data"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store file")
	files.AssertExpectations(t)
}

func TestFileSystemBackend_ReadMapsMissingFile(t *testing.T) {
	files := new(mocks.MockFileStorage)
	files.On("Get", blobPath).Return(nil, ErrFileNotFound)

	_, err := NewFileSystemBackend(files).Read(context.Background(), &models.Attachment{ID: 4}, blobPath)

	assert.ErrorIs(t, err, apperrors.ErrFileNotFound)
	files.AssertExpectations(t)
}

func TestDBFileBackend_StoreFailsWhenBlobCannotBeCreated(t *testing.T) {
	files := new(mocks.MockFileStorage)
	blobs := new(mocks.MockDBFileStore)
	blobs.On("Create", mock.Anything, mock.AnythingOfType("*models.DBFile")).Return(errors.New("insert failed"))

	a := &models.Attachment{ID: 4}
	err := NewDBFileBackend(files, blobs).Store(context.Background(), a, blobPath, []byte("data"))

	require.Error(t, err)
	assert.Nil(t, a.DBFileID)
	blobs.AssertExpectations(t)
	files.AssertNotCalled(t, "Delete", mock.Anything)
}

func TestDBFileBackend_FullFilenameServesExistingDownload(t *testing.T) {
	files := new(mocks.MockFileStorage)
	blobs := new(mocks.MockDBFileStore)
	files.On("Exists", blobPath).Return(true)
	files.On("FullPath", blobPath).Return("/srv/app/"+blobPath, nil)

	full, err := NewDBFileBackend(files, blobs).FullFilename(context.Background(), &models.Attachment{ID: 4}, blobPath)

	require.NoError(t, err)
	assert.Equal(t, "/srv/app/"+blobPath, full)
	blobs.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	files.AssertExpectations(t)
}

func TestDBFileBackend_ReadMapsMissingBlob(t *testing.T) {
	blobID := uint(9)
	blobs := new(mocks.MockDBFileStore)
	blobs.On("GetByID", mock.Anything, blobID).Return(nil, apperrors.ErrNotFound)

	_, err := NewDBFileBackend(new(mocks.MockFileStorage), blobs).Read(context.Background(), &models.Attachment{ID: 4, DBFileID: &blobID}, blobPath)

	assert.ErrorIs(t, err, apperrors.ErrFileNotFound)
	blobs.AssertExpectations(t)
}

func TestDBFileBackend_RemoveToleratesMissingBlob(t *testing.T) {
	blobID := uint(9)
	files := new(mocks.MockFileStorage)
	blobs := new(mocks.MockDBFileStore)
	blobs.On("Delete", mock.Anything, blobID).Return(apperrors.ErrNotFound)
	files.On("DeleteDir", "public/files/0000/0004").Return(nil)

	a := &models.Attachment{ID: 4, DBFileID: &blobID}
	require.NoError(t, NewDBFileBackend(files, blobs).Remove(context.Background(), a, blobPath))

	assert.Nil(t, a.DBFileID)
	blobs.AssertExpectations(t)
	files.AssertExpectations(t)
}
