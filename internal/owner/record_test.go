package owner

import (
	"os"
	"path/filepath"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldanyogia/attachmentfx/internal/attachment"
	apperrors "github.com/welldanyogia/attachmentfx/internal/errors"
	"github.com/welldanyogia/attachmentfx/internal/models"
)

// ==================== Assignment Tests ====================

func (s *OwnerTestSuite) TestAssignAttributes_SetsFieldsAndStagesUploads() {
	rec := s.gallery.New(nil)
	err := rec.AssignAttributes(s.ctx, map[string]any{
		"name":  "assigned",
		"image": map[string]any{UploadedDataKey: s.upload("photo.png")},
		"cover": nil,
	})
	require.NoError(s.T(), err)

	assert.Equal(s.T(), "assigned", rec.Owner().Name)
	a, err := rec.Attachment(s.ctx, "image")
	require.NoError(s.T(), err)
	require.NotNil(s.T(), a)
	assert.True(s.T(), a.IsNew())
	assert.Equal(s.T(), "Image", a.Type)
	assert.Equal(s.T(), "image/png", a.ContentType)
	assert.False(s.T(), rec.Loaded("cover"))
}

func (s *OwnerTestSuite) TestAssignAttributes_Rejects() {
	tests := []struct {
		name  string
		attrs map[string]any
	}{
		{"unknown attribute", map[string]any{"nickname": "x"}},
		{"primary key", map[string]any{"id": uint(9)}},
		{"cache column", map[string]any{"attachment_path_cache": PathCacheColumn{}}},
		{"unsupported upload", map[string]any{"image": "photo.png"}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := s.gallery.New(nil).AssignAttributes(s.ctx, tt.attrs)
			assert.ErrorIs(s.T(), err, apperrors.ErrInvalidInput)
		})
	}
}

func (s *OwnerTestSuite) TestAttach_UnknownSlot() {
	_, err := s.gallery.New(nil).Attach("logo", s.upload("logo.png"))
	assert.ErrorIs(s.T(), err, apperrors.ErrUnknownSlot)
}

// ==================== Save Tests ====================

func (s *OwnerTestSuite) TestSave_CreateWithInvalidAttachmentPersistsNothing() {
	rec := s.gallery.New(&Gallery{Name: "invalid"})
	a, err := rec.Attach("image", s.textUpload())
	require.NoError(s.T(), err)

	ok, err := rec.Save(s.ctx, SaveOptions{})
	require.NoError(s.T(), err)
	assert.False(s.T(), ok)
	assert.True(s.T(), rec.IsNew())
	assert.Equal(s.T(), []string{"is not included in the list"}, a.Errors.On("content_type"))
	assert.Equal(s.T(), []string{"is invalid"}, rec.Errors().On("image"))
	assert.Equal(s.T(), []string{"is not included in the list"}, rec.Errors().On("image.content_type"))

	var owners int64
	require.NoError(s.T(), s.db.Model(&Gallery{}).Count(&owners).Error)
	assert.Zero(s.T(), owners)
	count, err := s.service.Count(s.ctx, "Image")
	require.NoError(s.T(), err)
	assert.Zero(s.T(), count)
}

func (s *OwnerTestSuite) TestSave_UpdateWithInvalidAttachmentKeepsPrevious() {
	rec := s.createGallery("before")
	previous, err := rec.Attachment(s.ctx, "image")
	require.NoError(s.T(), err)
	path := rec.Path(s.ctx, "image", "")

	require.NoError(s.T(), rec.AssignAttributes(s.ctx, map[string]any{
		"name":  "after",
		"image": map[string]any{UploadedDataKey: s.textUpload()},
	}))
	ok, err := rec.Save(s.ctx, SaveOptions{})
	require.NoError(s.T(), err)
	assert.False(s.T(), ok)
	assert.NotEmpty(s.T(), rec.Errors().On("image"))

	fresh := s.find(rec.ID())
	assert.Equal(s.T(), "after", fresh.Owner().Name)
	assert.Equal(s.T(), path, fresh.Path(s.ctx, "image", ""))
	current, err := fresh.Attachment(s.ctx, "image")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), previous.ID, current.ID)
}

func (s *OwnerTestSuite) TestSave_UpdateReplacesAttachment() {
	rec := s.createGallery("replace")
	previous, err := rec.Attachment(s.ctx, "image")
	require.NoError(s.T(), err)

	_, err = rec.Attach("image", s.upload("second.png"))
	require.NoError(s.T(), err)
	ok, err := rec.Save(s.ctx, SaveOptions{})
	require.NoError(s.T(), err)
	require.True(s.T(), ok)

	current, err := rec.Attachment(s.ctx, "image")
	require.NoError(s.T(), err)
	assert.NotEqual(s.T(), previous.ID, current.ID)
	_, err = s.service.Find(s.ctx, previous.ID)
	assert.ErrorIs(s.T(), err, apperrors.ErrNotFound)

	fresh := s.find(rec.ID())
	assert.True(s.T(), fresh.Has(s.ctx, "image"))
	assert.Contains(s.T(), fresh.Path(s.ctx, "image", ""), "second.png")
	assert.Contains(s.T(), fresh.Path(s.ctx, "image", "half"), "second_half.png")
	assert.False(s.T(), fresh.Loaded("image"))
}

func (s *OwnerTestSuite) TestSave_FailedSlotKeepsPreviousFileAndRemovesNewOnes() {
	rec := s.createGallery("rollback")
	previous, err := rec.Attachment(s.ctx, "image")
	require.NoError(s.T(), err)
	path := rec.Path(s.ctx, "image", "")
	files := filepath.Join(s.root, "public", "files", "0000")
	require.FileExists(s.T(), filepath.Join(files, "0001", "photo.png"))

	require.NoError(s.T(), rec.AssignAttributes(s.ctx, map[string]any{
		"image": map[string]any{UploadedDataKey: s.upload("second.png")},
		"cover": map[string]any{UploadedDataKey: s.upload("cover.png")},
	}))
	// a regular file where the cover directory belongs makes the cover fail
	require.NoError(s.T(), os.WriteFile(filepath.Join(files, "0005"), []byte("x"), 0o644))

	ok, err := rec.Save(s.ctx, SaveOptions{})
	assert.False(s.T(), ok)
	require.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "cover")

	assert.FileExists(s.T(), filepath.Join(files, "0001", "photo.png"))
	assert.FileExists(s.T(), filepath.Join(files, "0001", "photo_half.png"))
	assert.NoFileExists(s.T(), filepath.Join(files, "0003", "second.png"))
	assert.NoFileExists(s.T(), filepath.Join(files, "0003", "second_half.png"))

	fresh := s.find(rec.ID())
	assert.Equal(s.T(), path, fresh.Path(s.ctx, "image", ""))
	current, err := fresh.Attachment(s.ctx, "image")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), previous.ID, current.ID)
	full, err := s.service.FullFilename(s.ctx, current, "")
	require.NoError(s.T(), err)
	assert.FileExists(s.T(), full)
}

func (s *OwnerTestSuite) TestSave_AddAfterRemoveRestoresCache() {
	rec := s.createGallery("Ujo")
	require.NoError(s.T(), rec.DestroyAttachment(s.ctx, "image"))
	require.NoError(s.T(), rec.Reload(s.ctx))
	assert.Equal(s.T(), "", rec.Path(s.ctx, "image", ""))

	require.NoError(s.T(), rec.AssignAttributes(s.ctx, map[string]any{
		"name":  "Stryko",
		"image": s.upload("again.png"),
	}))
	ok, err := rec.Save(s.ctx, SaveOptions{})
	require.NoError(s.T(), err)
	require.True(s.T(), ok)
	assert.True(s.T(), rec.Has(s.ctx, "image"))

	require.NoError(s.T(), rec.Reload(s.ctx))
	assert.Equal(s.T(), "Stryko", rec.Owner().Name)
	assert.Contains(s.T(), rec.Path(s.ctx, "image", ""), "again.png")
}

func (s *OwnerTestSuite) TestSave_OwnerValidation() {
	members, err := NewModel[models.Member](s.manager, HasAttachmentFile("photo"))
	require.NoError(s.T(), err)

	rec := members.New(&models.Member{})
	_, err = rec.Attach("photo", s.upload("me.png"))
	require.NoError(s.T(), err)

	ok, err := rec.Save(s.ctx, SaveOptions{})
	require.NoError(s.T(), err)
	assert.False(s.T(), ok)
	assert.Equal(s.T(), []string{"can't be blank"}, rec.Errors().On("name"))
	assert.True(s.T(), rec.IsNew())

	rec.Owner().Name = "Karol"
	ok, err = rec.Save(s.ctx, SaveOptions{})
	require.NoError(s.T(), err)
	assert.True(s.T(), ok)
	assert.True(s.T(), rec.Has(s.ctx, "photo"))
	assert.Empty(s.T(), rec.Errors())
}

func (s *OwnerTestSuite) TestSave_SkipValidation() {
	rec := s.gallery.New(&Gallery{Name: "unchecked"})
	_, err := rec.Attach("image", s.textUpload())
	require.NoError(s.T(), err)

	ok, err := rec.Save(s.ctx, SaveOptions{SkipValidation: true})
	require.NoError(s.T(), err)
	assert.True(s.T(), ok)
	assert.True(s.T(), rec.Has(s.ctx, "image"))
}

func (s *OwnerTestSuite) TestSave_SlotWithoutValidation() {
	unchecked, err := NewModel[Plain](s.manager,
		WithOwnerType("Unchecked"),
		HasAttachmentFile("image", SlotOptions{ClassName: "Blob", SkipValidation: true}),
	)
	require.NoError(s.T(), err)

	rec := unchecked.New(&Plain{Name: "anything goes"})
	_, err = rec.Attach("image", &attachment.UploadedData{Filename: "empty.bin", ContentType: "application/octet-stream", Data: []byte{}})
	require.NoError(s.T(), err)

	ok, err := rec.Save(s.ctx, SaveOptions{})
	require.NoError(s.T(), err)
	assert.True(s.T(), ok)
	assert.True(s.T(), rec.Has(s.ctx, "image"))
}

// ==================== Destroy Tests ====================

func (s *OwnerTestSuite) TestDestroy_RemovesAttachmentsAndRow() {
	rec := s.createGallery("doomed")
	a, err := rec.Attachment(s.ctx, "image")
	require.NoError(s.T(), err)
	full := rec.FullPath(s.ctx, "image", "")
	require.FileExists(s.T(), full)

	require.NoError(s.T(), rec.Destroy(s.ctx))

	_, err = s.gallery.Find(s.ctx, rec.ID())
	assert.ErrorIs(s.T(), err, apperrors.ErrNotFound)
	_, err = s.service.Find(s.ctx, a.ID)
	assert.ErrorIs(s.T(), err, apperrors.ErrNotFound)
	assert.NoFileExists(s.T(), full)
	thumbs, err := s.service.Thumbnails(s.ctx, a)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), thumbs)
}

func (s *OwnerTestSuite) TestDestroy_NullifyKeepsAttachment() {
	archive, err := NewModel[Plain](s.manager,
		WithOwnerType("Archive"),
		HasAttachmentFile("image", SlotOptions{ClassName: "Blob", Dependent: DependentNullify}),
	)
	require.NoError(s.T(), err)

	rec := archive.New(&Plain{Name: "archive"})
	a, err := rec.Attach("image", &attachment.UploadedData{Filename: "notes.txt", ContentType: "text/plain", Data: []byte("keep me")})
	require.NoError(s.T(), err)
	ok, err := rec.Save(s.ctx, SaveOptions{})
	require.NoError(s.T(), err)
	require.True(s.T(), ok)

	require.NoError(s.T(), rec.Destroy(s.ctx))

	kept, err := s.service.Find(s.ctx, a.ID)
	require.NoError(s.T(), err)
	assert.Nil(s.T(), kept.OwnerID)
	assert.Empty(s.T(), kept.OwnerType)
}

func (s *OwnerTestSuite) TestDestroyAttachment_EmptySlot() {
	rec := s.gallery.New(&Gallery{Name: "nothing"})
	ok, err := rec.Save(s.ctx, SaveOptions{})
	require.NoError(s.T(), err)
	require.True(s.T(), ok)

	require.NoError(s.T(), rec.DestroyAttachment(s.ctx, "cover"))
	variants, cached := s.find(rec.ID()).cachedSlots().Lookup("cover")
	assert.True(s.T(), cached)
	assert.Nil(s.T(), variants)
}

func (s *OwnerTestSuite) TestReload_NewRecord() {
	err := s.gallery.New(nil).Reload(s.ctx)
	assert.ErrorIs(s.T(), err, apperrors.ErrNotFound)
}
