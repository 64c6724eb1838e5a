package attachment

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/welldanyogia/attachmentfx/internal/errors"
	"github.com/welldanyogia/attachmentfx/internal/database"
	"github.com/welldanyogia/attachmentfx/internal/models"
	"github.com/welldanyogia/attachmentfx/internal/repository"
	"github.com/welldanyogia/attachmentfx/internal/storage"
)

func pngData(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// recordingHook remembers hook invocations
type recordingHook struct {
	saved     []uint
	destroyed []uint
}

func (h *recordingHook) AttachmentSaved(_ context.Context, a *models.Attachment) error {
	h.saved = append(h.saved, a.ID)
	return nil
}

func (h *recordingHook) AttachmentDestroyed(_ context.Context, a *models.Attachment) error {
	h.destroyed = append(h.destroyed, a.ID)
	return nil
}

// ServiceTestSuite is the test suite for Service
type ServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	root    string
	service *Service
	hook    *recordingHook
	ctx     context.Context
}

// SetupTest builds a fresh database, file root and registry for each test
func (s *ServiceTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)
	sqlDB, err := db.DB()
	require.NoError(s.T(), err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(s.T(), db.AutoMigrate(&models.Attachment{}, &models.DBFile{}))

	s.root = s.T().TempDir()
	files, err := storage.NewLocalStorage(s.root)
	require.NoError(s.T(), err)

	registry := NewRegistry(Options{PathPrefix: "public/files"}, nil)
	_, err = registry.Define("Photo", Options{
		ContentTypes: []string{"image"},
		Thumbnails:   map[string]string{"thumb": "4x4>"},
	})
	require.NoError(s.T(), err)
	_, err = registry.DefineChild("Member::Photo", "Photo", Options{})
	require.NoError(s.T(), err)
	_, err = registry.Define("Avatar", Options{ContentTypes: []string{"image"}, ResizeTo: "8x8!"})
	require.NoError(s.T(), err)
	_, err = registry.Define("Document", Options{
		ContentTypes:   []string{"application/pdf"},
		MaxSize:        10,
		ReportErrorsOn: "file",
	})
	require.NoError(s.T(), err)
	_, err = registry.Define("Blob", Options{})
	require.NoError(s.T(), err)
	_, err = registry.Define("StoredPhoto", Options{
		Storage:    storage.DBFile,
		PathPrefix: "public/db_files",
		Thumbnails: map[string]string{"thumb": "4x4"},
	})
	require.NoError(s.T(), err)

	s.service, err = NewService(Config{
		DB:         db,
		Registry:   registry,
		Repository: repository.NewAttachmentRepository(db),
		Files:      files,
		Blobs:      repository.NewDBFileRepository(db),
		AppRoot:    s.root,
		PublicPath: filepath.Join(s.root, "public"),
	})
	require.NoError(s.T(), err)

	s.hook = &recordingHook{}
	s.service.AddHook(s.hook)
	s.db = db
	s.ctx = context.Background()
}

func (s *ServiceTestSuite) TearDownTest() {
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) savePhoto(kind string) *models.Attachment {
	a, err := s.service.Build(kind, &UploadedData{Filename: "me.png", ContentType: "image/png", Data: pngData(s.T(), 16, 8)})
	require.NoError(s.T(), err)
	ok, err := s.service.Save(s.ctx, a, SaveOptions{})
	require.NoError(s.T(), err)
	require.True(s.T(), ok, "unexpected errors: %v", a.Errors)
	return a
}

// ==================== Build Tests ====================

func (s *ServiceTestSuite) TestBuild_SetsMetadata() {
	// Act
	a, err := s.service.Build("Photo", &UploadedData{Filename: "C:\\tmp\\my photo.png", Data: pngData(s.T(), 16, 8)})

	// Assert
	require.NoError(s.T(), err)
	assert.True(s.T(), a.IsNew())
	assert.Equal(s.T(), "Photo", a.Type)
	assert.Equal(s.T(), "my_photo.png", a.Filename)
	assert.Equal(s.T(), "image/png", a.ContentType)
	assert.Equal(s.T(), 16, a.Width)
	assert.Equal(s.T(), 8, a.Height)
	assert.Equal(s.T(), int64(len(a.Data)), a.Size)
}

func (s *ServiceTestSuite) TestBuild_UnknownKind() {
	_, err := s.service.Build("Nope", &UploadedData{})
	assert.ErrorIs(s.T(), err, apperrors.ErrConfiguration)
}

func (s *ServiceTestSuite) TestFileAsUploadedData_AndNewFromFile() {
	// Arrange
	path := filepath.Join(s.T().TempDir(), "scan.png")
	require.NoError(s.T(), os.WriteFile(path, pngData(s.T(), 2, 2), 0o600))

	// Act
	data, err := s.service.FileAsUploadedData(path, "")
	require.NoError(s.T(), err)
	a, err := s.service.NewFromFile("Photo", path)
	require.NoError(s.T(), err)

	// Assert
	assert.Equal(s.T(), "scan.png", data.Filename)
	assert.Equal(s.T(), "image/png", data.ContentType)
	assert.Equal(s.T(), data.Size(), a.Size)
	assert.Equal(s.T(), "scan.png", a.Filename)

	forced, err := s.service.FileAsUploadedData(path, "application/x-custom")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "application/x-custom", forced.ContentType)

	_, err = s.service.FileAsUploadedData(filepath.Join(s.T().TempDir(), "missing.png"), "")
	assert.Error(s.T(), err)
}

// ==================== Validation Tests ====================

func (s *ServiceTestSuite) TestValidate_ContentTypeAndSize() {
	// Arrange
	a, err := s.service.Build("Photo", &UploadedData{Filename: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF")})
	require.NoError(s.T(), err)

	// Act
	valid := s.service.Validate(a)

	// Assert
	assert.False(s.T(), valid)
	assert.Equal(s.T(), []string{"is not included in the list"}, a.Errors.On("content_type"))
}

func (s *ServiceTestSuite) TestValidate_EmptyUpload() {
	a, err := s.service.Build("Blob", &UploadedData{Filename: "empty.bin", ContentType: "application/octet-stream", Data: []byte{}})
	require.NoError(s.T(), err)

	assert.False(s.T(), s.service.Validate(a))
	assert.Equal(s.T(), []string{"is not included in the list"}, a.Errors.On("size"))
}

func (s *ServiceTestSuite) TestValidate_MissingData() {
	a, err := s.service.Build("Blob", nil)
	require.NoError(s.T(), err)

	assert.False(s.T(), s.service.Validate(a))
	assert.NotEmpty(s.T(), a.Errors.On("size"))
	assert.NotEmpty(s.T(), a.Errors.On("filename"))
	assert.NotEmpty(s.T(), a.Errors.On("content_type"))
}

func (s *ServiceTestSuite) TestValidate_ReportErrorsOn() {
	// Arrange
	a, err := s.service.Build("Document", &UploadedData{Filename: "big.png", ContentType: "image/png", Data: pngData(s.T(), 4, 4)})
	require.NoError(s.T(), err)

	// Act
	valid := s.service.Validate(a)

	// Assert
	assert.False(s.T(), valid)
	assert.Equal(s.T(), []string{"file_size_invalid", "file_content_type_invalid"}, a.Errors.On("file"))
	assert.Empty(s.T(), a.Errors.On("size"))
	assert.Empty(s.T(), a.Errors.On("content_type"))
}

func (s *ServiceTestSuite) TestValidate_BlockedExtension() {
	a, err := s.service.Build("Blob", &UploadedData{Filename: "setup.exe", ContentType: "application/x-msdownload", Data: []byte("MZ")})
	require.NoError(s.T(), err)

	assert.False(s.T(), s.service.Validate(a))
	assert.Equal(s.T(), []string{"has a blocked extension"}, a.Errors.On("filename"))
}

// ==================== Save Tests ====================

func (s *ServiceTestSuite) TestSave_StoresFileAndThumbnails() {
	// Act
	a := s.savePhoto("Photo")

	// Assert
	assert.NotZero(s.T(), a.ID)
	assert.Nil(s.T(), a.Data)
	assert.FileExists(s.T(), filepath.Join(s.root, relativePath("public/files", a.ID, "me.png")))
	assert.FileExists(s.T(), filepath.Join(s.root, relativePath("public/files", a.ID, "me_thumb.png")))

	thumbs, err := s.service.Thumbnails(s.ctx, a)
	require.NoError(s.T(), err)
	require.Len(s.T(), thumbs, 1)
	assert.Equal(s.T(), "thumb", thumbs[0].Thumbnail)
	assert.Equal(s.T(), a.ID, *thumbs[0].ParentID)
	assert.Equal(s.T(), 4, thumbs[0].Width)
	assert.Equal(s.T(), 2, thumbs[0].Height)

	assert.Equal(s.T(), []uint{a.ID}, s.hook.saved, "hooks fire for originals only")
}

func (s *ServiceTestSuite) TestSave_InvalidIsNotPersisted() {
	// Arrange
	a, err := s.service.Build("Photo", &UploadedData{Filename: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF")})
	require.NoError(s.T(), err)

	// Act
	ok, err := s.service.Save(s.ctx, a, SaveOptions{})

	// Assert
	require.NoError(s.T(), err)
	assert.False(s.T(), ok)
	assert.True(s.T(), a.IsNew())
	assert.Empty(s.T(), s.hook.saved)
}

func (s *ServiceTestSuite) TestSave_SkipValidationStillProcesses() {
	// Arrange
	a, err := s.service.Build("Photo", &UploadedData{Filename: "me.png", ContentType: "image/png", Data: pngData(s.T(), 16, 8)})
	require.NoError(s.T(), err)
	a.Size = 0
	require.False(s.T(), s.service.Validate(a))

	// Act
	ok, err := s.service.Save(s.ctx, a, SaveOptions{SkipValidation: true})

	// Assert
	require.NoError(s.T(), err)
	assert.True(s.T(), ok)
	has, err := s.service.HasThumbnail(s.ctx, a, "thumb")
	require.NoError(s.T(), err)
	assert.True(s.T(), has)
}

func (s *ServiceTestSuite) TestSave_ResizesImage() {
	// Act
	a := s.savePhoto("Avatar")

	// Assert
	assert.Equal(s.T(), 8, a.Width)
	assert.Equal(s.T(), 8, a.Height)

	full, err := s.service.FullFilename(s.ctx, a, "")
	require.NoError(s.T(), err)
	info, err := os.Stat(full)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), a.Size, info.Size())
}

// ==================== Path Tests ====================

func (s *ServiceTestSuite) TestPublicFilename() {
	// Arrange
	a := s.savePhoto("Photo")

	// Act
	base, err := s.service.PublicFilename(s.ctx, a, "")
	require.NoError(s.T(), err)
	thumb, err := s.service.PublicFilename(s.ctx, a, "thumb")
	require.NoError(s.T(), err)

	// Assert
	parts := partitionedPath(a.ID)
	assert.Equal(s.T(), "/files/"+parts[0]+"/"+parts[1]+"/me.png", base)
	assert.Equal(s.T(), "/files/"+parts[0]+"/"+parts[1]+"/me_thumb.png", thumb)
	assert.Equal(s.T(), filepath.Join(s.root, "public", "files", parts[0], parts[1], "me.png"), s.service.ExpandPublicPath(base))

	_, err = s.service.PublicFilename(s.ctx, a, "huge")
	assert.ErrorIs(s.T(), err, apperrors.ErrThumbnailNotFound)
}

func (s *ServiceTestSuite) TestFullFilename_NotYetSaved() {
	a, err := s.service.Build("Photo", &UploadedData{Filename: "me.png", ContentType: "image/png", Data: pngData(s.T(), 2, 2)})
	require.NoError(s.T(), err)

	_, err = s.service.FullFilename(s.ctx, a, "")
	assert.ErrorIs(s.T(), err, apperrors.ErrNotYetSaved)
}

func (s *ServiceTestSuite) TestDBFileStorage_DownloadsOnDemand() {
	// Arrange
	a := s.savePhoto("StoredPhoto")
	require.NotNil(s.T(), a.DBFileID)
	onDisk := filepath.Join(s.root, relativePath("public/db_files", a.ID, "me.png"))
	assert.NoFileExists(s.T(), onDisk)

	// Act
	full, err := s.service.FullFilename(s.ctx, a, "")
	require.NoError(s.T(), err)
	thumbPath, err := s.service.PublicFilename(s.ctx, a, "thumb")
	require.NoError(s.T(), err)

	// Assert
	assert.Equal(s.T(), onDisk, full)
	assert.FileExists(s.T(), onDisk)
	assert.Contains(s.T(), thumbPath, "/db_files/")
	assert.FileExists(s.T(), s.service.ExpandPublicPath(thumbPath))

	reloaded, err := s.service.Find(s.ctx, a.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), *a.DBFileID, *reloaded.DBFileID)
}

// ==================== Destroy Tests ====================

func (s *ServiceTestSuite) TestDestroy_RemovesRowsAndFiles() {
	// Arrange
	a := s.savePhoto("Photo")
	base, err := s.service.FullFilename(s.ctx, a, "")
	require.NoError(s.T(), err)

	// Act
	err = s.service.Destroy(s.ctx, a)

	// Assert
	require.NoError(s.T(), err)
	assert.NoFileExists(s.T(), base)
	_, err = s.service.Find(s.ctx, a.ID)
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)

	var remaining int64
	s.db.Model(&models.Attachment{}).Count(&remaining)
	assert.Zero(s.T(), remaining)
	assert.Equal(s.T(), []uint{a.ID}, s.hook.destroyed)
}

func (s *ServiceTestSuite) TestDestroy_DBFileRemovesBlobs() {
	// Arrange
	a := s.savePhoto("StoredPhoto")
	_, err := s.service.FullFilename(s.ctx, a, "")
	require.NoError(s.T(), err)

	// Act
	require.NoError(s.T(), s.service.Destroy(s.ctx, a))

	// Assert
	var blobs int64
	s.db.Model(&models.DBFile{}).Count(&blobs)
	assert.Zero(s.T(), blobs)
	assert.NoDirExists(s.T(), filepath.Dir(filepath.Join(s.root, relativePath("public/db_files", a.ID, "me.png"))))
}

func (s *ServiceTestSuite) TestDestroy_RolledBackKeepsFiles() {
	// Arrange
	a := s.savePhoto("Photo")
	base, err := s.service.FullFilename(s.ctx, a, "")
	require.NoError(s.T(), err)
	boom := errors.New("boom")

	// Act
	err = database.Transaction(s.ctx, s.db, func(ctx context.Context) error {
		if err := s.service.Destroy(ctx, a); err != nil {
			return err
		}
		assert.FileExists(s.T(), base, "files stay until commit")
		return boom
	})

	// Assert
	assert.ErrorIs(s.T(), err, boom)
	assert.FileExists(s.T(), base)
	assert.FileExists(s.T(), filepath.Join(s.root, relativePath("public/files", a.ID, "me_thumb.png")))
	found, err := s.service.Find(s.ctx, a.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), a.ID, found.ID)
}

func (s *ServiceTestSuite) TestSave_RolledBackRemovesWrittenFiles() {
	// Arrange
	a, err := s.service.Build("Photo", &UploadedData{Filename: "me.png", ContentType: "image/png", Data: pngData(s.T(), 16, 8)})
	require.NoError(s.T(), err)
	boom := errors.New("boom")

	// Act
	var id uint
	err = database.Transaction(s.ctx, s.db, func(ctx context.Context) error {
		if _, err := s.service.Save(ctx, a, SaveOptions{}); err != nil {
			return err
		}
		id = a.ID
		return boom
	})

	// Assert
	assert.ErrorIs(s.T(), err, boom)
	require.NotZero(s.T(), id)
	assert.NoFileExists(s.T(), filepath.Join(s.root, relativePath("public/files", id, "me.png")))
	assert.NoFileExists(s.T(), filepath.Join(s.root, relativePath("public/files", id, "me_thumb.png")))
}

func (s *ServiceTestSuite) TestSave_RegeneratedThumbnailKeepsItsFile() {
	// Arrange
	a := s.savePhoto("Photo")
	thumb := filepath.Join(s.root, relativePath("public/files", a.ID, "me_thumb.png"))
	a.Data = pngData(s.T(), 8, 8)
	a.Size = int64(len(a.Data))

	// Act
	ok, err := s.service.Save(s.ctx, a, SaveOptions{})

	// Assert
	require.NoError(s.T(), err)
	require.True(s.T(), ok)
	assert.FileExists(s.T(), thumb)
	thumbs, err := s.service.Thumbnails(s.ctx, a)
	require.NoError(s.T(), err)
	require.Len(s.T(), thumbs, 1)
	assert.Equal(s.T(), 4, thumbs[0].Height)
}

func (s *ServiceTestSuite) TestDestroy_UnsavedIsNoop() {
	assert.NoError(s.T(), s.service.Destroy(s.ctx, &models.Attachment{Type: "Photo"}))
	assert.Empty(s.T(), s.hook.destroyed)
}

// ==================== Owner Helper Tests ====================

func (s *ServiceTestSuite) TestCreateAttachment_ReplacesOldWhenValid() {
	// Arrange
	owner := OwnerRef{Type: "Member", ID: 1}
	old, err := s.service.CreateAttachment(s.ctx, owner, "Photo", &UploadedData{Filename: "old.png", ContentType: "image/png", Data: pngData(s.T(), 2, 2)}, nil, SaveOptions{})
	require.NoError(s.T(), err)
	require.False(s.T(), old.IsNew())

	// Act
	replacement, err := s.service.CreateAttachment(s.ctx, owner, "Photo", &UploadedData{Filename: "new.png", ContentType: "image/png", Data: pngData(s.T(), 2, 2)}, old, SaveOptions{})

	// Assert
	require.NoError(s.T(), err)
	assert.False(s.T(), replacement.IsNew())
	found, err := s.service.FindByOwner(s.ctx, "Photo", owner)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), replacement.ID, found.ID)
	_, err = s.service.Find(s.ctx, old.ID)
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)
}

func (s *ServiceTestSuite) TestCreateAttachment_KeepsOldWhenInvalid() {
	// Arrange
	owner := OwnerRef{Type: "Member", ID: 2}
	old, err := s.service.CreateAttachment(s.ctx, owner, "Photo", &UploadedData{Filename: "old.png", ContentType: "image/png", Data: pngData(s.T(), 2, 2)}, nil, SaveOptions{})
	require.NoError(s.T(), err)

	// Act
	invalid, err := s.service.CreateAttachment(s.ctx, owner, "Photo", &UploadedData{Filename: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}, old, SaveOptions{})

	// Assert
	require.NoError(s.T(), err)
	assert.True(s.T(), invalid.IsNew())
	assert.False(s.T(), invalid.Errors.Empty())
	found, err := s.service.FindByOwner(s.ctx, "Photo", owner)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), old.ID, found.ID)
}

func (s *ServiceTestSuite) TestBuildAttachment_DestroysOld() {
	// Arrange
	owner := OwnerRef{Type: "Member", ID: 3}
	old, err := s.service.CreateAttachment(s.ctx, owner, "Photo", &UploadedData{Filename: "old.png", ContentType: "image/png", Data: pngData(s.T(), 2, 2)}, nil, SaveOptions{})
	require.NoError(s.T(), err)

	// Act
	built, err := s.service.BuildAttachment(s.ctx, owner, "Photo", &UploadedData{Filename: "new.png", ContentType: "image/png", Data: pngData(s.T(), 2, 2)}, old)

	// Assert
	require.NoError(s.T(), err)
	assert.True(s.T(), built.IsNew())
	assert.Equal(s.T(), "Member", built.OwnerType)
	assert.Equal(s.T(), uint(3), *built.OwnerID)
	_, err = s.service.FindByOwner(s.ctx, "Photo", owner)
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)
}

// ==================== Count Tests ====================

func (s *ServiceTestSuite) TestCount_IncludesDescendants() {
	// Arrange
	s.savePhoto("Photo")
	s.savePhoto("Member::Photo")
	s.savePhoto("Avatar")

	// Act
	photos, err := s.service.Count(s.ctx, "Photo")
	require.NoError(s.T(), err)
	members, err := s.service.Count(s.ctx, "Member::Photo")
	require.NoError(s.T(), err)

	// Assert
	assert.Equal(s.T(), int64(2), photos, "thumbnails are not counted")
	assert.Equal(s.T(), int64(1), members)

	_, err = s.service.Count(s.ctx, "Nope")
	assert.ErrorIs(s.T(), err, apperrors.ErrConfiguration)
}
