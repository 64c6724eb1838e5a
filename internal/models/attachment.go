package models

import (
	"path/filepath"
	"strings"
	"time"
)

// Attachment represents the metadata of one stored file. Originals carry the
// polymorphic owner reference; thumbnails point at their original through
// ParentID and name their variant in Thumbnail.
type Attachment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Type        string    `gorm:"size:255;index" json:"type"`
	ParentID    *uint     `gorm:"index" json:"parent_id,omitempty"`
	Thumbnail   string    `gorm:"size:20" json:"thumbnail,omitempty"`
	DBFileID    *uint     `json:"db_file_id,omitempty"`
	Filename    string    `gorm:"size:255" json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `gorm:"size:100" json:"content_type"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	OwnerID     *uint     `gorm:"index:idx_attachment_files_owner,priority:2" json:"owner_id,omitempty"`
	OwnerType   string    `gorm:"size:50;index:idx_attachment_files_owner,priority:1" json:"owner_type,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Uploaded bytes waiting to be processed and stored
	Data []byte `gorm:"-" json:"-"`
	// Errors collected by the last validation run
	Errors FieldErrors `gorm:"-" json:"errors,omitempty"`
}

// TableName returns the table name for Attachment
func (Attachment) TableName() string {
	return "attachment_files"
}

// IsNew reports whether the attachment has not been persisted yet.
func (a *Attachment) IsNew() bool {
	return a == nil || a.ID == 0
}

// IsThumbnail reports whether the attachment is a derived variant.
func (a *Attachment) IsThumbnail() bool {
	return a.Thumbnail != ""
}

// PathID is the id used to partition file paths. Thumbnails share the
// directory of their original.
func (a *Attachment) PathID() uint {
	if a.ParentID != nil && *a.ParentID != 0 {
		return *a.ParentID
	}
	return a.ID
}

// ThumbnailName returns the filename used for the given variant, e.g.
// "photo.jpg" + "half" -> "photo_half.jpg". An empty variant returns Filename.
func (a *Attachment) ThumbnailName(variant string) string {
	if variant == "" {
		return a.Filename
	}
	ext := filepath.Ext(a.Filename)
	return strings.TrimSuffix(a.Filename, ext) + "_" + variant + ext
}

// DBFile holds attachment bytes for the db_file storage backend
type DBFile struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Data []byte `json:"-"`
}

// TableName returns the table name for DBFile
func (DBFile) TableName() string {
	return "db_files"
}
