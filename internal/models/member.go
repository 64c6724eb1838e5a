package models

import (
	"strings"
	"time"

	"github.com/welldanyogia/attachmentfx/internal/owner/pathcache"
)

// Member is an attachment owner with a cached "photo" slot.
type Member struct {
	ID                  uint             `gorm:"primaryKey" json:"id"`
	Name                string           `gorm:"size:255;not null" json:"name"`
	AttachmentPathCache pathcache.Column `gorm:"type:text" json:"-"`
	CreatedAt           time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Member
func (Member) TableName() string {
	return "members"
}

// Validate requires a non-blank name.
func (m *Member) Validate() FieldErrors {
	var errs FieldErrors
	if strings.TrimSpace(m.Name) == "" {
		errs.Add("name", "can't be blank")
	}
	return errs
}
