// Package owner lets gorm models declare attachment slots.
//
// A model registers its slots through NewModel. Records of the model answer
// existence and path queries per slot, stage uploads through attribute
// assignment and save them together with the owner row. When the owner table
// has a path cache column, computed public paths are kept on the owner row so
// reads do not need to load the attachment.
package owner

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/welldanyogia/attachmentfx/internal/attachment"
	apperrors "github.com/welldanyogia/attachmentfx/internal/errors"
	"github.com/welldanyogia/attachmentfx/internal/logger"
	"github.com/welldanyogia/attachmentfx/internal/models"
	"github.com/welldanyogia/attachmentfx/internal/owner/pathcache"
)

// DefaultCacheColumn is the owner column holding cached attachment paths
const DefaultCacheColumn = "attachment_path_cache"

// PathCacheColumn is the Go type owners use for their cache column, e.g.
//
//	AttachmentPathCache owner.PathCacheColumn `gorm:"type:text"`
type PathCacheColumn = pathcache.Column

// CacheOptions configure the path cache of every model of a Manager.
type CacheOptions struct {
	Enabled bool
	// Column is the owner column name, DefaultCacheColumn when empty
	Column string
	// PartitionByHost keys cached paths by HostID so hosts with different
	// file layouts do not share entries
	PartitionByHost bool
	// HostID defaults to the host name
	HostID string
	// NilPath is returned for slots without an attachment
	NilPath string
}

// Manager wires owner models to the attachment service. It receives the
// service's save and destroy notifications and refreshes the path cache of
// the owning record.
type Manager struct {
	db          *gorm.DB
	attachments *attachment.Service
	cache       CacheOptions
	partition   string
	log         *logger.EventLogger
	models      map[string]ownerModel
}

// ownerModel is the type-erased view of a Model used for notifications
type ownerModel interface {
	refresh(ctx context.Context, ownerID uint, a *models.Attachment, destroyed bool) error
}

// NewManager creates a Manager and registers it as a hook on attachments.
func NewManager(db *gorm.DB, attachments *attachment.Service, cache CacheOptions, log *logger.EventLogger) (*Manager, error) {
	if db == nil || attachments == nil {
		return nil, fmt.Errorf("%w: owner manager needs a database and an attachment service", apperrors.ErrConfiguration)
	}
	if log == nil {
		log = logger.NewEventLogger(nil)
	}
	if cache.Column == "" {
		cache.Column = DefaultCacheColumn
	}

	partition := pathcache.AnyHost
	if cache.PartitionByHost {
		partition = cache.HostID
		if partition == "" {
			host, err := os.Hostname()
			if err != nil {
				return nil, fmt.Errorf("failed to resolve host id: %w", err)
			}
			partition = host
		}
	}

	m := &Manager{
		db:          db,
		attachments: attachments,
		cache:       cache,
		partition:   partition,
		log:         log,
		models:      make(map[string]ownerModel),
	}
	attachments.AddHook(m)
	return m, nil
}

// Attachments returns the attachment service.
func (m *Manager) Attachments() *attachment.Service {
	return m.attachments
}

// Partition returns the cache partition key of this process.
func (m *Manager) Partition() string {
	return m.partition
}

// NilPath returns the path reported for empty slots.
func (m *Manager) NilPath() string {
	return m.cache.NilPath
}

func (m *Manager) register(ownerType string, model ownerModel) error {
	if _, exists := m.models[ownerType]; exists {
		return apperrors.NewConfigError(ownerType, "", "owner model already declared")
	}
	m.models[ownerType] = model
	return nil
}

// AttachmentSaved implements attachment.Hook
func (m *Manager) AttachmentSaved(ctx context.Context, a *models.Attachment) error {
	return m.notify(ctx, a, false)
}

// AttachmentDestroyed implements attachment.Hook
func (m *Manager) AttachmentDestroyed(ctx context.Context, a *models.Attachment) error {
	return m.notify(ctx, a, true)
}

func (m *Manager) notify(ctx context.Context, a *models.Attachment, destroyed bool) error {
	if a.OwnerID == nil || a.OwnerType == "" {
		return nil
	}
	model, ok := m.models[a.OwnerType]
	if !ok {
		return nil
	}
	return model.refresh(ctx, *a.OwnerID, a, destroyed)
}

// activeKey marks the record whose save or destroy triggered a notification
type activeKey struct{}

type activeRecord interface {
	identity() (string, uint)
}

func withActive(ctx context.Context, r activeRecord) context.Context {
	return context.WithValue(ctx, activeKey{}, r)
}

func activeFrom(ctx context.Context, ownerType string, ownerID uint) (activeRecord, bool) {
	r, ok := ctx.Value(activeKey{}).(activeRecord)
	if !ok {
		return nil, false
	}
	t, id := r.identity()
	if t != ownerType || id != ownerID {
		return nil, false
	}
	return r, true
}
