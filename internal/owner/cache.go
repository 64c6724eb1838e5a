package owner

import (
	"context"
	"fmt"
	"reflect"

	"github.com/welldanyogia/attachmentfx/internal/database"
	"github.com/welldanyogia/attachmentfx/internal/owner/pathcache"
)

// Attachable answers attachment queries per slot. Lookup failures are logged
// and reported as an empty slot.
type Attachable interface {
	Has(ctx context.Context, slot string) bool
	Path(ctx context.Context, slot, variant string) string
	FullPath(ctx context.Context, slot, variant string) string
}

// AttachmentOwner is an Attachable that maintains a path cache.
type AttachmentOwner interface {
	Attachable
	Slots() []string
	UpdatePathCache(ctx context.Context, slot string) (bool, error)
	UpdateAllPathCaches(ctx context.Context) (bool, error)
	ExpirePathCache(ctx context.Context) error
	ExpirePathCacheSlot(ctx context.Context, slot string) error
}

func (r *Record[O]) cacheValue() reflect.Value {
	return r.rv().FieldByIndex(r.model.cacheField.StructField.Index)
}

func (r *Record[O]) cacheColumn() PathCacheColumn {
	if r.model.cacheField == nil {
		return nil
	}
	col, _ := r.cacheValue().Interface().(pathcache.Column)
	return col
}

func (r *Record[O]) setCacheColumn(col PathCacheColumn) {
	if r.model.cacheField == nil {
		return
	}
	r.cacheValue().Set(reflect.ValueOf(col))
}

// cachedSlots returns the cache partition of this host
func (r *Record[O]) cachedSlots() pathcache.Slots {
	return r.cacheColumn().Partition(r.model.manager.partition)
}

// storeSlots replaces this host's partition and persists the column when it
// changed. Read-only records keep the value in memory only.
func (r *Record[O]) storeSlots(ctx context.Context, slots pathcache.Slots) (bool, error) {
	if r.model.cacheField == nil || r.destroying || r.IsNew() {
		return false, nil
	}
	col := r.cacheColumn()
	next := col.WithPartition(r.model.manager.partition, slots)
	if next.Equal(col) {
		return false, nil
	}

	r.setCacheColumn(next)
	if r.readOnly {
		r.model.manager.log.ReadOnlySkip(r.model.ownerType, r.ID(), r.model.cacheField.DBName)
		return false, nil
	}

	err := database.Conn(ctx, r.model.manager.db).
		Model(r.value).
		UpdateColumn(r.model.cacheField.DBName, next).Error
	if err != nil {
		r.setCacheColumn(col)
		return false, fmt.Errorf("failed to store attachment path cache: %w", err)
	}
	return true, nil
}

// ==================== Queries ====================

// Has reports whether slot holds a persisted attachment. A cached slot is
// answered without loading the attachment.
func (r *Record[O]) Has(ctx context.Context, slot string) bool {
	if variants, ok := r.cachedSlots().Lookup(slot); ok {
		return variants != nil
	}
	a, err := r.Attachment(ctx, slot)
	if err != nil {
		r.model.manager.log.PathLookupFailed(r.model.ownerType, slot, "", err)
		return false
	}
	return a != nil && !a.IsNew()
}

// Path returns the public path of slot's attachment or of its variant, ""
// being the original. Slots without attachment return the nil path.
//
// Paths are served from the cache when present. A miss is computed from the
// attachment and, for saved owners, written back to the cache.
func (r *Record[O]) Path(ctx context.Context, slot, variant string) string {
	nilPath := r.model.manager.cache.NilPath
	s, err := r.slot(slot)
	if err != nil {
		r.model.manager.log.PathLookupFailed(r.model.ownerType, slot, variant, err)
		return nilPath
	}
	if r.model.cacheField == nil {
		path, _ := r.livePath(ctx, s, variant)
		return path
	}

	slots := r.cachedSlots()
	variants, cached := slots.Lookup(s.Name)
	if cached {
		if variants == nil {
			return nilPath
		}
		if path, ok := variants[variant]; ok {
			return path
		}
	}

	path, found := r.livePath(ctx, s, variant)
	if r.IsNew() || (cached && !found) {
		return path
	}

	next := slots.Clone()
	if next == nil {
		next = pathcache.Slots{}
	}
	if found {
		v := next[s.Name]
		if v == nil {
			v = pathcache.Variants{}
		}
		v[variant] = path
		next[s.Name] = v
	} else if a, err := r.current(ctx, s); err == nil && a == nil {
		next[s.Name] = nil
	} else {
		return path
	}
	if _, err := r.storeSlots(ctx, next); err != nil {
		r.model.manager.log.PathLookupFailed(r.model.ownerType, s.Name, variant, err)
	}
	return path
}

// livePath computes the public path from the attachment. found is false when
// the slot is empty or the lookup failed.
func (r *Record[O]) livePath(ctx context.Context, s *Slot, variant string) (path string, found bool) {
	nilPath := r.model.manager.cache.NilPath
	a, err := r.Attachment(ctx, s.Name)
	if err != nil {
		r.model.manager.log.PathLookupFailed(r.model.ownerType, s.Name, variant, err)
		return nilPath, false
	}
	if a == nil || a.IsNew() {
		return nilPath, false
	}
	path, err = r.model.manager.attachments.PublicFilename(ctx, a, variant)
	if err != nil {
		r.model.manager.log.PathLookupFailed(r.model.ownerType, s.Name, variant, err)
		return nilPath, false
	}
	return path, true
}

// FullPath returns the file system path of slot's attachment or of its
// variant. Cached public paths are expanded against the public root; a miss
// asks the storage backend, which downloads database blobs on demand.
func (r *Record[O]) FullPath(ctx context.Context, slot, variant string) string {
	svc := r.model.manager.attachments
	nilPath := r.model.manager.cache.NilPath

	if variants, ok := r.cachedSlots().Lookup(slot); ok {
		if variants == nil {
			return nilPath
		}
		if path, ok := variants[variant]; ok {
			return svc.ExpandPublicPath(path)
		}
	}

	a, err := r.Attachment(ctx, slot)
	if err != nil {
		r.model.manager.log.PathLookupFailed(r.model.ownerType, slot, variant, err)
		return nilPath
	}
	if a == nil || a.IsNew() {
		return nilPath
	}
	full, err := svc.FullFilename(ctx, a, variant)
	if err != nil {
		r.model.manager.log.PathLookupFailed(r.model.ownerType, slot, variant, err)
		return nilPath
	}
	return full
}

// ==================== Maintenance ====================

// UpdatePathCache recomputes every cached variant of slot. It returns true
// when the cache changed and was written.
func (r *Record[O]) UpdatePathCache(ctx context.Context, slot string) (bool, error) {
	s, err := r.slot(slot)
	if err != nil {
		return false, err
	}
	if r.model.cacheField == nil {
		return false, nil
	}

	next := r.cachedSlots().Clone()
	if next == nil {
		next = pathcache.Slots{}
	}
	if err := r.computeSlot(ctx, s, next); err != nil {
		return false, err
	}
	return r.storeSlots(ctx, next)
}

// UpdateAllPathCaches recomputes the cache of every declared slot.
func (r *Record[O]) UpdateAllPathCaches(ctx context.Context) (bool, error) {
	if r.model.cacheField == nil {
		return false, nil
	}
	next := r.cachedSlots().Clone()
	if next == nil {
		next = pathcache.Slots{}
	}
	for _, s := range r.model.slots {
		if err := r.computeSlot(ctx, s, next); err != nil {
			return false, err
		}
	}
	return r.storeSlots(ctx, next)
}

// ExpirePathCache drops this host's cached paths so the next read recomputes
// them.
func (r *Record[O]) ExpirePathCache(ctx context.Context) error {
	_, err := r.storeSlots(ctx, nil)
	return err
}

// ExpirePathCacheSlot drops this host's cached paths of slot only. A
// partition left empty is removed, and the column becomes NULL when no
// partition remains.
func (r *Record[O]) ExpirePathCacheSlot(ctx context.Context, slot string) error {
	if _, err := r.slot(slot); err != nil {
		return err
	}
	cached := r.cachedSlots()
	if _, ok := cached[slot]; !ok {
		return nil
	}
	next := cached.Clone()
	delete(next, slot)
	_, err := r.storeSlots(ctx, next)
	return err
}

// computeSlot stores into slots the public path of the original and of every
// stored thumbnail of s. An empty slot is marked with nil. When the original
// path cannot be resolved the slot is left uncached; failing thumbnails are
// left out. Both are logged.
func (r *Record[O]) computeSlot(ctx context.Context, s *Slot, slots pathcache.Slots) error {
	a, err := r.current(ctx, s)
	if err != nil {
		return err
	}
	if a == nil {
		slots[s.Name] = nil
		return nil
	}

	svc := r.model.manager.attachments
	path, err := svc.PublicFilename(ctx, a, "")
	if err != nil {
		r.model.manager.log.PathLookupFailed(r.model.ownerType, s.Name, "", err)
		delete(slots, s.Name)
		return nil
	}
	variants := pathcache.Variants{"": path}

	if s.Kind.Thumbnailable() {
		thumbs, err := svc.Thumbnails(ctx, a)
		if err != nil {
			return err
		}
		for _, t := range thumbs {
			path, err := svc.PublicFilename(ctx, a, t.Thumbnail)
			if err != nil {
				r.model.manager.log.PathLookupFailed(r.model.ownerType, s.Name, t.Thumbnail, err)
				continue
			}
			variants[t.Thumbnail] = path
		}
	}
	slots[s.Name] = variants
	return nil
}
