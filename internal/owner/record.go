package owner

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/welldanyogia/attachmentfx/internal/attachment"
	"github.com/welldanyogia/attachmentfx/internal/database"
	apperrors "github.com/welldanyogia/attachmentfx/internal/errors"
	"github.com/welldanyogia/attachmentfx/internal/models"
	"github.com/welldanyogia/attachmentfx/internal/repository"
)

// Validator is implemented by owners with their own validation rules.
type Validator interface {
	Validate() models.FieldErrors
}

// SaveOptions control Record.Save.
type SaveOptions struct {
	// SkipValidation skips owner and attachment validation. Staged uploads
	// are still processed and their thumbnails rendered.
	SkipValidation bool
}

// UploadedDataKey is the attribute key of nested upload maps, e.g.
//
//	{"photo": {"uploaded_data": &attachment.UploadedData{...}}}
const UploadedDataKey = "uploaded_data"

type slotState struct {
	loaded   bool
	current  *models.Attachment
	pending  *models.Attachment
	rejected *models.Attachment
}

// Record is one owner of type O together with its slot attachments.
type Record[O any] struct {
	model      *Model[O]
	value      *O
	states     map[string]*slotState
	errors     models.FieldErrors
	readOnly   bool
	destroying bool
}

var _ AttachmentOwner = (*Record[models.Member])(nil)

// Owner returns the wrapped owner value.
func (r *Record[O]) Owner() *O {
	return r.value
}

// Model returns the declarations of the owner type.
func (r *Record[O]) Model() *Model[O] {
	return r.model
}

// Slots returns the declared slot names.
func (r *Record[O]) Slots() []string {
	return r.model.Slots()
}

func (r *Record[O]) rv() reflect.Value {
	return reflect.ValueOf(r.value).Elem()
}

// ID returns the owner's primary key, zero before the first save.
func (r *Record[O]) ID() uint {
	v, zero := r.model.primary.ValueOf(context.Background(), r.rv())
	if zero {
		return 0
	}
	switch id := v.(type) {
	case uint:
		return id
	case uint32:
		return uint(id)
	case uint64:
		return uint(id)
	case int:
		return uint(id)
	case int32:
		return uint(id)
	case int64:
		return uint(id)
	}
	return 0
}

// IsNew reports whether the owner has not been saved yet.
func (r *Record[O]) IsNew() bool {
	return r.ID() == 0
}

// Ref returns the owner reference stored on attachment rows.
func (r *Record[O]) Ref() attachment.OwnerRef {
	return attachment.OwnerRef{Type: r.model.ownerType, ID: r.ID()}
}

func (r *Record[O]) identity() (string, uint) {
	return r.model.ownerType, r.ID()
}

// SetReadOnly marks the record read-only. Path cache writes are skipped and
// Save and Destroy fail with ErrReadOnly.
func (r *Record[O]) SetReadOnly() {
	r.readOnly = true
}

// ReadOnly reports whether the record is read-only.
func (r *Record[O]) ReadOnly() bool {
	return r.readOnly
}

// Errors returns the errors of the last Save. Attachment errors are reported
// on the slot and as "<slot>.<field>".
func (r *Record[O]) Errors() models.FieldErrors {
	return r.errors
}

func (r *Record[O]) slot(name string) (*Slot, error) {
	s, ok := r.model.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", apperrors.ErrUnknownSlot, r.model.ownerType, name)
	}
	return s, nil
}

func (r *Record[O]) state(name string) *slotState {
	st, ok := r.states[name]
	if !ok {
		st = &slotState{}
		r.states[name] = st
	}
	return st
}

// ==================== Association ====================

// Loaded reports whether the slot's attachment has been loaded or assigned.
func (r *Record[O]) Loaded(slot string) bool {
	st, ok := r.states[slot]
	return ok && (st.loaded || st.pending != nil)
}

// Attachment returns the attachment of slot: the staged upload if any,
// otherwise the persisted attachment, loading it on first use. A slot without
// attachment returns nil.
func (r *Record[O]) Attachment(ctx context.Context, slot string) (*models.Attachment, error) {
	s, err := r.slot(slot)
	if err != nil {
		return nil, err
	}
	if st := r.state(s.Name); st.pending != nil {
		return st.pending, nil
	}
	return r.current(ctx, s)
}

// current returns the persisted attachment of s
func (r *Record[O]) current(ctx context.Context, s *Slot) (*models.Attachment, error) {
	st := r.state(s.Name)
	if st.loaded {
		return st.current, nil
	}
	if r.IsNew() {
		st.loaded = true
		return nil, nil
	}

	a, err := r.model.manager.attachments.FindByOwner(ctx, s.Kind.Name, r.Ref())
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	st.current, st.loaded = a, true
	return a, nil
}

// ==================== Assignment ====================

// AssignAttributes assigns owner fields by column or field name. Values keyed
// by a slot name are staged as uploads; they may be *attachment.UploadedData
// or a map holding one under UploadedDataKey.
func (r *Record[O]) AssignAttributes(ctx context.Context, attrs map[string]any) error {
	for key, value := range attrs {
		if _, ok := r.model.byName[key]; ok {
			data, err := uploadedData(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if data == nil {
				continue
			}
			if _, err := r.Attach(key, data); err != nil {
				return err
			}
			continue
		}

		field := r.model.schema.LookUpField(key)
		if field == nil || field.DBName == "" {
			return fmt.Errorf("%w: unknown attribute %q", apperrors.ErrInvalidInput, key)
		}
		if field.PrimaryKey || field == r.model.cacheField {
			return fmt.Errorf("%w: attribute %q cannot be assigned", apperrors.ErrInvalidInput, key)
		}
		if err := field.Set(ctx, r.rv(), value); err != nil {
			return fmt.Errorf("%w: attribute %q: %v", apperrors.ErrInvalidInput, key, err)
		}
	}
	return nil
}

func uploadedData(value any) (*attachment.UploadedData, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *attachment.UploadedData:
		return v, nil
	case attachment.UploadedData:
		return &v, nil
	case map[string]any:
		return uploadedData(v[UploadedDataKey])
	}
	return nil, fmt.Errorf("%w: unsupported upload value %T", apperrors.ErrInvalidInput, value)
}

// Attach stages data as the new attachment of slot. It is validated and
// stored by the next Save.
func (r *Record[O]) Attach(slot string, data *attachment.UploadedData) (*models.Attachment, error) {
	s, err := r.slot(slot)
	if err != nil {
		return nil, err
	}
	a, err := r.model.manager.attachments.Build(s.Kind.Name, data)
	if err != nil {
		return nil, err
	}
	st := r.state(s.Name)
	st.pending = a
	st.rejected = nil
	return a, nil
}

// ==================== Persistence ====================

// Save validates and persists the owner together with its staged uploads,
// in one transaction.
//
// A new owner is only created when every upload is valid. An existing owner
// keeps its field changes even when an upload is invalid; the invalid
// replacement is dropped, the previous attachment kept and Save reports
// false. Errors are only returned for infrastructure failures.
func (r *Record[O]) Save(ctx context.Context, opts SaveOptions) (bool, error) {
	if r.readOnly {
		return false, fmt.Errorf("%w: %s %d", apperrors.ErrReadOnly, r.model.ownerType, r.ID())
	}
	r.errors.Clear()
	isNew := r.IsNew()
	svc := r.model.manager.attachments

	invalid := make(map[string]bool)
	if !opts.SkipValidation {
		for _, s := range r.model.slots {
			st, ok := r.states[s.Name]
			if !ok || st.pending == nil || s.Options.SkipValidation {
				continue
			}
			if !svc.Validate(st.pending) {
				invalid[s.Name] = true
				r.errors.Add(s.Name, "is invalid")
				for field, messages := range st.pending.Errors {
					for _, m := range messages {
						r.errors.Add(s.Name+"."+field, m)
					}
				}
			}
		}

		if v, ok := any(r.value).(Validator); ok {
			if errs := v.Validate(); !errs.Empty() {
				r.errors.Merge(errs)
				return false, nil
			}
		}
		if isNew && len(invalid) > 0 {
			return false, nil
		}
	}

	snapshot := r.cacheColumn()
	ctx = withActive(ctx, r)
	err := database.Transaction(ctx, r.model.manager.db, func(ctx context.Context) error {
		q := database.Conn(ctx, r.model.manager.db)
		if r.model.cacheField != nil {
			q = q.Omit(r.model.cacheField.DBName)
		}
		if err := q.Save(r.value).Error; err != nil {
			return fmt.Errorf("failed to save %s: %w", r.model.ownerType, err)
		}

		for _, s := range r.model.slots {
			st, ok := r.states[s.Name]
			if !ok || st.pending == nil {
				continue
			}
			if invalid[s.Name] {
				st.rejected, st.pending = st.pending, nil
				continue
			}
			if err := r.savePending(ctx, s, st, isNew); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.rollback(isNew, snapshot)
		return false, err
	}
	return len(invalid) == 0, nil
}

// savePending stores the staged upload of s and then destroys the attachment
// it replaces
func (r *Record[O]) savePending(ctx context.Context, s *Slot, st *slotState, isNew bool) error {
	var previous *models.Attachment
	if !isNew {
		var err error
		if previous, err = r.current(ctx, s); err != nil {
			return err
		}
	}

	a := st.pending
	ref := r.Ref()
	a.OwnerType, a.OwnerID = ref.Type, &ref.ID

	svc := r.model.manager.attachments
	if _, err := svc.Save(ctx, a, attachment.SaveOptions{SkipValidation: true}); err != nil {
		return fmt.Errorf("failed to save %s attachment: %w", s.Name, err)
	}
	st.pending = nil
	st.current, st.loaded = a, true

	if previous != nil && previous.ID != a.ID {
		if err := svc.Destroy(ctx, previous); err != nil {
			return fmt.Errorf("failed to destroy replaced %s attachment: %w", s.Name, err)
		}
	}
	return nil
}

// rollback forgets state written inside a failed transaction
func (r *Record[O]) rollback(wasNew bool, cache PathCacheColumn) {
	if wasNew {
		pk := r.model.primary
		_ = pk.Set(context.Background(), r.rv(), reflect.Zero(pk.FieldType).Interface())
	}
	r.setCacheColumn(cache)
	for _, st := range r.states {
		st.loaded, st.current = false, nil
	}
}

// Destroy removes the owner row. Slot attachments are destroyed, or detached
// when the slot is declared with DependentNullify.
func (r *Record[O]) Destroy(ctx context.Context) error {
	if r.readOnly {
		return fmt.Errorf("%w: %s %d", apperrors.ErrReadOnly, r.model.ownerType, r.ID())
	}
	if r.IsNew() {
		return nil
	}

	r.destroying = true
	defer func() { r.destroying = false }()

	svc := r.model.manager.attachments
	ctx = withActive(ctx, r)
	return database.Transaction(ctx, r.model.manager.db, func(ctx context.Context) error {
		for _, s := range r.model.slots {
			a, err := r.current(ctx, s)
			if err != nil {
				return err
			}
			if a == nil {
				continue
			}
			if s.Options.Dependent == DependentNullify {
				err = svc.Detach(ctx, a)
			} else {
				err = svc.Destroy(ctx, a)
			}
			if err != nil {
				return fmt.Errorf("failed to release %s attachment: %w", s.Name, err)
			}
			st := r.state(s.Name)
			st.current, st.pending = nil, nil
		}

		result := database.Conn(ctx, r.model.manager.db).Delete(r.value)
		if result.Error != nil {
			return fmt.Errorf("failed to delete %s: %w", r.model.ownerType, result.Error)
		}
		return nil
	})
}

// DestroyAttachment destroys the attachment of slot and drops any staged
// upload. The path cache marks the slot as empty.
func (r *Record[O]) DestroyAttachment(ctx context.Context, slot string) error {
	s, err := r.slot(slot)
	if err != nil {
		return err
	}
	st := r.state(s.Name)
	st.pending = nil

	a, err := r.current(ctx, s)
	if err != nil {
		return err
	}
	if a == nil {
		_, err := r.UpdatePathCache(ctx, s.Name)
		return err
	}
	return r.model.manager.attachments.Destroy(withActive(ctx, r), a)
}

// Reload reads the owner row again and forgets loaded and staged attachments.
func (r *Record[O]) Reload(ctx context.Context) error {
	id := r.ID()
	if id == 0 {
		return fmt.Errorf("%w: %s has not been saved", apperrors.ErrNotFound, r.model.ownerType)
	}
	fresh, err := r.model.Find(ctx, id)
	if err != nil {
		return err
	}
	*r.value = *fresh.value
	r.states = make(map[string]*slotState)
	r.errors = nil
	return nil
}

// attachmentChanged reacts to a save or destroy of the attachment a in slot s
func (r *Record[O]) attachmentChanged(ctx context.Context, s *Slot, a *models.Attachment, destroyed bool) error {
	st := r.state(s.Name)
	switch {
	case !destroyed:
		st.current, st.loaded = a, true
	case st.loaded && st.current != nil && st.current.ID != a.ID:
		// a replaced attachment went away, its successor stays
	case st.loaded:
		st.current = nil
	}
	_, err := r.UpdatePathCache(ctx, s.Name)
	return err
}
