package owner

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/welldanyogia/attachmentfx/internal/attachment"
	"github.com/welldanyogia/attachmentfx/internal/database"
	apperrors "github.com/welldanyogia/attachmentfx/internal/errors"
	"github.com/welldanyogia/attachmentfx/internal/models"
	"github.com/welldanyogia/attachmentfx/internal/owner/pathcache"
	"github.com/welldanyogia/attachmentfx/internal/validator"
)

// What happens to slot attachments when their owner is destroyed
const (
	DependentDestroy = "destroy"
	DependentNullify = "nullify"
)

// DefaultAs is the association prefix of the owner reference columns
const DefaultAs = "owner"

var columnType = reflect.TypeOf(pathcache.Column(nil))

// SlotOptions configure one attachment slot.
type SlotOptions struct {
	// ClassName names the attachment kind. When empty the camelized slot
	// name is looked up nested in the owner type first, e.g. "Member::Photo",
	// then at the top level, e.g. "Photo".
	ClassName string
	// As is the prefix of the owner reference columns on attachment rows
	As string
	// Dependent is DependentDestroy (default) or DependentNullify
	Dependent string
	// SkipValidation saves staged uploads without validating them
	SkipValidation bool
}

// Slot is a declared attachment association of an owner model.
type Slot struct {
	Name    string
	Kind    *attachment.Kind
	Options SlotOptions
}

// ModelOption configures NewModel.
type ModelOption func(*modelConfig)

type slotDecl struct {
	name string
	opts SlotOptions
}

type modelConfig struct {
	ownerType string
	slots     []slotDecl
}

// HasAttachmentFile declares a one-to-one attachment slot.
func HasAttachmentFile(slot string, opts ...SlotOptions) ModelOption {
	var o SlotOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return func(c *modelConfig) {
		c.slots = append(c.slots, slotDecl{name: slot, opts: o})
	}
}

// WithOwnerType overrides the polymorphic owner type, which defaults to the
// gorm schema name of the model.
func WithOwnerType(name string) ModelOption {
	return func(c *modelConfig) {
		c.ownerType = name
	}
}

// Model holds the attachment declarations of the owner type O.
type Model[O any] struct {
	manager    *Manager
	ownerType  string
	schema     *schema.Schema
	primary    *schema.Field
	cacheField *schema.Field
	slots      []*Slot
	byName     map[string]*Slot
}

// NewModel declares the attachment slots of O. Declaration problems, such as
// an unresolvable kind or a duplicate slot, are returned as ConfigError.
func NewModel[O any](m *Manager, opts ...ModelOption) (*Model[O], error) {
	var cfg modelConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	stmt := &gorm.Statement{DB: m.db}
	if err := stmt.Parse(new(O)); err != nil {
		return nil, fmt.Errorf("failed to parse owner model: %w", err)
	}
	sch := stmt.Schema

	ownerType := cfg.ownerType
	if ownerType == "" {
		ownerType = sch.Name
	}

	pk := sch.PrioritizedPrimaryField
	if pk == nil {
		return nil, apperrors.NewConfigError(ownerType, "", "owner model needs a primary key")
	}
	switch pk.FieldType.Kind() {
	case reflect.Uint, reflect.Uint32, reflect.Uint64, reflect.Int, reflect.Int32, reflect.Int64:
	default:
		return nil, apperrors.NewConfigError(ownerType, "", "primary key %s must be an integer", pk.Name)
	}

	model := &Model[O]{
		manager:   m,
		ownerType: ownerType,
		schema:    sch,
		primary:   pk,
		byName:    make(map[string]*Slot),
	}
	if len(cfg.slots) == 0 {
		return nil, apperrors.NewConfigError(ownerType, "", "no attachment slots declared")
	}
	for _, decl := range cfg.slots {
		if err := model.declare(decl); err != nil {
			return nil, err
		}
	}

	if m.cache.Enabled {
		field := sch.LookUpField(m.cache.Column)
		switch {
		case field == nil || field.DBName == "":
			m.log.MissingCacheColumn(ownerType, m.cache.Column)
		case field.FieldType != columnType:
			return nil, apperrors.NewConfigError(ownerType, "", "cache column %s must be of type owner.PathCacheColumn, got %s", field.Name, field.FieldType)
		default:
			model.cacheField = field
		}
	}

	if err := m.register(ownerType, model); err != nil {
		return nil, err
	}
	return model, nil
}

func (mod *Model[O]) declare(decl slotDecl) error {
	if err := validator.ValidateSlotName(decl.name); err != nil {
		return apperrors.NewConfigError(mod.ownerType, decl.name, "%v", err)
	}
	if _, exists := mod.byName[decl.name]; exists {
		return apperrors.NewConfigError(mod.ownerType, decl.name, "slot already declared")
	}

	opts := decl.opts
	if opts.As == "" {
		opts.As = DefaultAs
	}
	if opts.As != DefaultAs {
		return apperrors.NewConfigError(mod.ownerType, decl.name, "attachment rows have no %s_id and %s_type columns", opts.As, opts.As)
	}
	switch opts.Dependent {
	case "":
		opts.Dependent = DependentDestroy
	case DependentDestroy, DependentNullify:
	default:
		return apperrors.NewConfigError(mod.ownerType, decl.name, "unknown dependent option %q", opts.Dependent)
	}

	kind, err := mod.resolveKind(decl.name, opts.ClassName)
	if err != nil {
		return err
	}
	if err := mod.manager.attachments.CheckStorage(kind); err != nil {
		return apperrors.NewConfigError(mod.ownerType, decl.name, "%v", err)
	}
	for _, other := range mod.slots {
		if kind.IsA(other.Kind.Name) || other.Kind.IsA(kind.Name) {
			return apperrors.NewConfigError(mod.ownerType, decl.name, "kind %s overlaps kind %s of slot %s", kind.Name, other.Kind.Name, other.Name)
		}
	}

	s := &Slot{Name: decl.name, Kind: kind, Options: opts}
	mod.slots = append(mod.slots, s)
	mod.byName[s.Name] = s
	return nil
}

func (mod *Model[O]) resolveKind(slot, className string) (*attachment.Kind, error) {
	registry := mod.manager.attachments.Registry()
	if className != "" {
		if k, ok := registry.Lookup(className); ok {
			return k, nil
		}
		return nil, apperrors.NewConfigError(mod.ownerType, slot, "unknown attachment kind %q", className)
	}

	name := camelize(slot)
	nested := mod.ownerType + "::" + name
	if k, ok := registry.Lookup(nested); ok {
		return k, nil
	}
	if k, ok := registry.Lookup(name); ok {
		return k, nil
	}
	return nil, apperrors.NewConfigError(mod.ownerType, slot, "class name not provided and neither %s nor %s is a declared kind", nested, name)
}

// camelize turns a slot name into a kind name, e.g. "cover_image" -> "CoverImage"
func camelize(slot string) string {
	caser := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, part := range strings.Split(slot, "_") {
		b.WriteString(caser.String(part))
	}
	return b.String()
}

// OwnerType returns the polymorphic type stored on attachment rows.
func (mod *Model[O]) OwnerType() string {
	return mod.ownerType
}

// Slots returns the declared slot names in declaration order.
func (mod *Model[O]) Slots() []string {
	names := make([]string, len(mod.slots))
	for i, s := range mod.slots {
		names[i] = s.Name
	}
	return names
}

// Slot returns the declaration of name.
func (mod *Model[O]) Slot(name string) (*Slot, bool) {
	s, ok := mod.byName[name]
	return s, ok
}

// HasCacheColumn reports whether paths are cached on the owner row.
func (mod *Model[O]) HasCacheColumn() bool {
	return mod.cacheField != nil
}

// New wraps value in a Record. A nil value starts an empty owner.
func (mod *Model[O]) New(value *O) *Record[O] {
	if value == nil {
		value = new(O)
	}
	return &Record[O]{
		model:  mod,
		value:  value,
		states: make(map[string]*slotState),
	}
}

// Find loads the owner with id.
func (mod *Model[O]) Find(ctx context.Context, id uint) (*Record[O], error) {
	var value O
	if err := database.Conn(ctx, mod.manager.db).First(&value, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s %d", apperrors.ErrNotFound, mod.ownerType, id)
		}
		return nil, fmt.Errorf("failed to find %s: %w", mod.ownerType, err)
	}
	return mod.New(&value), nil
}

// slotFor returns the slot whose kind a belongs to
func (mod *Model[O]) slotFor(a *models.Attachment) (*Slot, bool) {
	kind, ok := mod.manager.attachments.Registry().Lookup(a.Type)
	if !ok {
		return nil, false
	}
	for _, s := range mod.slots {
		if kind.IsA(s.Kind.Name) {
			return s, true
		}
	}
	return nil, false
}

// refresh updates the cached paths of the owner of a. The record that
// started the change is updated in place; any other owner is loaded.
func (mod *Model[O]) refresh(ctx context.Context, ownerID uint, a *models.Attachment, destroyed bool) error {
	s, ok := mod.slotFor(a)
	if !ok {
		return nil
	}
	if active, ok := activeFrom(ctx, mod.ownerType, ownerID); ok {
		if r, ok := active.(*Record[O]); ok {
			return r.attachmentChanged(ctx, s, a, destroyed)
		}
	}
	if mod.cacheField == nil {
		return nil
	}

	r, err := mod.Find(ctx, ownerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	return r.attachmentChanged(ctx, s, a, destroyed)
}
