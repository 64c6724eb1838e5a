package attachment

import (
	"maps"
	"slices"
	"sort"

	apperrors "github.com/welldanyogia/attachmentfx/internal/errors"
	"github.com/welldanyogia/attachmentfx/internal/imaging"
	"github.com/welldanyogia/attachmentfx/internal/logger"
	"github.com/welldanyogia/attachmentfx/internal/mimetypes"
	"github.com/welldanyogia/attachmentfx/internal/storage"
	"github.com/welldanyogia/attachmentfx/internal/validator"
)

// Size limits applied when a kind does not set its own
const (
	DefaultMinSize int64 = 1
	DefaultMaxSize int64 = 1024 * 1024
)

// DefaultPathPrefix is where files are stored below the application root
const DefaultPathPrefix = "public/attachment_files"

// OwnerOptions configure the owner reference of a kind.
type OwnerOptions struct {
	// Touch is accepted for compatibility and ignored: touching the owner from
	// the attachment would save the owner recursively.
	Touch bool
}

// Options configure an attachment kind. Zero values inherit from the parent
// kind or the registry defaults.
type Options struct {
	Storage        string
	PathPrefix     string
	ContentTypes   []string
	MinSize        int64
	MaxSize        int64
	ResizeTo       string
	Thumbnails     map[string]string
	ThumbnailKind  string
	ReportErrorsOn string
	Owner          OwnerOptions
}

// merge returns o with every zero field taken from base
func (o Options) merge(base Options) Options {
	out := o
	if out.Storage == "" {
		out.Storage = base.Storage
	}
	if out.PathPrefix == "" {
		out.PathPrefix = base.PathPrefix
	}
	if out.ContentTypes == nil {
		out.ContentTypes = slices.Clone(base.ContentTypes)
	}
	if out.MinSize == 0 {
		out.MinSize = base.MinSize
	}
	if out.MaxSize == 0 {
		out.MaxSize = base.MaxSize
	}
	if out.ResizeTo == "" {
		out.ResizeTo = base.ResizeTo
	}
	if out.Thumbnails == nil {
		out.Thumbnails = maps.Clone(base.Thumbnails)
	}
	if out.ThumbnailKind == "" {
		out.ThumbnailKind = base.ThumbnailKind
	}
	if out.ReportErrorsOn == "" {
		out.ReportErrorsOn = base.ReportErrorsOn
	}
	return out
}

// Kind is a resolved attachment type. Attachment rows store the kind name in
// their type column.
type Kind struct {
	Name    string
	Parent  *Kind
	Options Options

	contentTypes []string
	resize       *imaging.Geometry
	thumbnails   map[string]imaging.Geometry
}

// IsA reports whether k is name or descends from it.
func (k *Kind) IsA(name string) bool {
	for kind := k; kind != nil; kind = kind.Parent {
		if kind.Name == name {
			return true
		}
	}
	return false
}

// Thumbnailable reports whether the kind renders thumbnail variants.
func (k *Kind) Thumbnailable() bool {
	return len(k.thumbnails) > 0
}

// ThumbnailVariants returns the variant names in a stable order.
func (k *Kind) ThumbnailVariants() []string {
	variants := make([]string, 0, len(k.thumbnails))
	for v := range k.thumbnails {
		variants = append(variants, v)
	}
	sort.Strings(variants)
	return variants
}

// ContentTypes returns the accepted content types with ImageToken expanded.
// An empty list accepts anything.
func (k *Kind) ContentTypes() []string {
	return k.contentTypes
}

// Registry holds every declared kind.
type Registry struct {
	defaults Options
	kinds    map[string]*Kind
	log      *logger.EventLogger
}

// NewRegistry creates a Registry whose root kinds inherit defaults.
func NewRegistry(defaults Options, log *logger.EventLogger) *Registry {
	if log == nil {
		log = logger.NewEventLogger(nil)
	}
	defaults = defaults.merge(Options{
		Storage:    storage.FileSystem,
		PathPrefix: DefaultPathPrefix,
		MinSize:    DefaultMinSize,
		MaxSize:    DefaultMaxSize,
	})
	return &Registry{
		defaults: defaults,
		kinds:    make(map[string]*Kind),
		log:      log,
	}
}

// Define declares a root kind.
func (r *Registry) Define(name string, opts Options) (*Kind, error) {
	return r.define(name, nil, opts)
}

// DefineChild declares a kind inheriting the options of parent.
func (r *Registry) DefineChild(name, parent string, opts Options) (*Kind, error) {
	p, ok := r.kinds[parent]
	if !ok {
		return nil, apperrors.NewConfigError(name, "", "unknown parent kind %q", parent)
	}
	return r.define(name, p, opts)
}

func (r *Registry) define(name string, parent *Kind, opts Options) (*Kind, error) {
	if err := validator.ValidateKindName(name); err != nil {
		return nil, apperrors.NewConfigError(name, "", "invalid kind name: %v", err)
	}
	if _, exists := r.kinds[name]; exists {
		return nil, apperrors.NewConfigError(name, "", "kind already defined")
	}

	base := r.defaults
	if parent != nil {
		base = parent.Options
	}
	resolved := opts.merge(base)

	if opts.Owner.Touch {
		r.log.IgnoredOption(name, "owner.touch", "touching the owner would save it recursively")
		resolved.Owner.Touch = false
	}

	switch resolved.Storage {
	case storage.FileSystem, storage.DBFile:
	default:
		return nil, apperrors.NewConfigError(name, "", "unknown storage %q", resolved.Storage)
	}
	if resolved.MinSize < 0 || resolved.MaxSize < resolved.MinSize {
		return nil, apperrors.NewConfigError(name, "", "invalid size range %d..%d", resolved.MinSize, resolved.MaxSize)
	}

	kind := &Kind{
		Name:         name,
		Parent:       parent,
		Options:      resolved,
		contentTypes: mimetypes.Expand(resolved.ContentTypes),
		thumbnails:   make(map[string]imaging.Geometry, len(resolved.Thumbnails)),
	}

	if resolved.ResizeTo != "" {
		g, err := imaging.ParseGeometry(resolved.ResizeTo)
		if err != nil {
			return nil, apperrors.NewConfigError(name, "", "resize_to: %v", err)
		}
		kind.resize = &g
	}
	for variant, geometry := range resolved.Thumbnails {
		if variant == "" {
			return nil, apperrors.NewConfigError(name, "", "thumbnail variant name cannot be empty")
		}
		g, err := imaging.ParseGeometry(geometry)
		if err != nil {
			return nil, apperrors.NewConfigError(name, "", "thumbnail %q: %v", variant, err)
		}
		kind.thumbnails[variant] = g
	}
	if resolved.ThumbnailKind != "" && resolved.ThumbnailKind != name {
		if _, ok := r.kinds[resolved.ThumbnailKind]; !ok {
			return nil, apperrors.NewConfigError(name, "", "unknown thumbnail kind %q", resolved.ThumbnailKind)
		}
	}

	r.kinds[name] = kind
	return kind, nil
}

// Lookup returns the kind registered under name.
func (r *Registry) Lookup(name string) (*Kind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

// ThumbnailKind returns the kind used for thumbnails of k.
func (r *Registry) ThumbnailKind(k *Kind) *Kind {
	if k.Options.ThumbnailKind == "" {
		return k
	}
	if tk, ok := r.kinds[k.Options.ThumbnailKind]; ok {
		return tk
	}
	return k
}

// Descendants returns name and the names of every kind inheriting from it,
// sorted. Queries use it to match rows of subtypes.
func (r *Registry) Descendants(name string) []string {
	var names []string
	for n, k := range r.kinds {
		if k.IsA(name) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Names returns every registered kind name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for n := range r.kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
