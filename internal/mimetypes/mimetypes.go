// Package mimetypes resolves the content type of uploaded files.
//
// Lookups go through an ordered list of providers: the extension database
// first, then content sniffing. The first provider with an answer wins.
package mimetypes

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	apperrors "github.com/welldanyogia/attachmentfx/internal/errors"
)

// ImageToken may be used in content type lists to stand for every image type.
const ImageToken = "image"

// ImageTypes are the content types accepted for ImageToken.
var ImageTypes = []string{
	"image/jpeg", "image/pjpeg", "image/jpg",
	"image/gif",
	"image/png", "image/x-png",
	"image/bmp", "image/x-bmp", "image/x-ms-bmp", "image/x-windows-bmp",
	"image/webp",
}

const octetStream = "application/octet-stream"

// Provider resolves a content type from a filename and, optionally, its data.
type Provider interface {
	Name() string
	Lookup(filename string, data []byte) (string, bool)
}

// ExtensionProvider looks the extension up in the system MIME database.
type ExtensionProvider struct{}

// Name implements Provider
func (ExtensionProvider) Name() string { return "extension" }

// Lookup implements Provider
func (ExtensionProvider) Lookup(filename string, _ []byte) (string, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return "", false
	}
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "", false
	}
	return Normalize(ct), true
}

// SniffProvider detects the content type from the file's leading bytes.
type SniffProvider struct{}

// Name implements Provider
func (SniffProvider) Name() string { return "sniff" }

// Lookup implements Provider
func (SniffProvider) Lookup(_ string, data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	detected := mimetype.Detect(data)
	if detected.Is(octetStream) {
		return "", false
	}
	return Normalize(detected.String()), true
}

// Resolver tries its providers in order.
type Resolver struct {
	providers []Provider
}

// NewResolver creates a Resolver. Without providers the extension database is
// consulted before content sniffing.
func NewResolver(providers ...Provider) *Resolver {
	if len(providers) == 0 {
		providers = []Provider{ExtensionProvider{}, SniffProvider{}}
	}
	return &Resolver{providers: providers}
}

// ContentTypeFor returns the content type for filename. data may be nil, in
// which case only filename based providers can answer.
func (r *Resolver) ContentTypeFor(filename string, data []byte) (string, error) {
	for _, p := range r.providers {
		if ct, ok := p.Lookup(filename, data); ok {
			return ct, nil
		}
	}
	return "", fmt.Errorf("%w for '%s'", apperrors.ErrUnknownContentType, filepath.Base(filename))
}

var defaultResolver = NewResolver()

// ContentTypeFor resolves filename with the default providers.
func ContentTypeFor(filename string, data []byte) (string, error) {
	return defaultResolver.ContentTypeFor(filename, data)
}

// Normalize strips parameters and lowercases a content type,
// e.g. "Text/Plain; charset=utf-8" -> "text/plain".
func Normalize(contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// Expand replaces ImageToken with ImageTypes and normalizes the rest.
func Expand(contentTypes []string) []string {
	var out []string
	for _, ct := range contentTypes {
		if ct == ImageToken {
			out = append(out, ImageTypes...)
			continue
		}
		out = append(out, Normalize(ct))
	}
	return out
}

// IsImage reports whether contentType is one of ImageTypes.
func IsImage(contentType string) bool {
	ct := Normalize(contentType)
	for _, t := range ImageTypes {
		if t == ct {
			return true
		}
	}
	return false
}
