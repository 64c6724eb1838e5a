// Package imaging resizes uploaded images and renders thumbnail variants.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"regexp"
	"strconv"

	"github.com/nfnt/resize"
)

// ErrUnsupportedFormat is returned for data that is not a gif, jpeg or png image.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Mode controls how a geometry is applied.
type Mode int

const (
	// Fit scales the image to fit the box, keeping its aspect ratio.
	Fit Mode = iota
	// Shrink behaves like Fit but never enlarges ("WxH>").
	Shrink
	// Exact forces the given dimensions ("WxH!").
	Exact
)

// Geometry is a parsed geometry string such as "640x480>", "100x" or "x50".
// A zero Width or Height is derived from the aspect ratio.
type Geometry struct {
	Width  uint
	Height uint
	Mode   Mode
}

var geometryPattern = regexp.MustCompile(`^(\d*)x(\d*)([>!]?)$`)

// ParseGeometry parses geometry strings of the form WxH, WxH>, WxH!, Wx and xH.
func ParseGeometry(s string) (Geometry, error) {
	m := geometryPattern.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "") {
		return Geometry{}, fmt.Errorf("invalid geometry %q", s)
	}

	var g Geometry
	if m[1] != "" {
		w, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			return Geometry{}, fmt.Errorf("invalid geometry width %q: %w", s, err)
		}
		g.Width = uint(w)
	}
	if m[2] != "" {
		h, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil {
			return Geometry{}, fmt.Errorf("invalid geometry height %q: %w", s, err)
		}
		g.Height = uint(h)
	}

	switch m[3] {
	case ">":
		g.Mode = Shrink
	case "!":
		if g.Width == 0 || g.Height == 0 {
			return Geometry{}, fmt.Errorf("exact geometry %q needs both dimensions", s)
		}
		g.Mode = Exact
	}
	return g, nil
}

// String renders the geometry back to its textual form.
func (g Geometry) String() string {
	s := ""
	if g.Width > 0 {
		s += strconv.FormatUint(uint64(g.Width), 10)
	}
	s += "x"
	if g.Height > 0 {
		s += strconv.FormatUint(uint64(g.Height), 10)
	}
	switch g.Mode {
	case Shrink:
		s += ">"
	case Exact:
		s += "!"
	}
	return s
}

// Size computes the target dimensions for a source image of w x h.
func (g Geometry) Size(w, h int) (uint, uint) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if g.Mode == Exact {
		return g.Width, g.Height
	}

	scale := math.Inf(1)
	if g.Width > 0 {
		scale = float64(g.Width) / float64(w)
	}
	if g.Height > 0 {
		scale = math.Min(scale, float64(g.Height)/float64(h))
	}
	if g.Mode == Shrink && scale >= 1 {
		return uint(w), uint(h)
	}

	nw := uint(math.Max(1, math.Round(float64(w)*scale)))
	nh := uint(math.Max(1, math.Round(float64(h)*scale)))
	return nw, nh
}

// Result is an encoded image with its dimensions.
type Result struct {
	Data   []byte
	Width  int
	Height int
	Format string
}

// Dimensions returns the size and format of an encoded image without decoding
// the pixel data.
func Dimensions(data []byte) (int, int, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// Resize decodes data, applies geometry and re-encodes the image in its
// original format.
func Resize(data []byte, g Geometry) (*Result, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	bounds := src.Bounds()
	w, h := g.Size(bounds.Dx(), bounds.Dy())
	dst := src
	if int(w) != bounds.Dx() || int(h) != bounds.Dy() {
		dst = resize.Resize(w, h, src, resize.Lanczos3)
	}

	var buf bytes.Buffer
	switch format {
	case "gif":
		err = gif.Encode(&buf, dst, nil)
	case "jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(&buf, dst)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s image: %w", format, err)
	}

	out := dst.Bounds()
	return &Result{
		Data:   buf.Bytes(),
		Width:  out.Dx(),
		Height: out.Dy(),
		Format: format,
	}, nil
}
