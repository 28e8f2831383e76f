// Package compress shrinks oversized images before upload.
package compress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	// Additional decoders for formats browsers commonly hand us.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/commons-systems/atelier/internal/files"
)

const (
	// DefaultMaxDimension caps the longer side of a compressed image.
	DefaultMaxDimension = 1920
	// DefaultMaxSizeBytes is the target output size.
	DefaultMaxSizeBytes = 10 * 1024 * 1024

	initialJPEGQuality = 90
	minJPEGQuality     = 40
	qualityStep        = 10
)

var (
	ErrNotImage          = errors.New("not an image")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrTooLarge          = errors.New("image cannot be compressed below the size limit")
)

// Options controls a single compression.
type Options struct {
	MaxSizeBytes int64
	MaxDimension int
	// OnProgress receives values in [0,1]. It may be nil.
	OnProgress func(float64)
}

// Compressor re-encodes images so they fit the configured dimension and size limits.
type Compressor struct {
	defaults Options
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithMaxDimension sets the default longest side in pixels.
func WithMaxDimension(px int) Option {
	return func(c *Compressor) {
		c.defaults.MaxDimension = px
	}
}

// WithMaxSizeBytes sets the default output size target.
func WithMaxSizeBytes(n int64) Option {
	return func(c *Compressor) {
		c.defaults.MaxSizeBytes = n
	}
}

// New creates a Compressor.
func New(opts ...Option) *Compressor {
	c := &Compressor{
		defaults: Options{
			MaxSizeBytes: DefaultMaxSizeBytes,
			MaxDimension: DefaultMaxDimension,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compress returns a smaller copy of file, or file itself when it already fits both limits.
// Any error means the caller should keep using the original.
func (c *Compressor) Compress(ctx context.Context, file files.File, opts Options) (files.File, error) {
	if !file.IsImage() {
		return file, ErrNotImage
	}
	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = c.defaults.MaxSizeBytes
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = c.defaults.MaxDimension
	}
	report := func(p float64) {
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
	}
	report(0)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(file.Data))
	if err != nil {
		return file, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if file.Size <= opts.MaxSizeBytes && cfg.Width <= opts.MaxDimension && cfg.Height <= opts.MaxDimension {
		report(1)
		return file, nil
	}

	src, _, err := image.Decode(bytes.NewReader(file.Data))
	if err != nil {
		return file, fmt.Errorf("failed to decode %s image: %w", format, err)
	}
	report(0.3)
	if err := ctx.Err(); err != nil {
		return file, err
	}

	img := resize(src, opts.MaxDimension)
	report(0.6)
	if err := ctx.Err(); err != nil {
		return file, err
	}

	var out []byte
	var mimeType string
	if format == "png" {
		out, err = encodePNG(img)
		mimeType = "image/png"
	} else {
		out, err = encodeJPEG(ctx, img, opts.MaxSizeBytes, report)
		mimeType = "image/jpeg"
	}
	if err != nil {
		return file, err
	}
	if int64(len(out)) > opts.MaxSizeBytes {
		return file, fmt.Errorf("%w: %s after re-encoding", ErrTooLarge, files.FormatSize(int64(len(out))))
	}
	report(1)

	return files.File{
		Name:     renameFor(file.Name, mimeType),
		Size:     int64(len(out)),
		MimeType: mimeType,
		Data:     out,
	}, nil
}

// resize scales src so neither side exceeds maxDim, keeping the aspect ratio.
func resize(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}
	if w >= h {
		h = max(1, h*maxDim/w)
		w = maxDim
	} else {
		w = max(1, w*maxDim/h)
		h = maxDim
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeJPEG lowers quality until the output fits limit or the minimum quality is reached.
func encodeJPEG(ctx context.Context, img image.Image, limit int64, report func(float64)) ([]byte, error) {
	steps := float64((initialJPEGQuality-minJPEGQuality)/qualityStep + 1)
	var buf bytes.Buffer
	for q, i := initialJPEGQuality, 0; q >= minJPEGQuality; q, i = q-qualityStep, i+1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
		report(0.6 + 0.4*float64(i+1)/steps)
		if int64(buf.Len()) <= limit {
			break
		}
	}
	return buf.Bytes(), nil
}

func renameFor(name, mimeType string) string {
	if mimeType != "image/jpeg" {
		return name
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".jpg" || ext == ".jpeg" {
		return name
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
}
