package compress

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/commons-systems/atelier/internal/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func noise(w, h int) *image.RGBA {
	r := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(r.Intn(256))
	}
	return img
}

func pngFile(t *testing.T, name string, img image.Image) files.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return files.New(name, buf.Bytes(), "image/png")
}

func jpegFile(t *testing.T, name string, img image.Image) files.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return files.New(name, buf.Bytes(), "image/jpeg")
}

func TestCompress_ResizesJPEGKeepingAspectRatio(t *testing.T) {
	in := jpegFile(t, "bodice.jpg", gradient(2400, 1200))

	var progress []float64
	out, err := New().Compress(context.Background(), in, Options{
		OnProgress: func(p float64) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 1920, cfg.Width)
	assert.Equal(t, 960, cfg.Height)
	assert.Equal(t, "bodice.jpg", out.Name)
	assert.Equal(t, "image/jpeg", out.MimeType)
	assert.Equal(t, int64(len(out.Data)), out.Size)

	require.NotEmpty(t, progress)
	assert.Equal(t, 0.0, progress[0])
	assert.Equal(t, 1.0, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress must not go backwards")
	}
}

func TestCompress_PNGStaysPNG(t *testing.T) {
	in := pngFile(t, "pattern.png", gradient(1000, 3000))

	out, err := New(WithMaxDimension(600)).Compress(context.Background(), in, Options{})
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 600, cfg.Height)
	assert.Equal(t, "pattern.png", out.Name)
}

func TestCompress_SmallImageUnchanged(t *testing.T) {
	in := pngFile(t, "button.png", gradient(64, 64))

	var last float64
	out, err := New().Compress(context.Background(), in, Options{OnProgress: func(p float64) { last = p }})
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 1.0, last)
}

func TestCompress_Errors(t *testing.T) {
	c := New()
	ctx := context.Background()

	_, err := c.Compress(ctx, files.New("notes.txt", []byte("hem 2cm"), "text/plain"), Options{})
	assert.ErrorIs(t, err, ErrNotImage)

	svg := files.New("logo.svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`), "image/svg+xml")
	out, err := c.Compress(ctx, svg, Options{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, svg, out, "original returned on failure")

	big := pngFile(t, "noise.png", noise(300, 300))
	_, err = c.Compress(ctx, big, Options{MaxSizeBytes: 1024})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestCompress_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := jpegFile(t, "coat.jpg", gradient(2200, 100))
	out, err := New().Compress(ctx, in, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, in, out)
}

func TestRenameFor(t *testing.T) {
	assert.Equal(t, "scan.jpg", renameFor("scan.webp", "image/jpeg"))
	assert.Equal(t, "scan.JPEG", renameFor("scan.JPEG", "image/jpeg"))
	assert.Equal(t, "scan.png", renameFor("scan.png", "image/png"))
}
