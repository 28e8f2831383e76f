package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/commons-systems/atelier/internal/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(name, mimeType string, size int64) files.File {
	return files.File{Name: name, MimeType: mimeType, Size: size}
}

func TestValidate_EmptyFileRejectedRegardlessOfPolicy(t *testing.T) {
	policies := []Policy{
		DefaultPolicy(),
		{},
		{AllowedTypes: []string{"application/octet-stream"}},
	}
	for _, p := range policies {
		outcome := Validate(file("blank.png", "image/png", 0), p)
		assert.Equal(t, StatusInvalid, outcome.Status)
		assert.Contains(t, outcome.Reason, "empty")
	}
}

func TestValidate_TooLargeReportsLimitAndActual(t *testing.T) {
	policy := DefaultPolicy()
	outcome := Validate(file("gown.jpg", "image/jpeg", 12*1024*1024+512*1024), policy)

	require.Equal(t, StatusInvalid, outcome.Status)
	assert.Contains(t, outcome.Reason, "10 MB")
	assert.Contains(t, outcome.Reason, "12.5 MB")
}

func TestValidate_SizeAtLimitAccepted(t *testing.T) {
	policy := DefaultPolicy()
	outcome := Validate(file("gown.jpg", "image/jpeg", policy.MaxSizeBytes), policy)
	assert.Equal(t, StatusValid, outcome.Status)
}

func TestValidate_TypePatterns(t *testing.T) {
	imagesOnly := Policy{AllowedTypes: []string{"image/*"}}

	for _, mt := range []string{"image/png", "image/jpeg", "image/webp"} {
		assert.True(t, Validate(file("ref", mt, 10), imagesOnly).OK(), mt)
	}
	assert.False(t, Validate(file("ref.pdf", "application/pdf", 10), imagesOnly).OK())

	// "image/*" must not match a type that merely starts with "image".
	assert.False(t, Validate(file("x", "imagery/png", 10), imagesOnly).OK())

	byExt := Policy{AllowedTypes: []string{".PDF"}}
	assert.True(t, Validate(file("Invoice.pdf", "application/octet-stream", 10), byExt).OK())
	assert.False(t, Validate(file("invoice.pdf.txt", "text/plain", 10), byExt).OK())

	exact := Policy{AllowedTypes: []string{"text/csv"}}
	assert.True(t, Validate(file("m.csv", "text/csv", 10), exact).OK())
	assert.False(t, Validate(file("m.csv", "text/plain", 10), exact).OK())
}

func TestValidate_RejectionListsAllowedTypes(t *testing.T) {
	outcome := Validate(file("song.mp3", "audio/mpeg", 10), DefaultPolicy())
	require.False(t, outcome.OK())
	assert.Contains(t, outcome.Reason, `"audio/mpeg"`)
	assert.Contains(t, outcome.Reason, "image/*")
}

func TestValidate_ExtensionMismatchWarns(t *testing.T) {
	outcome := Validate(file("fabric.png", "image/jpeg", 100), DefaultPolicy())

	assert.Equal(t, StatusValidWithWarnings, outcome.Status)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "does not match declared type")
}

func TestValidate_ExtensionCheckDisabledOrUnknownType(t *testing.T) {
	p := DefaultPolicy()
	p.RequireExtensionConsistency = false
	assert.Equal(t, StatusValid, Validate(file("fabric.png", "image/jpeg", 100), p).Status)

	// image/x-icon is allowed by image/* but has no registry entry.
	assert.Equal(t, StatusValid, Validate(file("favicon.bin", "image/x-icon", 100), DefaultPolicy()).Status)
}

func TestValidate_ProblematicNames(t *testing.T) {
	names := []string{
		"what?.png",
		"a<b>.png",
		"tab\there.png",
		"con.png",
		"LPT1",
		"bell\u0085.png",
	}
	for _, name := range names {
		outcome := Validate(file(name, "image/png", 10), Policy{AllowedTypes: []string{"image/*"}})
		require.Equal(t, StatusValidWithWarnings, outcome.Status, name)
		assert.Contains(t, outcome.Warnings[0], "problematic characters", name)
	}

	assert.Equal(t, StatusValid, Validate(file("console.png", "image/png", 10), DefaultPolicy()).Status)
}

func TestValidate_Idempotent(t *testing.T) {
	f := file("what?.png", "image/jpeg", 100)
	p := DefaultPolicy()
	assert.Equal(t, Validate(f, p), Validate(f, p))
}

func TestValidate_PDFInspection(t *testing.T) {
	p := DefaultPolicy()
	p.InspectDocuments = true

	broken := files.File{Name: "order.pdf", MimeType: "application/pdf", Data: []byte("not a pdf at all"), Size: 16}
	outcome := Validate(broken, p)
	require.Equal(t, StatusValidWithWarnings, outcome.Status)
	assert.True(t, strings.Contains(outcome.Warnings[0], "could not be read"))

	p.InspectDocuments = false
	assert.Equal(t, StatusValid, Validate(broken, p).Status)
}

func TestValidateBatch_CountExceededFailsFast(t *testing.T) {
	p := DefaultPolicy()
	p.MaxFileCount = 2

	batch := []files.File{
		file("a.png", "image/png", 1),
		file("b.png", "image/png", 0),
		file("c.png", "image/png", 1),
	}
	result, err := ValidateBatch(batch, p)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooManyFiles))
	var countErr *CountError
	require.True(t, errors.As(err, &countErr))
	assert.Equal(t, 3, countErr.Count)
	assert.Equal(t, 2, countErr.Max)
	assert.Empty(t, result.Accepted)
	assert.Empty(t, result.Rejected)
}

func TestValidateBatch_Partitions(t *testing.T) {
	batch := []files.File{
		file("a.png", "image/png", 10),
		file("empty.png", "image/png", 0),
		file("b.jpg", "image/png", 10),
		file("c.exe", "application/x-msdownload", 10),
	}
	result, err := ValidateBatch(batch, DefaultPolicy())
	require.NoError(t, err)

	require.Len(t, result.Accepted, 2)
	assert.Equal(t, "a.png", result.Accepted[0].File.Name)
	assert.Empty(t, result.Accepted[0].Warnings)
	assert.Equal(t, "b.jpg", result.Accepted[1].File.Name)
	assert.Len(t, result.Accepted[1].Warnings, 1)

	require.Len(t, result.Rejected, 2)
	assert.Equal(t, "empty.png", result.Rejected[0].File.Name)
	assert.Equal(t, "c.exe", result.Rejected[1].File.Name)
}

func TestExtensionsFor(t *testing.T) {
	assert.Equal(t, []string{".jpg", ".jpeg"}, ExtensionsFor("image/jpeg"))
	assert.Nil(t, ExtensionsFor("application/x-unknown"))

	exts := ExtensionsFor("image/png")
	exts[0] = ".gif"
	assert.Equal(t, []string{".png"}, ExtensionsFor("image/png"), "registry must not be mutable through the returned slice")
}
