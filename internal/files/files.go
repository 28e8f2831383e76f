// Package files models the source files handed to the upload pipeline.
package files

import (
	"fmt"
	"math"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// File is a user-selected file held in memory for validation, compression and upload.
type File struct {
	Name     string
	Size     int64
	MimeType string
	Data     []byte
}

// New builds a File from raw bytes, detecting the content type when mimeType is empty.
func New(name string, data []byte, mimeType string) File {
	if mimeType == "" {
		mimeType = DetectMimeType(name, data)
	}
	return File{
		Name:     name,
		Size:     int64(len(data)),
		MimeType: mimeType,
		Data:     data,
	}
}

// Load reads a file from disk.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return New(filepath.Base(path), data, ""), nil
}

// Ext returns the lowercased extension including the leading dot, or "" if the name has none.
func (f File) Ext() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

// IsImage reports whether the declared type is an image type.
func (f File) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/")
}

// DetectMimeType resolves the type by extension first and falls back to content sniffing.
func DetectMimeType(name string, data []byte) string {
	if mimeType := mime.TypeByExtension(filepath.Ext(name)); mimeType != "" {
		// Drop parameters such as "; charset=utf-8" so exact matching works.
		if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
			return mediaType
		}
		return mimeType
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	sniffed := http.DetectContentType(data)
	if mediaType, _, err := mime.ParseMediaType(sniffed); err == nil {
		return mediaType
	}
	return sniffed
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count in binary units with at most two decimals, e.g. "1.5 MB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	value := float64(bytes) / math.Pow(1024, float64(i))
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[i]
}

// Category groups a MIME type into a coarse bucket for display.
func Category(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	case mimeType == "application/pdf":
		return "pdf"
	case strings.Contains(mimeType, "word"):
		return "document"
	case strings.Contains(mimeType, "excel"), strings.Contains(mimeType, "spreadsheet"):
		return "spreadsheet"
	case strings.Contains(mimeType, "powerpoint"), strings.Contains(mimeType, "presentation"):
		return "presentation"
	case strings.Contains(mimeType, "zip"), strings.Contains(mimeType, "rar"), strings.Contains(mimeType, "7z"):
		return "archive"
	case strings.HasPrefix(mimeType, "text/"):
		return "text"
	default:
		return "other"
	}
}
