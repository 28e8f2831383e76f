package drive

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ViewBaseURL is the public host for shared file links.
const ViewBaseURL = "https://drive.google.com"

var fileIDPattern = regexp.MustCompile(`/file/d/([^/?#]+)`)

// ViewURL returns the anyone-with-link viewer URL for a file.
func ViewURL(id string) string {
	return fmt.Sprintf("%s/file/d/%s/view", ViewBaseURL, url.PathEscape(id))
}

// DownloadURL derives the download variant of a view URL.
func DownloadURL(viewURL string) string {
	if strings.HasSuffix(viewURL, "/view") {
		return strings.TrimSuffix(viewURL, "/view") + "/download"
	}
	return viewURL
}

// ThumbnailURL returns a square thumbnail link for a file id.
func ThumbnailURL(id string, px int) string {
	if px <= 0 {
		px = 200
	}
	return fmt.Sprintf("%s/thumbnail?id=%s&sz=w%d-h%d", ViewBaseURL, url.QueryEscape(id), px, px)
}

// FileIDFromURL extracts the file id from a view or download URL.
func FileIDFromURL(link string) (string, bool) {
	m := fileIDPattern.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	id, err := url.PathUnescape(m[1])
	if err != nil {
		return "", false
	}
	return id, true
}
