package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"
	drivev3 "google.golang.org/api/drive/v3"
)

type staticTokens struct {
	token string
}

func (s staticTokens) Token() (*oauth2.Token, error) {
	if s.token == "" {
		return nil, fmt.Errorf("no token")
	}
	return &oauth2.Token{AccessToken: s.token}, nil
}

func (s staticTokens) IsAuthenticated() bool {
	return s.token != ""
}

type storedFile struct {
	meta    drivev3.File
	content []byte
}

// fakeDrive is an in-memory stand-in for the Drive v3 REST surface the client uses.
type fakeDrive struct {
	mu           sync.Mutex
	nextID       int
	files        map[string]*storedFile
	order        []string
	requests     int
	authHeaders  []string
	permissions  map[string]drivev3.Permission
	queries      []string
	uploadTypes  []string
	pageSize     int
	shareStatus  int
	uploadStatus int
	quota        drivev3.AboutStorageQuota
	acceptToken  string
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		files:       make(map[string]*storedFile),
		permissions: make(map[string]drivev3.Permission),
		pageSize:    2,
		acceptToken: "tok",
	}
}

func (f *fakeDrive) add(name, mimeType, parent string, content []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("file-%d", f.nextID)
	f.files[id] = &storedFile{
		meta: drivev3.File{
			Id:          id,
			Name:        name,
			MimeType:    mimeType,
			Size:        int64(len(content)),
			Parents:     []string{parent},
			CreatedTime: "2026-02-01T10:00:00Z",
		},
		content: content,
	}
	f.order = append(f.order, id)
	return id
}

func (f *fakeDrive) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"code": code, "message": msg},
	})
}

func (f *fakeDrive) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests++
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+f.acceptToken {
		f.writeError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}

	path := r.URL.Path
	if strings.HasSuffix(path, "/about") {
		f.writeJSON(w, &drivev3.About{StorageQuota: &f.quota})
		return
	}

	idx := strings.LastIndex(path, "/files")
	if idx < 0 {
		http.NotFound(w, r)
		return
	}
	rest := strings.Trim(path[idx+len("/files"):], "/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "" && r.Method == http.MethodPost && r.URL.Query().Get("uploadType") != "":
		f.handleUpload(w, r)
	case rest == "" && r.Method == http.MethodPost:
		f.handleCreateFolder(w, r)
	case rest == "" && r.Method == http.MethodGet:
		f.handleList(w, r)
	case len(parts) == 2 && parts[1] == "permissions" && r.Method == http.MethodPost:
		f.handleShare(w, r, parts[0])
	case len(parts) == 1 && r.Method == http.MethodGet && r.URL.Query().Get("alt") == "media":
		f.handleDownload(w, parts[0])
	case len(parts) == 1 && r.Method == http.MethodDelete:
		f.handleDelete(w, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeDrive) handleUpload(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.uploadTypes = append(f.uploadTypes, r.URL.Query().Get("uploadType"))
	status := f.uploadStatus
	f.mu.Unlock()

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		f.writeError(w, http.StatusBadRequest, "expected multipart body")
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		f.writeError(w, http.StatusBadRequest, "missing metadata part")
		return
	}
	var meta drivev3.File
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		f.writeError(w, http.StatusBadRequest, "bad metadata")
		return
	}
	mediaPart, err := mr.NextPart()
	if err != nil {
		f.writeError(w, http.StatusBadRequest, "missing media part")
		return
	}
	content, err := io.ReadAll(mediaPart)
	if err != nil {
		f.writeError(w, http.StatusBadRequest, "unreadable media")
		return
	}

	if status != 0 {
		f.writeError(w, status, "upload rejected")
		return
	}

	parent := ""
	if len(meta.Parents) > 0 {
		parent = meta.Parents[0]
	}
	id := f.add(meta.Name, meta.MimeType, parent, content)
	f.writeJSON(w, &drivev3.File{Id: id, Name: meta.Name})
}

func (f *fakeDrive) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var meta drivev3.File
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		f.writeError(w, http.StatusBadRequest, "bad metadata")
		return
	}
	parent := ""
	if len(meta.Parents) > 0 {
		parent = meta.Parents[0]
	}
	id := f.add(meta.Name, meta.MimeType, parent, nil)
	f.writeJSON(w, &drivev3.File{Id: id})
}

func (f *fakeDrive) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	var matched []*drivev3.File
	for _, id := range f.order {
		sf, ok := f.files[id]
		if !ok {
			continue
		}
		if len(sf.meta.Parents) > 0 && strings.Contains(q, "'"+sf.meta.Parents[0]+"' in parents") {
			m := sf.meta
			matched = append(matched, &m)
		}
	}

	start, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
	end := start + f.pageSize
	list := &drivev3.FileList{}
	if end < len(matched) {
		list.NextPageToken = strconv.Itoa(end)
	} else {
		end = len(matched)
	}
	if start < end {
		list.Files = matched[start:end]
	}
	f.writeJSON(w, list)
}

func (f *fakeDrive) handleShare(w http.ResponseWriter, r *http.Request, id string) {
	f.mu.Lock()
	status := f.shareStatus
	f.mu.Unlock()
	if status != 0 {
		f.writeError(w, status, "The user does not have sufficient permissions for this file.")
		return
	}
	var perm drivev3.Permission
	if err := json.NewDecoder(r.Body).Decode(&perm); err != nil {
		f.writeError(w, http.StatusBadRequest, "bad permission")
		return
	}
	f.mu.Lock()
	f.permissions[id] = perm
	f.mu.Unlock()
	f.writeJSON(w, &drivev3.Permission{Id: "anyoneWithLink", Role: perm.Role, Type: perm.Type})
}

func (f *fakeDrive) handleDownload(w http.ResponseWriter, id string) {
	f.mu.Lock()
	sf, ok := f.files[id]
	f.mu.Unlock()
	if !ok {
		f.writeError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	w.Header().Set("Content-Type", sf.meta.MimeType)
	_, _ = w.Write(sf.content)
}

func (f *fakeDrive) handleDelete(w http.ResponseWriter, id string) {
	f.mu.Lock()
	_, ok := f.files[id]
	delete(f.files, id)
	f.mu.Unlock()
	if !ok {
		f.writeError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeDrive) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// newTestClient starts the fake and returns a client pointed at it.
func newTestClient(t *testing.T, tokens TokenSource, opts ...Option) (*Client, *fakeDrive) {
	t.Helper()
	fake := newFakeDrive()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithEndpoint(srv.URL + "/drive/v3/"), WithHTTPClient(srv.Client())}, opts...)
	c, err := NewClient(context.Background(), tokens, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, fake
}
