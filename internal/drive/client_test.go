package drive

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/commons-systems/atelier/internal/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadFile_MultipartCreateThenShare(t *testing.T) {
	c, fake := newTestClient(t, staticTokens{token: "tok"}, WithEnvironment("vercel"))

	var mu sync.Mutex
	var progress []float64
	data := []byte(strings.Repeat("lace", 4096))
	res, err := c.UploadFile(context.Background(), files.New("veil.png", data, "image/png"), UploadOptions{
		ParentFolderID: "folder-1",
		OnProgress: func(p float64) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.NoError(t, res.SharingErr)

	assert.Equal(t, "https://drive.google.com/file/d/"+res.FileID+"/view", res.URL)
	assert.Equal(t, "veil.png [vercel]", res.Name)

	fake.mu.Lock()
	stored := fake.files[res.FileID]
	perm := fake.permissions[res.FileID]
	uploadTypes := append([]string(nil), fake.uploadTypes...)
	headers := append([]string(nil), fake.authHeaders...)
	fake.mu.Unlock()

	require.NotNil(t, stored)
	assert.Equal(t, data, stored.content)
	assert.Equal(t, []string{"folder-1"}, stored.meta.Parents)
	assert.Equal(t, "image/png", stored.meta.MimeType)
	assert.Equal(t, []string{"multipart"}, uploadTypes)
	assert.Equal(t, "reader", perm.Role)
	assert.Equal(t, "anyone", perm.Type)
	for _, h := range headers {
		assert.Equal(t, "Bearer tok", h)
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}
}

func TestUploadFile_SharingFailureIsPartialSuccess(t *testing.T) {
	c, fake := newTestClient(t, staticTokens{token: "tok"})
	fake.shareStatus = http.StatusForbidden

	res, err := c.UploadFile(context.Background(), files.New("toile.jpg", []byte("jpeg"), "image/jpeg"), UploadOptions{})
	require.NoError(t, err, "stored bytes must not be reported as a failed upload")
	require.NotNil(t, res)
	assert.NotEmpty(t, res.URL)

	var opErr *OperationError
	require.True(t, errors.As(res.SharingErr, &opErr))
	assert.Equal(t, "share", opErr.Op)
	assert.Equal(t, http.StatusForbidden, opErr.StatusCode)
}

func TestUploadFile_TransportErrorCarriesStatus(t *testing.T) {
	c, fake := newTestClient(t, staticTokens{token: "tok"})
	fake.uploadStatus = http.StatusInternalServerError

	res, err := c.UploadFile(context.Background(), files.New("toile.jpg", []byte("jpeg"), "image/jpeg"), UploadOptions{})
	require.Error(t, err)
	assert.Nil(t, res)

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "upload", opErr.Op)
	assert.Equal(t, http.StatusInternalServerError, opErr.StatusCode)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "upload rejected")
}

func TestUploadFile_RejectedToken(t *testing.T) {
	c, _ := newTestClient(t, staticTokens{token: "expired"})

	_, err := c.UploadFile(context.Background(), files.New("a.txt", []byte("x"), "text/plain"), UploadOptions{})
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestClient_UnauthenticatedMakesNoNetworkCall(t *testing.T) {
	c, fake := newTestClient(t, staticTokens{})
	ctx := context.Background()

	_, err := c.UploadFile(ctx, files.New("a.txt", []byte("x"), "text/plain"), UploadOptions{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = c.ListFolder(ctx, "folder")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = c.DownloadFile(ctx, "id")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, c.DeleteFile(ctx, "id"), ErrUnauthenticated)
	_, err = c.CreateFolder(ctx, "orders", "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = c.StorageQuota(ctx)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	assert.Equal(t, 0, fake.requestCount())
}

func TestListFolder_FollowsPages(t *testing.T) {
	c, fake := newTestClient(t, staticTokens{token: "tok"})
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"} {
		fake.add(name, "image/jpeg", "orders", []byte(name))
	}
	fake.add("elsewhere.jpg", "image/jpeg", "other", []byte("x"))

	got, err := c.ListFolder(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "a.jpg", got[0].Name)
	assert.Equal(t, "e.jpg", got[4].Name)
	assert.Equal(t, int64(5), got[0].Size)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), got[0].CreatedTime.UTC())
	assert.Equal(t, ViewURL(got[0].ID), got[0].URL)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.NotEmpty(t, fake.queries)
	assert.Equal(t, "'orders' in parents and trashed=false", fake.queries[0])
}

func TestDownloadAndDelete(t *testing.T) {
	c, fake := newTestClient(t, staticTokens{token: "tok"})
	id := fake.add("pattern.pdf", "application/pdf", "orders", []byte("%PDF-1.4"))
	ctx := context.Background()

	data, err := c.DownloadFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	require.NoError(t, c.DeleteFile(ctx, id))

	_, err = c.DownloadFile(ctx, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	err = c.DeleteFile(ctx, id)
	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "delete", opErr.Op)
	assert.Equal(t, http.StatusNotFound, opErr.StatusCode)
}

func TestCreateFolder(t *testing.T) {
	c, fake := newTestClient(t, staticTokens{token: "tok"})

	id, err := c.CreateFolder(context.Background(), "Order 1042", "root-folder")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, FolderMimeType, fake.files[id].meta.MimeType)
	assert.Equal(t, "Order 1042", fake.files[id].meta.Name)
	assert.Equal(t, []string{"root-folder"}, fake.files[id].meta.Parents)
}

func TestStorageQuota(t *testing.T) {
	c, fake := newTestClient(t, staticTokens{token: "tok"})
	fake.quota.Limit = 1000
	fake.quota.Usage = 850
	fake.quota.UsageInDriveTrash = 50

	q, err := c.StorageQuota(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), q.Limit)
	assert.Equal(t, int64(50), q.UsageTrash)
	assert.InDelta(t, 85.0, q.UsedPercent(), 0.001)
	assert.True(t, q.NearLimit())

	assert.Equal(t, 0.0, Quota{Usage: 10}.UsedPercent())
}

func TestSyncFolder(t *testing.T) {
	c, fake := newTestClient(t, staticTokens{token: "tok"})
	fake.add("one.txt", "text/plain", "orders", []byte("1"))
	fake.add("sub", FolderMimeType, "orders", nil)
	fake.add("two.txt", "text/plain", "orders", []byte("22"))

	got := map[string]string{}
	n, err := c.SyncFolder(context.Background(), "orders", func(f RemoteFile, data []byte) error {
		got[f.Name] = string(data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]string{"one.txt": "1", "two.txt": "22"}, got)
}

func TestSyncFolder_CallbackErrorStops(t *testing.T) {
	c, fake := newTestClient(t, staticTokens{token: "tok"})
	fake.add("one.txt", "text/plain", "orders", []byte("1"))
	fake.add("two.txt", "text/plain", "orders", []byte("2"))

	boom := errors.New("disk full")
	n, err := c.SyncFolder(context.Background(), "orders", func(RemoteFile, []byte) error { return boom })
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, boom)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "sketch.jpg [local]", DisplayName("sketch.jpg", "local"))
	assert.Equal(t, "sketch.jpg", DisplayName("sketch.jpg", ""))
	// Decomposed accents are normalized to their composed form.
	assert.Equal(t, "r\u00e9sum\u00e9.pdf [prod]", DisplayName("re\u0301sume\u0301.pdf", "prod"))
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `o\'brien`, escapeQuery(`o'brien`))
	assert.Equal(t, `a\\b`, escapeQuery(`a\b`))
}
