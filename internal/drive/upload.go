package drive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/commons-systems/atelier/internal/files"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// UploadOptions controls a single upload.
type UploadOptions struct {
	ParentFolderID string
	// OnProgress receives the fraction of bytes sent, in [0,1]. It may be nil.
	OnProgress func(float64)
}

// UploadResult describes a stored file. A non-nil SharingErr means the bytes are stored
// but the anyone-with-link grant failed, so URL is not yet publicly viewable.
type UploadResult struct {
	FileID     string
	Name       string
	URL        string
	SharingErr error
}

// UploadFile stores file with a single multipart request and then shares it with anyone
// holding the link.
func (c *Client) UploadFile(ctx context.Context, file files.File, opts UploadOptions) (*UploadResult, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}

	meta := &drivev3.File{
		Name:     DisplayName(file.Name, c.environment),
		MimeType: file.MimeType,
	}
	if opts.ParentFolderID != "" {
		meta.Parents = []string{opts.ParentFolderID}
	}

	body := newProgressReader(bytes.NewReader(file.Data), int64(len(file.Data)), opts.OnProgress)
	call := c.svc.Files.Create(meta).
		Media(body, googleapi.ContentType(file.MimeType), googleapi.ChunkSize(0)).
		Fields("id", "name").
		Context(ctx)
	if c.sharedDrives {
		call = call.SupportsAllDrives(true)
	}

	created, err := call.Do()
	if err != nil {
		return nil, wrapError("upload", err)
	}
	if created.Id == "" {
		return nil, &OperationError{Op: "upload", Err: errors.New("response did not include a file id")}
	}
	body.finish()

	result := &UploadResult{
		FileID: created.Id,
		Name:   created.Name,
		URL:    ViewURL(created.Id),
	}
	if err := c.ShareWithAnyone(ctx, created.Id); err != nil {
		result.SharingErr = err
	}
	return result, nil
}

// ShareWithAnyone grants read access to anyone with the link.
func (c *Client) ShareWithAnyone(ctx context.Context, fileID string) error {
	if err := c.requireAuth(); err != nil {
		return err
	}
	call := c.svc.Permissions.Create(fileID, &drivev3.Permission{
		Role: "reader",
		Type: "anyone",
	}).Context(ctx)
	if c.sharedDrives {
		call = call.SupportsAllDrives(true)
	}
	if _, err := call.Do(); err != nil {
		return wrapError("share", err)
	}
	return nil
}

// progressReader reports the fraction of the body consumed by the transport.
type progressReader struct {
	r          io.Reader
	total      int64
	onProgress func(float64)

	mu   sync.Mutex
	read int64
	last float64
}

func newProgressReader(r io.Reader, total int64, onProgress func(float64)) *progressReader {
	return &progressReader{r: r, total: total, onProgress: onProgress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		p.report(float64(p.read) / float64(p.total))
		p.mu.Unlock()
	}
	return n, err
}

func (p *progressReader) finish() {
	p.mu.Lock()
	p.report(1)
	p.mu.Unlock()
}

// report must be called with mu held.
func (p *progressReader) report(f float64) {
	if p.onProgress == nil {
		return
	}
	if f > 1 || p.total <= 0 {
		f = 1
	}
	if f <= p.last {
		return
	}
	p.last = f
	p.onProgress(f)
}
