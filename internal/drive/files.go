package drive

import (
	"context"
	"fmt"
	"io"
	"time"

	drivev3 "google.golang.org/api/drive/v3"
)

// RemoteFile is a stored Drive object.
type RemoteFile struct {
	ID          string
	Name        string
	MimeType    string
	Size        int64
	CreatedTime time.Time
	Parents     []string
	URL         string
}

// IsFolder reports whether the object is a Drive folder.
func (f RemoteFile) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

const listPageSize = 100

// ListFolder returns the non-trashed children of folderID, following every result page.
func (c *Client) ListFolder(ctx context.Context, folderID string) ([]RemoteFile, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))
	call := c.svc.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name, mimeType, size, createdTime, parents)").
		PageSize(listPageSize).
		Context(ctx)
	if c.sharedDrives {
		call = call.SupportsAllDrives(true).IncludeItemsFromAllDrives(true)
	}

	var out []RemoteFile
	pageToken := ""
	for {
		list, err := call.PageToken(pageToken).Do()
		if err != nil {
			return nil, wrapError("list", err)
		}
		for _, f := range list.Files {
			out = append(out, toRemoteFile(f))
		}
		if list.NextPageToken == "" {
			return out, nil
		}
		pageToken = list.NextPageToken
	}
}

// DownloadFile returns the content of a stored file.
func (c *Client) DownloadFile(ctx context.Context, id string) ([]byte, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	call := c.svc.Files.Get(id).Context(ctx)
	if c.sharedDrives {
		call = call.SupportsAllDrives(true)
	}
	resp, err := call.Download()
	if err != nil {
		return nil, wrapError("download", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &OperationError{Op: "download", StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
	}
	return data, nil
}

// DeleteFile permanently removes a stored file.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	if err := c.requireAuth(); err != nil {
		return err
	}
	call := c.svc.Files.Delete(id).Context(ctx)
	if c.sharedDrives {
		call = call.SupportsAllDrives(true)
	}
	return wrapError("delete", call.Do())
}

// CreateFolder creates a folder, under parentID when it is not empty, and returns its id.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := c.requireAuth(); err != nil {
		return "", err
	}
	meta := &drivev3.File{Name: name, MimeType: FolderMimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	call := c.svc.Files.Create(meta).Fields("id").Context(ctx)
	if c.sharedDrives {
		call = call.SupportsAllDrives(true)
	}
	created, err := call.Do()
	if err != nil {
		return "", wrapError("create folder", err)
	}
	return created.Id, nil
}

func toRemoteFile(f *drivev3.File) RemoteFile {
	rf := RemoteFile{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     f.Size,
		Parents:  f.Parents,
		URL:      ViewURL(f.Id),
	}
	if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
		rf.CreatedTime = t
	}
	return rf
}
