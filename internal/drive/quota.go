package drive

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// QuotaWarningPercent is the usage above which callers should warn the user.
const QuotaWarningPercent = 80.0

// Quota is the storage usage of the authorized account.
type Quota struct {
	Limit      int64 // zero means unlimited
	Usage      int64
	UsageDrive int64
	UsageTrash int64
}

// UsedPercent returns usage as a percentage of the limit, or 0 for unlimited accounts.
func (q Quota) UsedPercent() float64 {
	if q.Limit <= 0 {
		return 0
	}
	return float64(q.Usage) / float64(q.Limit) * 100
}

// NearLimit reports whether usage is above QuotaWarningPercent.
func (q Quota) NearLimit() bool {
	return q.UsedPercent() > QuotaWarningPercent
}

// StorageQuota fetches the account's storage usage.
func (c *Client) StorageQuota(ctx context.Context) (*Quota, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	about, err := c.svc.About.Get().Fields("storageQuota").Context(ctx).Do()
	if err != nil {
		return nil, wrapError("quota", err)
	}
	if about.StorageQuota == nil {
		return nil, &OperationError{Op: "quota", Err: errors.New("response did not include storageQuota")}
	}
	return &Quota{
		Limit:      about.StorageQuota.Limit,
		Usage:      about.StorageQuota.Usage,
		UsageDrive: about.StorageQuota.UsageInDrive,
		UsageTrash: about.StorageQuota.UsageInDriveTrash,
	}, nil
}

// SyncFolder downloads every file in folderID and hands it to fn. Download failures are
// logged and reported together at the end; an error from fn stops the sync.
func (c *Client) SyncFolder(ctx context.Context, folderID string, fn func(RemoteFile, []byte) error) (int, error) {
	remote, err := c.ListFolder(ctx, folderID)
	if err != nil {
		return 0, err
	}

	synced := 0
	var failures []error
	for _, f := range remote {
		if f.IsFolder() {
			continue
		}
		data, err := c.DownloadFile(ctx, f.ID)
		if err != nil {
			if ctx.Err() != nil {
				return synced, ctx.Err()
			}
			log.Printf("WARNING: failed to download %s (%s): %v", f.Name, f.ID, err)
			failures = append(failures, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		if err := fn(f, data); err != nil {
			return synced, fmt.Errorf("failed to store %s: %w", f.Name, err)
		}
		synced++
	}
	return synced, errors.Join(failures...)
}
