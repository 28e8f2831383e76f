package localstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Attachment is a stored file linked to a tailoring order.
type Attachment struct {
	ID         string
	OrderID    string
	Name       string
	Size       int64
	MimeType   string
	RemoteURL  string
	UploadedAt time.Time
}

// AddAttachments links files to an order in one transaction. Missing ids are generated and
// the stored values are returned.
func (s *Store) AddAttachments(ctx context.Context, orderID string, attachments []Attachment) ([]Attachment, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	out := make([]Attachment, 0, len(attachments))
	for _, a := range attachments {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.UploadedAt.IsZero() {
			a.UploadedAt = time.Now()
		}
		a.OrderID = orderID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (id, order_id, name, size, mime_type, remote_url, uploaded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(order_id, id) DO UPDATE SET
				name = excluded.name,
				size = excluded.size,
				mime_type = excluded.mime_type,
				remote_url = excluded.remote_url,
				uploaded_at = excluded.uploaded_at
		`, a.ID, a.OrderID, a.Name, a.Size, a.MimeType, a.RemoteURL, a.UploadedAt.UnixMilli())
		if err != nil {
			return nil, fmt.Errorf("failed to add attachment %s: %w", a.Name, err)
		}
		out = append(out, a)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit attachments: %w", err)
	}
	return out, nil
}

// ListAttachments returns an order's attachments, oldest first.
func (s *Store) ListAttachments(ctx context.Context, orderID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, name, size, mime_type, remote_url, uploaded_at
		FROM attachments WHERE order_id = ?
		ORDER BY uploaded_at, rowid
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var result []Attachment
	for rows.Next() {
		var a Attachment
		var uploaded int64
		if err := rows.Scan(&a.ID, &a.OrderID, &a.Name, &a.Size, &a.MimeType, &a.RemoteURL, &uploaded); err != nil {
			return nil, fmt.Errorf("failed to scan attachment row: %w", err)
		}
		a.UploadedAt = time.UnixMilli(uploaded)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachment rows: %w", err)
	}
	return result, nil
}

// RemoveAttachment unlinks one attachment from an order. The stored file is not touched.
// It reports whether anything was removed.
func (s *Store) RemoveAttachment(ctx context.Context, orderID, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE order_id = ? AND id = ?`, orderID, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove attachment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove attachment %s: %w", id, err)
	}
	return n > 0, nil
}
