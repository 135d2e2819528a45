package store

import (
	"context"
	"fmt"
	"time"
)

// Entry is one queued mutation as persisted. Callbacks are not stored.
type Entry struct {
	Seq       int64
	ID        string
	Method    string
	Path      string
	Body      string
	Timeout   time.Duration
	Return    int
	NewMap    bool
	Class     string
	FeatureID string
	CreatedAt time.Time
}

// SyncRecord summarizes one successful sync cycle.
type SyncRecord struct {
	Seq       int64
	Timestamp int64 // server timestamp, ms
	Changed   int
	Deleted   int
	At        time.Time
}

// AppendEntry appends a pending entry at the tail of the journal.
// Uses ON CONFLICT(id) DO NOTHING so re-appending a restored entry is a no-op.
func (s *Store) AppendEntry(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_entries
		(id, method, path, body, timeout_ms, return_shape, new_map, class, feature_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		e.ID,
		e.Method,
		e.Path,
		e.Body,
		e.Timeout.Milliseconds(),
		e.Return,
		e.NewMap,
		e.Class,
		e.FeatureID,
		e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

// DeleteEntry removes a delivered entry. Deleting an unknown id is not an
// error.
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// RecordSync appends a sync cycle summary.
func (s *Store) RecordSync(ctx context.Context, r SyncRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_log (timestamp, changed, deleted, recorded_at)
		VALUES (?, ?, ?, ?)
	`,
		r.Timestamp,
		r.Changed,
		r.Deleted,
		r.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record sync: %w", err)
	}
	return nil
}

// PruneSyncLog keeps only the newest keep rows of the sync log and returns
// how many were removed.
func (s *Store) PruneSyncLog(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_log
		WHERE seq NOT IN (SELECT seq FROM sync_log ORDER BY seq DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune sync log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune sync log: %w", err)
	}
	return n, nil
}
