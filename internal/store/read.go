package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PendingEntries returns undelivered entries in delivery order.
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) PendingEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, method, path, body, timeout_ms, return_shape, new_map, class, feature_id, created_at
		FROM queue_entries
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			timeoutMS int64
			createdMS int64
		)
		if err := rows.Scan(
			&e.Seq,
			&e.ID,
			&e.Method,
			&e.Path,
			&e.Body,
			&timeoutMS,
			&e.Return,
			&e.NewMap,
			&e.Class,
			&e.FeatureID,
			&createdMS,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Timeout = time.Duration(timeoutMS) * time.Millisecond
		e.CreatedAt = time.UnixMilli(createdMS)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// SyncLog returns the newest limit sync records, newest first. A limit of
// zero or less returns all of them.
func (s *Store) SyncLog(ctx context.Context, limit int) ([]SyncRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, timestamp, changed, deleted, recorded_at
		FROM sync_log
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync log: %w", err)
	}
	defer rows.Close()

	records := []SyncRecord{}
	for rows.Next() {
		var (
			r    SyncRecord
			atMS int64
		)
		if err := rows.Scan(&r.Seq, &r.Timestamp, &r.Changed, &r.Deleted, &atMS); err != nil {
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		r.At = time.UnixMilli(atMS)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync log: %w", err)
	}
	return records, nil
}

// LastSync returns the highest recorded server timestamp, or 0 when no
// cycle has been recorded.
func (s *Store) LastSync(ctx context.Context) (int64, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM sync_log`).Scan(&ts)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("query last sync: %w", err)
	}
	return ts.Int64, nil
}
