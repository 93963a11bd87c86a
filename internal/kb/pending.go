// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import (
	"context"
	"fmt"
	"time"

	"github.com/pdiddy/mcq-engine/pkg/types"
)

// Enqueue adds a source to the pending review queue. Adding a source
// that is already queued is a no-op.
func (s *Store) Enqueue(ctx context.Context, sourceID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_sources (source_id, queued_at) VALUES (?, ?)
		 ON CONFLICT(source_id) DO NOTHING`,
		sourceID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("enqueuing source %d: %w", sourceID, err)
	}
	return nil
}

// Dequeue removes a source's pending marker. Removing a source that is
// not queued is a no-op.
func (s *Store) Dequeue(ctx context.Context, sourceID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_sources WHERE source_id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("dequeuing source %d: %w", sourceID, err)
	}
	return nil
}

// ClearPending drops all pending markers. Sources themselves are
// untouched.
func (s *Store) ClearPending(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_sources`); err != nil {
		return fmt.Errorf("clearing pending queue: %w", err)
	}
	return nil
}

// IsPending reports whether the source is currently queued for review.
func (s *Store) IsPending(ctx context.Context, sourceID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM pending_sources WHERE source_id = ?`, sourceID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking pending marker: %w", err)
	}
	return n > 0, nil
}

// AllPending returns the entire pending review queue, newest first.
func (s *Store) AllPending(ctx context.Context) ([]types.PendingEntry, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM pending_sources`,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting pending sources: %w", err)
	}
	if total == 0 {
		return nil, nil
	}
	entries, _, _, err := s.ListPending(ctx, 1, total)
	return entries, err
}

// ListPending returns one page of the pending review queue, newest
// first. Pages are 1-indexed and pageSize 0 uses the store default. The
// requested page is clamped into [1, totalPages]; an empty queue
// reports page 1 of 1 with no entries. The returned page is the clamped
// page that was actually served.
func (s *Store) ListPending(ctx context.Context, page, pageSize int) (entries []types.PendingEntry, servedPage, totalPages int, err error) {
	if pageSize <= 0 {
		pageSize = s.pageSize
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM pending_sources`,
	).Scan(&total); err != nil {
		return nil, 0, 0, fmt.Errorf("counting pending sources: %w", err)
	}

	totalPages = (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.source_id, s.source_id, s.title, p.queued_at
		 FROM pending_sources p
		 JOIN sources s ON s.id = p.source_id
		 ORDER BY p.queued_at DESC, p.source_id DESC
		 LIMIT ? OFFSET ?`,
		pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("querying pending sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e types.PendingEntry
		var queuedAt string
		if err := rows.Scan(&e.SourceID, &e.ExternalID, &e.Title, &queuedAt); err != nil {
			return nil, 0, 0, fmt.Errorf("scanning pending row: %w", err)
		}
		if t, parseErr := time.Parse(time.RFC3339Nano, queuedAt); parseErr == nil {
			e.QueuedAt = t
		}
		entries = append(entries, e)
	}

	return entries, page, totalPages, rows.Err()
}
