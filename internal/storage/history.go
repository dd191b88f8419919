package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Visit is one history entry, aggregated per URL.
type Visit struct {
	ID          string
	URL         string
	Title       string
	VisitCount  int
	LastVisitMs int64
}

// RecordVisit inserts a visit or bumps the count for an already-known URL.
func (s *Store) RecordVisit(ctx context.Context, url, title string) error {
	if url == "" {
		return fmt.Errorf("storage: visit url must not be empty")
	}

	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visits (id, url, title, visit_count, last_visit_unix_ms)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(url) DO UPDATE SET
		  title = excluded.title,
		  visit_count = visit_count + 1,
		  last_visit_unix_ms = excluded.last_visit_unix_ms
	`, uuid.NewString(), url, title, now)
	if err != nil {
		return fmt.Errorf("storage: record visit: %w", err)
	}
	return nil
}

// SearchVisits returns visits whose URL or title contains term, most visited
// first. An empty term lists the most visited entries. since bounds the
// recency window; zero means unlimited.
func (s *Store) SearchVisits(ctx context.Context, term string, since time.Time, limit int) ([]Visit, error) {
	if limit <= 0 {
		limit = 100
	}

	var sinceMs int64
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}

	pattern := "%" + escapeLike(term) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, title, visit_count, last_visit_unix_ms
		FROM visits
		WHERE last_visit_unix_ms >= ?
		  AND (? = '' OR url LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\')
		ORDER BY visit_count DESC, last_visit_unix_ms DESC
		LIMIT ?
	`, sinceMs, term, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: search visits: %w", err)
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.ID, &v.URL, &v.Title, &v.VisitCount, &v.LastVisitMs); err != nil {
			return nil, fmt.Errorf("storage: scan visit: %w", err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// MaxVisitCount returns the highest visit count, used to normalize
// per-result frequency boosts.
func (s *Store) MaxVisitCount(ctx context.Context) (int, error) {
	var max int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(visit_count), 0) FROM visits`)
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("storage: max visit count: %w", err)
	}
	return max, nil
}

// DeleteVisit removes one history entry by id.
func (s *Store) DeleteVisit(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM visits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete visit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage: visit %s not found", id)
	}
	return nil
}

// ClearVisits deletes the entire history.
func (s *Store) ClearVisits(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM visits`)
	if err != nil {
		return 0, fmt.Errorf("storage: clear visits: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
