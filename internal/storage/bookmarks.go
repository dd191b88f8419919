package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bookmark is one saved page.
type Bookmark struct {
	ID      string
	URL     string
	Title   string
	Folder  string
	AddedMs int64
}

// AddBookmark saves a bookmark, replacing an existing one for the same URL.
func (s *Store) AddBookmark(ctx context.Context, url, title, folder string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("storage: bookmark url must not be empty")
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (id, url, title, folder, added_at_unix_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
		  title = excluded.title,
		  folder = excluded.folder
	`, id, url, title, folder, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("storage: add bookmark: %w", err)
	}
	return id, nil
}

// SearchBookmarks returns bookmarks whose URL, title, or folder contains
// term, most recently added first. An empty term lists the newest entries.
func (s *Store) SearchBookmarks(ctx context.Context, term string, limit int) ([]Bookmark, error) {
	if limit <= 0 {
		limit = 100
	}

	pattern := "%" + escapeLike(term) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, title, folder, added_at_unix_ms
		FROM bookmarks
		WHERE ? = '' OR url LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\' OR folder LIKE ? ESCAPE '\'
		ORDER BY added_at_unix_ms DESC
		LIMIT ?
	`, term, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: search bookmarks: %w", err)
	}
	defer rows.Close()

	var bookmarks []Bookmark
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.ID, &b.URL, &b.Title, &b.Folder, &b.AddedMs); err != nil {
			return nil, fmt.Errorf("storage: scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}

// DeleteBookmark removes a bookmark by id.
func (s *Store) DeleteBookmark(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete bookmark: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage: bookmark %s not found", id)
	}
	return nil
}
