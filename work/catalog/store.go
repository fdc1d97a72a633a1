package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Title is one playable entry in the catalog: what search returns and what
// the player page is launched with.
type Title struct {
	ID         int64  // Database row id
	SourceName string // Name of the source the title was imported from
	Name       string // Display name shown in result lists
	URL        string // Stream URL handed to the playback resolver
	MetadataID string // Upstream metadata id for summary popovers, empty when unknown
	Group      string // Content group (live, vod, series) when the source provides one
}

// Store persists the imported catalog in sqlite so search survives restarts
// and imports can be swapped atomically per source.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the catalog database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS titles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_name TEXT NOT NULL,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		metadata_id TEXT NOT NULL DEFAULT '',
		content_group TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_titles_name ON titles(name COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_titles_source ON titles(source_name);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}

	return &Store{db: db}, nil
}

// ReplaceSource swaps the stored titles for one source in a single
// transaction, so searches never observe a half-imported source.
func (s *Store) ReplaceSource(ctx context.Context, sourceName string, titles []Title) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM titles WHERE source_name = ?`, sourceName); err != nil {
		return fmt.Errorf("failed to clear source %s: %w", sourceName, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO titles (source_name, name, url, metadata_id, content_group) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, title := range titles {
		if _, err := stmt.ExecContext(ctx, sourceName, title.Name, title.URL, title.MetadataID, title.Group); err != nil {
			return fmt.Errorf("failed to insert title %s: %w", title.Name, err)
		}
	}

	return tx.Commit()
}

// Search returns titles whose name contains the query, case-insensitively,
// capped at limit.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Title, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_name, name, url, metadata_id, content_group
		 FROM titles
		 WHERE name LIKE ? ESCAPE '\' COLLATE NOCASE
		 ORDER BY name
		 LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var titles []Title
	for rows.Next() {
		var t Title
		if err := rows.Scan(&t.ID, &t.SourceName, &t.Name, &t.URL, &t.MetadataID, &t.Group); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// Count returns the total number of stored titles.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM titles`).Scan(&count)
	return count, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func escapeLike(query string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(query)
}
