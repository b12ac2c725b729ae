package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps the cache in a local database file so it survives
// restarts, matching the client-resident cache the app relies on.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	generation TEXT NOT NULL,
	url        TEXT NOT NULL,
	status     INTEGER NOT NULL,
	headers    TEXT NOT NULL,
	body       BLOB NOT NULL,
	stored_at  TEXT NOT NULL,
	PRIMARY KEY (generation, url)
);`

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Put(ctx context.Context, generation string, e Entry) error {
	headers, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	storedAt := e.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	body := e.Body
	if body == nil {
		// A nil slice binds as SQL NULL; bodyless responses are still
		// valid cache entries.
		body = []byte{}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_entries (generation, url, status, headers, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		generation, e.URL, e.Status, string(headers), body, storedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, generation, url string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, headers, body, stored_at
		FROM cache_entries
		WHERE generation = ? AND url = ?`, generation, url)

	var (
		e        Entry
		headers  string
		storedAt string
	)
	err := row.Scan(&e.Status, &headers, &e.Body, &storedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	e.URL = url
	e.Header = make(http.Header)
	if err := json.Unmarshal([]byte(headers), &e.Header); err != nil {
		return Entry{}, false, fmt.Errorf("decode headers: %w", err)
	}
	e.StoredAt, _ = time.Parse(time.RFC3339Nano, storedAt)
	return e, true, nil
}

func (s *SQLiteStore) Generations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT generation FROM cache_entries ORDER BY generation`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteGeneration(ctx context.Context, generation string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE generation = ?`, generation)
	return err
}
