package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS links (
	token      TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);`

// SQLiteStore serves links from a SQLite database. Change detection rides
// on PRAGMA data_version, which bumps whenever another connection commits,
// so an edit from the management commands (their own process, their own
// connection) shows up without any polling of the file itself.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger

	links       map[string]string
	dataVersion int64
}

// OpenSQLite opens (creating if needed) the database at path and loads the
// snapshot. The pool is pinned to a single connection: data_version is a
// per-connection counter, and the sequential server needs no more anyway.
func OpenSQLite(path string, log *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create links table: %w", err)
	}

	s := &SQLiteStore{db: db, log: log, links: map[string]string{}}
	if err := s.Refresh(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Debug("sqlite store opened", "path", path, "links", s.Len())
	return s, nil
}

func (s *SQLiteStore) HasChanged() (bool, error) {
	v, err := s.currentDataVersion()
	if err != nil {
		return false, err
	}
	return v != s.dataVersion, nil
}

func (s *SQLiteStore) Refresh() error {
	// read the version before the rows: a commit racing the SELECT then
	// reads as changed again on the next connection instead of being lost
	v, err := s.currentDataVersion()
	if err != nil {
		return err
	}

	rows, err := s.db.Query("SELECT token, url FROM links")
	if err != nil {
		return fmt.Errorf("load links: %w", err)
	}
	defer rows.Close()

	links := make(map[string]string)
	for rows.Next() {
		var token, url string
		if err := rows.Scan(&token, &url); err != nil {
			return fmt.Errorf("scan link row: %w", err)
		}
		links[token] = url
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load links: %w", err)
	}

	s.links = links
	s.dataVersion = v
	return nil
}

func (s *SQLiteStore) Len() int {
	return len(s.links)
}

func (s *SQLiteStore) Get(token string) (string, bool) {
	url, ok := s.links[token]
	return url, ok
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Put(token, url string) error {
	_, err := s.db.Exec(`INSERT INTO links (token, url) VALUES (?, ?)
		ON CONFLICT(token) DO UPDATE SET url = excluded.url`, token, url)
	if err != nil {
		return fmt.Errorf("store link: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(token string) error {
	res, err := s.db.Exec("DELETE FROM links WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no link named %q", token)
	}
	return nil
}

func (s *SQLiteStore) Entries() (map[string]string, error) {
	rows, err := s.db.Query("SELECT token, url FROM links")
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	defer rows.Close()

	links := make(map[string]string)
	for rows.Next() {
		var token, url string
		if err := rows.Scan(&token, &url); err != nil {
			return nil, fmt.Errorf("scan link row: %w", err)
		}
		links[token] = url
	}
	return links, rows.Err()
}

func (s *SQLiteStore) currentDataVersion() (int64, error) {
	var v int64
	if err := s.db.QueryRow("PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read data_version: %w", err)
	}
	return v, nil
}
