package store

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// DB is one of wpdl's SQLite files: the session registry or a mirror.
type DB struct {
	*sql.DB
}

// dsn builds the go-sqlite3 connection string for path. The mirror takes
// ingest transactions from the sync engine while scans page through it, so
// writers take the lock up front (_txlock=immediate) instead of failing with
// SQLITE_BUSY when upgrading a read transaction.
func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// Open connects to the database at path and checks it is usable.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db %s: %w", path, err)
	}
	return &DB{db}, nil
}
