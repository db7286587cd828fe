package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/store/migrations"
)

// Registry is the durable list of known sessions (wpdl.db).
type Registry struct {
	*DB
}

// OpenRegistry opens and migrates the registry database at path.
func OpenRegistry(path string) (*Registry, error) {
	db, err := openMigrated(path, migrations.Registry)
	if err != nil {
		return nil, err
	}
	return &Registry{db}, nil
}

// SaveSession creates the record for s.ID or updates its profile. The
// last-active time is set to at either way.
func (r *Registry) SaveSession(s model.Session, at time.Time) error {
	ms := at.UnixMilli()
	_, err := r.Exec(`
		INSERT INTO sessions (id, first_name, last_name, username, phone, avatar, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			username = excluded.username,
			phone = excluded.phone,
			avatar = COALESCE(excluded.avatar, sessions.avatar),
			last_active = excluded.last_active`,
		s.ID, s.FirstName, s.LastName, s.Username, s.Phone, s.Avatar, ms, ms)
	return err
}

// TouchSession updates the last-active time of an existing record.
func (r *Registry) TouchSession(id string, at time.Time) error {
	_, err := r.Exec(`UPDATE sessions SET last_active = ? WHERE id = ?`, at.UnixMilli(), id)
	return err
}

const sessionCols = `id, first_name, last_name, username, phone, avatar, last_active`

func scanSession(s scanner) (model.Session, error) {
	var (
		out        model.Session
		lastActive int64
	)
	err := s.Scan(&out.ID, &out.FirstName, &out.LastName, &out.Username, &out.Phone, &out.Avatar, &lastActive)
	out.LastActive = time.UnixMilli(lastActive)
	return out, err
}

// GetSession returns a session record, or nil if unknown.
func (r *Registry) GetSession(id string) (*model.Session, error) {
	s, err := scanSession(r.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns every record, most recently active first.
func (r *Registry) ListSessions() ([]model.Session, error) {
	rows, err := r.Query(`SELECT ` + sessionCols + ` FROM sessions ORDER BY last_active DESC, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSession removes a record. Deleting an unknown id is not an error.
func (r *Registry) DeleteSession(id string) error {
	_, err := r.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}
