package store

import "github.com/matheus3301/wpdl/internal/store/migrations"

// Mirror is a session's local copy of its chat history.
type Mirror struct {
	*DB
}

// OpenMirror opens and migrates the mirror database at path.
func OpenMirror(path string) (*Mirror, error) {
	db, err := openMigrated(path, migrations.Mirror)
	if err != nil {
		return nil, err
	}
	return &Mirror{db}, nil
}
