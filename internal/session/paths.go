package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves every on-disk location under a root directory.
type Layout struct {
	Root string
}

// DefaultLayout returns the layout rooted at $WPDL_HOME, or ~/.wpdl.
func DefaultLayout() Layout {
	if root := os.Getenv("WPDL_HOME"); root != "" {
		return Layout{Root: root}
	}
	home, _ := os.UserHomeDir()
	return Layout{Root: filepath.Join(home, ".wpdl")}
}

// SessionsDir returns the directory holding one subdirectory per session.
func (l Layout) SessionsDir() string {
	return filepath.Join(l.Root, "sessions")
}

// Dir returns the session-specific directory.
func (l Layout) Dir(id string) string {
	return filepath.Join(l.SessionsDir(), id)
}

// Paths locates the files inside one session directory.
type Paths struct {
	Dir       string
	SessionDB string
	MirrorDB  string
	Files     string
}

// PathsIn returns the session file layout rooted at dir.
func PathsIn(dir string) Paths {
	return Paths{
		Dir:       dir,
		SessionDB: filepath.Join(dir, "session.db"),
		MirrorDB:  filepath.Join(dir, "mirror.db"),
		Files:     filepath.Join(dir, "files"),
	}
}

// SessionDBPath returns the whatsmeow session.db path.
func (l Layout) SessionDBPath(id string) string {
	return PathsIn(l.Dir(id)).SessionDB
}

// MirrorDBPath returns the per-session history mirror path.
func (l Layout) MirrorDBPath(id string) string {
	return PathsIn(l.Dir(id)).MirrorDB
}

// FilesDir returns the provider cache directory for in-flight file bytes.
func (l Layout) FilesDir(id string) string {
	return PathsIn(l.Dir(id)).Files
}

// RegistryDBPath returns the shared session registry database path.
func (l Layout) RegistryDBPath() string {
	return filepath.Join(l.Root, "wpdl.db")
}

// SocketPath returns the daemon's UDS socket path.
func (l Layout) SocketPath() string {
	return filepath.Join(l.Root, "wpdld.sock")
}

// LogDir returns the daemon log directory.
func (l Layout) LogDir() string {
	return filepath.Join(l.Root, "logs")
}

// LogPath returns the daemon log file path.
func (l Layout) LogPath() string {
	return filepath.Join(l.LogDir(), "wpdld.log")
}

// ConfigPath returns the global config file path.
func (l Layout) ConfigPath() string {
	return filepath.Join(l.Root, "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func (l Layout) EnsureDir(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	dirs := []string{
		l.Dir(id),
		l.FilesDir(id),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// RemoveDir deletes a session's isolated storage.
func (l Layout) RemoveDir(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.RemoveAll(l.Dir(id)); err != nil {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}
