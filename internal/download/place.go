package download

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidDir is returned for unusable destination directories.
var ErrInvalidDir = errors.New("invalid download directory")

// PrepareDir checks that dir is absolute and creates it if absent.
func PrepareDir(dir string) error {
	if dir == "" || !filepath.IsAbs(dir) {
		return fmt.Errorf("%w: %q is not an absolute path", ErrInvalidDir, dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %q is not a directory", ErrInvalidDir, dir)
	}
	return nil
}

// maxNameAttempts bounds the suffixed names tried for one placement.
const maxNameAttempts = 100

// Place moves the completed file at src into dir under name and returns the
// final path. An existing file is never overwritten: the new file gets a
// name_<unixmilli>.ext suffix, then name_<unixmilli>_<n>.ext, until a free
// name is claimed. When src already is the target nothing is moved.
func Place(src, dir, name string, now time.Time) (string, error) {
	if src == "" {
		return "", errors.New("provider reported no local path")
	}
	if err := PrepareDir(dir); err != nil {
		return "", err
	}
	target := filepath.Join(dir, safeName(name))
	if samePath(src, target) {
		return target, nil
	}
	for n := 0; n < maxNameAttempts; n++ {
		candidate := target
		if n > 0 {
			candidate = withSuffix(target, now, n)
		}
		err := moveNew(src, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("move %s to %s: %w", src, candidate, err)
		}
	}
	return "", fmt.Errorf("move %s: no free name next to %s", src, target)
}

func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return "download"
	}
	return name
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// withSuffix returns the n-th alternative name for path, n >= 1.
func withSuffix(path string, now time.Time, n int) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	if n == 1 {
		return fmt.Sprintf("%s_%d%s", stem, now.UnixMilli(), ext)
	}
	return fmt.Sprintf("%s_%d_%d%s", stem, now.UnixMilli(), n, ext)
}

// moveNew moves src to dst and fails with os.ErrExist instead of replacing
// an existing dst. The hard link claims dst atomically; the copy fallback
// covers other devices and filesystems without links.
func moveNew(src, dst string) error {
	err := os.Link(src, dst)
	if err == nil {
		return os.Remove(src)
	}
	if errors.Is(err, os.ErrExist) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFile creates dst exclusively; a partial copy is removed.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}
