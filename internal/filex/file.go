// Package filex abstracts the local filesystem operations the backup store
// needs, so tests and alternative platforms can substitute their own.
package filex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileInfo is the subset of file metadata callers rely on.
type FileInfo struct {
	Exists  bool
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// FileSystem is the filesystem surface used by the backup store.
type FileSystem interface {
	// MakeDirectory creates path with all intermediate directories. An
	// existing directory is not an error.
	MakeDirectory(path string) error
	WriteFile(path string, content []byte) error
	ReadFile(path string) ([]byte, error)
	// ListDirectory returns the names of the entries of path, sorted.
	ListDirectory(path string) ([]string, error)
	DeleteFile(path string) error
	Stat(path string) (FileInfo, error)
}

// OSFileSystem implements FileSystem on top of package os.
type OSFileSystem struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

// NewOSFileSystem returns an OSFileSystem that keeps files private to the
// current user.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{DirPerm: 0o700, FilePerm: 0o600}
}

func (f *OSFileSystem) MakeDirectory(path string) error {
	if err := os.MkdirAll(path, f.DirPerm); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// WriteFile writes content to a temporary sibling and renames it into
// place, so readers never observe a half-written file.
func (f *OSFileSystem) WriteFile(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, f.FilePerm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func (f *OSFileSystem) ReadFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

func (f *OSFileSystem) ListDirectory(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (f *OSFileSystem) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Stat reports Exists=false without an error when path is missing.
func (f *OSFileSystem) Stat(path string) (FileInfo, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return FileInfo{}, nil
	}
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileInfo{Exists: true, IsDir: fi.IsDir(), Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// EnsureDir creates dir (and parents) with owner-only permissions and
// returns its absolute path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}
