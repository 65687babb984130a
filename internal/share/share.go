// Package share hands a backup file to something outside the application.
package share

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/bizkeeper/internal/filex"
)

// Options describe the shared file to the receiving side.
type Options struct {
	MimeType    string
	DialogTitle string
}

// Sharer is the platform share surface.
type Sharer interface {
	IsAvailable(ctx context.Context) bool
	Share(ctx context.Context, path string, opts Options) error
}

// DirectorySharer exports files into an outbox directory that other tools
// (a sync client, a mail hook) pick up.
type DirectorySharer struct {
	dir string
	fs  filex.FileSystem
}

func NewDirectorySharer(dir string, fs filex.FileSystem) *DirectorySharer {
	return &DirectorySharer{dir: dir, fs: fs}
}

// IsAvailable reports whether an outbox is configured and usable.
func (s *DirectorySharer) IsAvailable(ctx context.Context) bool {
	if s.dir == "" {
		return false
	}
	return s.fs.MakeDirectory(s.dir) == nil
}

// Share copies path into the outbox under its base name.
func (s *DirectorySharer) Share(ctx context.Context, path string, opts Options) error {
	content, err := s.fs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("share %s: %w", path, err)
	}
	dst := filepath.Join(s.dir, filepath.Base(path))
	if err := s.fs.WriteFile(dst, content); err != nil {
		return fmt.Errorf("share %s: %w", path, err)
	}
	return nil
}
