// Package clips manages the directory of synthesized voice clips. Clips are
// throwaway artifacts: the store purges everything at startup, prunes down to
// the most recent few during a session, and removes individual files when an
// operator deletes their queue item.
package clips

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultKeep is how many recent clips survive a prune.
const DefaultKeep = 5

// clipExtensions are the file types the store considers clips.
var clipExtensions = map[string]bool{".wav": true, ".mp3": true}

// Store manages one clip directory.
type Store struct {
	dir  string
	keep int
}

// Option customises a Store.
type Option func(*Store)

// WithKeep overrides how many recent clips a prune retains.
func WithKeep(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.keep = n
		}
	}
}

// NewStore creates the clip directory if needed and returns a Store for it.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("clips: create directory: %w", err)
	}
	s := &Store{dir: dir, keep: DefaultKeep}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the managed directory.
func (s *Store) Dir() string {
	return s.dir
}

// PurgeAll removes every clip in the directory. Used at startup: clips from a
// previous session are meaningless without their queue.
func (s *Store) PurgeAll() error {
	paths, err := s.list()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("clips: purge: %w", err)
		}
	}
	if len(paths) > 0 {
		slog.Info("purged stale clips", "count", len(paths))
	}
	return nil
}

// Prune removes all but the most recently modified clips, keeping the
// configured count. Returns how many were removed.
func (s *Store) Prune() (int, error) {
	paths, err := s.list()
	if err != nil {
		return 0, err
	}
	if len(paths) <= s.keep {
		return 0, nil
	}

	type clipInfo struct {
		path string
		mod  int64
	}
	infos := make([]clipInfo, 0, len(paths))
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			// Raced with a concurrent removal.
			continue
		}
		infos = append(infos, clipInfo{path: p, mod: fi.ModTime().UnixNano()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].mod < infos[j].mod })

	removed := 0
	for _, info := range infos[:max(0, len(infos)-s.keep)] {
		if err := os.Remove(info.path); err != nil {
			return removed, fmt.Errorf("clips: prune: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Remove deletes one clip by path, refusing paths outside the managed
// directory. A clip that is already gone is not an error.
func (s *Store) Remove(path string) error {
	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		return fmt.Errorf("clips: resolve directory: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("clips: resolve path: %w", err)
	}
	if filepath.Dir(absPath) != absDir {
		return fmt.Errorf("clips: %s is outside the clip directory", path)
	}
	if err := os.Remove(absPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clips: remove: %w", err)
	}
	return nil
}

// list returns the full paths of all clips in the directory.
func (s *Store) list() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("clips: read directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !clipExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	return paths, nil
}
