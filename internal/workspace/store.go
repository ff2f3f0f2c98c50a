package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/nexuscore/orchestrator/internal/config"
	"github.com/nexuscore/orchestrator/internal/nexuserr"
)

// Store is the Workspace Store (C1): the sole component that writes
// governance files, the task graph, checkpoints, and the mission log.
// Every write goes through atomicWrite (write to a sibling temp file, then
// rename) and writes to distinct files are serialised per-file, following
// the teacher's artifact.Store write pattern generalized to the numbered
// workspace layout.
type Store struct {
	root string

	mu       sync.Mutex // guards fileLock, not the files themselves
	fileLock map[string]*sync.Mutex
}

// Open returns a Store rooted at root without touching the filesystem.
// Callers must call Initialise before any other operation if the root does
// not yet exist -- every other method refuses with
// nexuserr.ErrWorkspaceAbsent otherwise.
func Open(root string) *Store {
	return &Store{root: root, fileLock: make(map[string]*sync.Mutex)}
}

// Root returns the workspace root directory.
func (s *Store) Root() string { return s.root }

// Exists reports whether the workspace root has been initialised.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

// Initialise materialises the numbered-section skeleton and default
// settings. It is the one operation permitted when the workspace root is
// absent (§4.1).
func (s *Store) Initialise(projectName string) error {
	for _, section := range allSections {
		if err := os.MkdirAll(s.path(section), 0o755); err != nil {
			return fmt.Errorf("workspace: create section %s: %w", section, err)
		}
	}
	if _, err := os.Stat(s.SettingsPath()); errors.Is(err, fs.ErrNotExist) {
		settings := config.Default(projectName)
		data, err := settings.Encode()
		if err != nil {
			return err
		}
		if err := s.atomicWrite(s.SettingsPath(), data); err != nil {
			return err
		}
	}
	if _, err := os.Stat(s.StatePath()); errors.Is(err, fs.ErrNotExist) {
		if err := s.atomicWrite(s.StatePath(), defaultStateDoc()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) requireInitialised() error {
	if !s.Exists() {
		return nexuserr.ErrWorkspaceAbsent
	}
	return nil
}

// lockFor returns a per-path mutex, creating it on first use, giving each
// governance file single-writer discipline without serialising unrelated
// files behind one global lock.
func (s *Store) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.fileLock[path]
	if !ok {
		l = &sync.Mutex{}
		s.fileLock[path] = l
	}
	return l
}

// atomicWrite writes data to a sibling temp file and renames it into
// place, so a reader never observes a partial write (§4.1, §9 "global
// mutable state").
func (s *Store) atomicWrite(path string, data []byte) error {
	if err := s.requireInitialised(); err != nil && path != s.SettingsPath() && path != s.StatePath() {
		return err
	}
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("workspace: ensure dir for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("workspace: create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("workspace: write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("workspace: close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("workspace: rename into %s: %w", path, err)
	}
	return nil
}

// read is a lock-free read: atomic rename means a reader never observes a
// torn write, so no lock is needed on the read path (§4.1).
func (s *Store) read(path string) ([]byte, error) {
	if err := s.requireInitialised(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workspace: read %s: %w", path, err)
	}
	return data, nil
}

func defaultStateDoc() []byte {
	return []byte("# Project State\n\nphase: (not started)\nloop: - - - -\nblockers: none\n")
}
