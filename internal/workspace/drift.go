package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// HashIndex tracks a content hash per canonical governance/plan file so a
// drift watcher can tell an in-memory cache it must be invalidated (§4.1).
type HashIndex struct {
	mu     sync.Mutex
	hashes map[string]string
}

// NewHashIndex returns an empty index.
func NewHashIndex() *HashIndex {
	return &HashIndex{hashes: make(map[string]string)}
}

// Record hashes the current on-disk content of path and stores it,
// establishing the baseline a later drift check compares against.
func (h *HashIndex) Record(path string) error {
	sum, err := hashFile(path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.hashes[path] = sum
	h.mu.Unlock()
	return nil
}

// Drifted reports whether path's on-disk content no longer matches the
// recorded hash. A path never recorded is reported as drifted.
func (h *HashIndex) Drifted(path string) (bool, error) {
	sum, err := hashFile(path)
	if err != nil {
		return false, err
	}
	h.mu.Lock()
	recorded, ok := h.hashes[path]
	h.mu.Unlock()
	return !ok || recorded != sum, nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("workspace: hash %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DriftWatcher watches the workspace's governance and plan directories for
// out-of-band edits -- a human hand-editing a plan file, or a worker
// outliving its declared lifetime -- and logs a warning for each written
// file whose content no longer matches its recorded hash. It never
// reconciles silently (§4.1), and it does not pass the drifted paths back
// to the caller.
type DriftWatcher struct {
	watcher *fsnotify.Watcher
	index   *HashIndex
	log     *zap.Logger
}

// WatchDrift starts watching the governance and plans sections for writes.
// Every write or create is checked against the index, including those made
// through the Store's own atomic-write path. The index should already have
// baselines recorded for files the caller considers canonical.
func (s *Store) WatchDrift(index *HashIndex, log *zap.Logger) (*DriftWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("workspace: start drift watcher: %w", err)
	}
	for _, dir := range []string{s.path(SectionGovernance), s.path(SectionPlans)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			watcher.Close()
			return nil, err
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("workspace: watch %s: %w", dir, err)
		}
	}
	dw := &DriftWatcher{watcher: watcher, index: index, log: log}
	go dw.loop()
	return dw, nil
}

func (dw *DriftWatcher) loop() {
	for {
		select {
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			drifted, err := dw.index.Drifted(event.Name)
			if err != nil {
				continue
			}
			if drifted {
				dw.log.Warn("workspace: drift detected on governance/plan file",
					zap.String("path", event.Name))
			}
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.log.Error("workspace: drift watcher error", zap.Error(err))
		}
	}
}

// Close stops the drift watcher.
func (dw *DriftWatcher) Close() error {
	return dw.watcher.Close()
}
