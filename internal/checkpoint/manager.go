// Package checkpoint implements the Checkpoint Manager (C6): pre-task
// snapshots as commits on the private checkpoint reference namespace
// plus a JSON record and an optional workspace snapshot, with rollback
// and bounded retention (§4.6).
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nexuscore/orchestrator/internal/nexuserr"
	"github.com/nexuscore/orchestrator/internal/scar"
	"github.com/nexuscore/orchestrator/internal/vcs"
	"github.com/nexuscore/orchestrator/internal/workspace"
	"go.uber.org/zap"
)

// DefaultMaxRetained is the retention bound used when settings do not
// override it (§3 Checkpoint).
const DefaultMaxRetained = 10

// minRetentionAge protects recent checkpoints from eviction regardless
// of the retention bound (§4.6, testable property 8).
const minRetentionAge = 24 * time.Hour

// ScarRefSource reports which checkpoint ids are the declared recovery
// point of an open scar; those are never evicted. Satisfied by the scar
// registry.
type ScarRefSource interface {
	OpenCheckpointRefs() (map[string]bool, error)
}

// ScarAppender records the scar every rollback leaves behind (§4.6,
// scenario D); satisfied by the scar registry.
type ScarAppender interface {
	Append(s scar.Scar) (scar.Scar, error)
}

// Manager creates, prunes, and rolls back checkpoints.
type Manager struct {
	Repo        *vcs.Repo
	Store       *workspace.Store
	ScarRefs    ScarRefSource
	Scars       ScarAppender
	MaxRetained int
	// Snapshot additionally copies the governance and runtime sections
	// into the snapshots directory so a rollback restores workspace
	// state alongside the working tree.
	Snapshot bool

	Log *zap.Logger

	// now is a seam for retention tests.
	now func() time.Time
}

func (m *Manager) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now().UTC()
}

func (m *Manager) maxRetained() int {
	if m.MaxRetained > 0 {
		return m.MaxRetained
	}
	return DefaultMaxRetained
}

func (m *Manager) logger() *zap.Logger {
	if m.Log != nil {
		return m.Log
	}
	return zap.NewNop()
}

// Create stages everything, commits to the private reference namespace,
// snapshots workspace state when enabled, writes the JSON record, and
// prunes. It satisfies the Scheduler's CheckpointCreator seam (§4.4
// step 2).
func (m *Manager) Create(taskID, reason string) (string, error) {
	id := "cp-" + uuid.NewString()[:8]
	ref, err := m.Repo.Checkpoint(id, reason)
	if err != nil {
		return "", fmt.Errorf("checkpoint: commit for %s: %w", id, err)
	}

	rec := workspace.CheckpointRecord{
		ID:        id,
		CreatedAt: m.clock(),
		TaskID:    taskID,
		Ref:       ref,
		Reason:    reason,
	}
	if m.Snapshot {
		snapDir := m.Store.SnapshotPath(id)
		if err := m.snapshotWorkspace(snapDir); err != nil {
			return "", fmt.Errorf("checkpoint: snapshot for %s: %w", id, err)
		}
		rec.SnapshotPath = snapDir
	}
	if err := m.Store.WriteCheckpointRecord(rec); err != nil {
		return "", err
	}
	m.logger().Info("checkpoint created",
		zap.String("checkpoint_id", id),
		zap.String("task_id", taskID),
		zap.String("ref", ref))

	if err := m.Prune(); err != nil {
		return "", err
	}
	return id, nil
}

// PlanRollback returns the diff between the current working tree and the
// checkpoint's commit so a human can confirm before anything is reset
// (§4.6 Rollback).
func (m *Manager) PlanRollback(id string) (string, error) {
	rec, err := m.lookup(id)
	if err != nil {
		return "", err
	}
	return m.Repo.Diff(rec.Ref)
}

// Rollback quarantines the current diff into the artifacts section,
// resets the working tree to the checkpoint's commit, and restores any
// workspace snapshot. Callers confirm via PlanRollback first.
func (m *Manager) Rollback(id string) error {
	rec, err := m.lookup(id)
	if err != nil {
		return err
	}

	quarantine := m.Store.QuarantinePath(m.clock().Format("20060102-150405") + "-" + id + ".diff")
	if err := m.Repo.QuarantineDiff(rec.Ref, quarantine); err != nil {
		return fmt.Errorf("checkpoint: quarantine diff for %s: %w", id, err)
	}
	if err := m.Repo.Rollback(rec.Ref); err != nil {
		return fmt.Errorf("checkpoint: reset to %s: %w", id, err)
	}
	if rec.SnapshotPath != "" {
		if err := m.restoreWorkspace(rec.SnapshotPath); err != nil {
			return fmt.Errorf("checkpoint: restore snapshot for %s: %w", id, err)
		}
	}
	m.logger().Warn("rolled back to checkpoint",
		zap.String("checkpoint_id", id),
		zap.String("ref", rec.Ref),
		zap.String("quarantine", quarantine))

	if m.Scars != nil {
		rule := "review the quarantined diff at " + quarantine + " before re-attempting the rolled-back change"
		if rec.TaskID != "" {
			rule = fmt.Sprintf("re-plan task %s against the quarantined diff at %s before re-dispatching it", rec.TaskID, quarantine)
		}
		if _, err := m.Scars.Append(scar.Scar{
			Category:           scar.CategoryProcess,
			Description:        fmt.Sprintf("rolled back to checkpoint %s (%s)", id, rec.Reason),
			RootCause:          "work after the checkpoint had to be abandoned",
			Resolution:         "working tree and workspace reset to " + rec.Ref + "; abandoned diff quarantined",
			PreventionRule:     rule,
			RecoveryCheckpoint: id,
		}); err != nil {
			return fmt.Errorf("checkpoint: record rollback scar for %s: %w", id, err)
		}
	}
	return nil
}

// Prune evicts the oldest checkpoints beyond the retention bound,
// skipping anything younger than 24 hours or referenced by an open scar
// (§4.6, testable property 8).
func (m *Manager) Prune() error {
	records, err := m.Store.ListCheckpointRecords()
	if err != nil {
		return err
	}
	excess := len(records) - m.maxRetained()
	if excess <= 0 {
		return nil
	}

	protected := map[string]bool{}
	if m.ScarRefs != nil {
		protected, err = m.ScarRefs.OpenCheckpointRefs()
		if err != nil {
			return err
		}
	}
	cutoff := m.clock().Add(-minRetentionAge)
	for _, rec := range records {
		if excess <= 0 {
			break
		}
		if protected[rec.ID] || rec.CreatedAt.After(cutoff) {
			continue
		}
		if err := m.Store.RemoveCheckpointRecord(rec.ID); err != nil {
			return err
		}
		excess--
	}
	return nil
}

func (m *Manager) lookup(id string) (workspace.CheckpointRecord, error) {
	rec, err := m.Store.ReadCheckpointRecord(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return workspace.CheckpointRecord{}, fmt.Errorf("checkpoint: %w: %s", nexuserr.ErrCheckpointNotFound, id)
		}
		return workspace.CheckpointRecord{}, err
	}
	return rec, nil
}

// snapshotWorkspace copies the governance and runtime sections, the
// mutable workspace state a rollback must restore.
func (m *Manager) snapshotWorkspace(dest string) error {
	for _, section := range []string{workspace.SectionGovernance, workspace.SectionRuntime} {
		src := filepath.Join(m.Store.Root(), section)
		if err := copyTree(src, filepath.Join(dest, section)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) restoreWorkspace(snapDir string) error {
	for _, section := range []string{workspace.SectionGovernance, workspace.SectionRuntime} {
		src := filepath.Join(snapDir, section)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		dest := filepath.Join(m.Store.Root(), section)
		if err := os.RemoveAll(dest); err != nil {
			return err
		}
		if err := copyTree(src, dest); err != nil {
			return err
		}
	}
	return nil
}

func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == src {
				return filepath.SkipAll
			}
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
