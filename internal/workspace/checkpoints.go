package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// CheckpointRecord is the JSON document written to the checkpoints
// section for every checkpoint (§3, §4.6). The commit itself lives on
// the private reference namespace; this record is the durable index of
// what exists there and why.
type CheckpointRecord struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	TaskID       string    `json:"task_id,omitempty"`
	Ref          string    `json:"ref"`
	SnapshotPath string    `json:"snapshot_path,omitempty"`
	Reason       string    `json:"reason"`
}

// WriteCheckpointRecord atomically persists one checkpoint record.
func (s *Store) WriteCheckpointRecord(rec CheckpointRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("workspace: encode checkpoint %s: %w", rec.ID, err)
	}
	return s.atomicWrite(s.CheckpointPath(rec.ID), data)
}

// ReadCheckpointRecord loads one checkpoint record by id.
func (s *Store) ReadCheckpointRecord(id string) (CheckpointRecord, error) {
	data, err := s.read(s.CheckpointPath(id))
	if err != nil {
		return CheckpointRecord{}, err
	}
	var rec CheckpointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return CheckpointRecord{}, fmt.Errorf("workspace: parse checkpoint %s: %w", id, err)
	}
	return rec, nil
}

// ListCheckpointRecords returns every checkpoint record, oldest first.
func (s *Store) ListCheckpointRecords() ([]CheckpointRecord, error) {
	if err := s.requireInitialised(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.CheckpointsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workspace: read checkpoints dir: %w", err)
	}
	var records []CheckpointRecord
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "checkpoint-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, "checkpoint-"), ".json")
		rec, err := s.ReadCheckpointRecord(id)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
	return records, nil
}

// RemoveCheckpointRecord deletes a checkpoint record and its snapshot,
// used by pruning (§4.6).
func (s *Store) RemoveCheckpointRecord(id string) error {
	if err := s.requireInitialised(); err != nil {
		return err
	}
	if err := os.Remove(s.CheckpointPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("workspace: remove checkpoint %s: %w", id, err)
	}
	if err := os.RemoveAll(s.SnapshotPath(id)); err != nil {
		return fmt.Errorf("workspace: remove snapshot %s: %w", id, err)
	}
	return nil
}
