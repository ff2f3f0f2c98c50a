package workspace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MissionLogEntry is one strictly wall-clock-ordered append to
// runtime/mission-log.ndjson (§3, §5 "Mission-log entries are strictly
// ordered in wall-clock append order").
type MissionLogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Component string         `json:"component"`
	TaskID    string         `json:"task_id,omitempty"`
	Event     string         `json:"event"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// missionLogMu serialises appends across the process; the file itself is
// append-only so concurrent appenders would otherwise interleave partial
// lines.
var missionLogMu sync.Mutex

// AppendMissionLog appends one NDJSON line to the mission log, stamping an
// id and timestamp if unset.
func (s *Store) AppendMissionLog(entry MissionLogEntry) error {
	if err := s.requireInitialised(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("workspace: encode mission log entry: %w", err)
	}
	line = append(line, '\n')

	missionLogMu.Lock()
	defer missionLogMu.Unlock()

	file, err := os.OpenFile(s.MissionLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("workspace: open mission log: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("workspace: append mission log: %w", err)
	}
	return nil
}

// ReadMissionLog returns every entry, in append order.
func (s *Store) ReadMissionLog() ([]MissionLogEntry, error) {
	if err := s.requireInitialised(); err != nil {
		return nil, err
	}
	file, err := os.Open(s.MissionLogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workspace: open mission log: %w", err)
	}
	defer file.Close()

	var entries []MissionLogEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry MissionLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("workspace: parse mission log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("workspace: scan mission log: %w", err)
	}
	return entries, nil
}
