package workspace

import (
	"encoding/json"
	"fmt"

	"github.com/nexuscore/orchestrator/internal/graph"
)

// taskGraphDoc is the on-disk shape of runtime/task-graph.json.
type taskGraphDoc struct {
	Phase     string          `json:"phase"`
	WaveCount int             `json:"wave_count"`
	Tasks     []graph.TaskNode `json:"tasks"`
}

// WriteTaskGraph atomically persists the task graph (§4.1, write ordering
// in §5: task-graph before state, state before mission-log append).
func (s *Store) WriteTaskGraph(g *graph.TaskGraph) error {
	doc := taskGraphDoc{Phase: g.Phase, WaveCount: g.WaveCount}
	for _, n := range g.Nodes() {
		doc.Tasks = append(doc.Tasks, *n)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("workspace: encode task graph: %w", err)
	}
	return s.atomicWrite(s.TaskGraphPath(), data)
}

// ReadTaskGraph loads and re-validates runtime/task-graph.json.
func (s *Store) ReadTaskGraph() (*graph.TaskGraph, error) {
	data, err := s.read(s.TaskGraphPath())
	if err != nil {
		return nil, err
	}
	var doc taskGraphDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("workspace: parse task graph: %w", err)
	}
	return graph.New(doc.Phase, doc.Tasks)
}
