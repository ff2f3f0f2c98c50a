package graph

import (
	"fmt"
	"sort"

	"github.com/nexuscore/orchestrator/internal/nexuserr"
)

// TaskGraph is the ordered collection of TaskNodes for one plan (§3),
// together with the phase identifier and total wave count.
type TaskGraph struct {
	Phase      string
	WaveCount  int
	nodes      map[string]*TaskNode
	order      []string // declaration order, preserved for deterministic iteration
}

// New builds a TaskGraph from a flat list of nodes, validating the
// dependency-existence and wave-disjointness invariants of §3/§8 up front.
// A graph that fails validation is still returned (callers may want to
// inspect it) alongside the error describing the first violation found.
func New(phase string, nodes []TaskNode) (*TaskGraph, error) {
	g := &TaskGraph{
		Phase: phase,
		nodes: make(map[string]*TaskNode, len(nodes)),
	}
	maxWave := 0
	for i := range nodes {
		n := nodes[i]
		n.NormalizeTDD()
		if _, exists := g.nodes[n.ID]; exists {
			return g, fmt.Errorf("graph: duplicate task id %q", n.ID)
		}
		if n.Status == "" {
			n.Status = StatusPending
		}
		stored := n
		g.nodes[n.ID] = &stored
		g.order = append(g.order, n.ID)
		if n.Wave > maxWave {
			maxWave = n.Wave
		}
	}
	g.WaveCount = maxWave

	if err := g.validateDependencies(); err != nil {
		return g, err
	}
	if err := g.validateWaveDisjointness(); err != nil {
		return g, err
	}
	return g, nil
}

// Node returns the node for id, or nil if it is not present.
func (g *TaskGraph) Node(id string) *TaskNode {
	return g.nodes[id]
}

// Nodes returns every node in declaration order.
func (g *TaskGraph) Nodes() []*TaskNode {
	out := make([]*TaskNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Wave returns every node assigned to wave w, in declaration order.
func (g *TaskGraph) Wave(w int) []*TaskNode {
	var out []*TaskNode
	for _, id := range g.order {
		if n := g.nodes[id]; n.Wave == w {
			out = append(out, n)
		}
	}
	return out
}

// DependenciesCompleted reports whether every dependency of id has status
// completed.
func (g *TaskGraph) DependenciesCompleted(id string) bool {
	n := g.nodes[id]
	if n == nil {
		return false
	}
	for _, dep := range n.DependsOn {
		d := g.nodes[dep]
		if d == nil || d.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// WaveComplete reports whether every task in wave w is completed or
// deferred (§4.4 step 5).
func (g *TaskGraph) WaveComplete(w int) bool {
	tasks := g.Wave(w)
	if len(tasks) == 0 {
		return true
	}
	for _, t := range tasks {
		if t.Status != StatusCompleted && t.Status != StatusDeferred {
			return false
		}
	}
	return true
}

func (g *TaskGraph) validateDependencies() error {
	for _, id := range g.order {
		n := g.nodes[id]
		for _, dep := range n.DependsOn {
			d, ok := g.nodes[dep]
			if !ok {
				return fmt.Errorf("graph: task %s depends on unknown task %s", n.ID, dep)
			}
			if d.Wave >= n.Wave {
				return fmt.Errorf("graph: task %s (wave %d) depends on %s (wave %d), dependency wave must be strictly earlier: %w", n.ID, n.Wave, d.ID, d.Wave, nexuserr.ErrDependencyNotMonotonic)
			}
		}
	}
	return nil
}

func (g *TaskGraph) validateWaveDisjointness() error {
	for w := 1; w <= g.WaveCount; w++ {
		seen := map[string]string{}
		tasks := g.Wave(w)
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
		for _, t := range tasks {
			for _, f := range t.DeclaredFiles {
				if owner, exists := seen[f]; exists {
					return fmt.Errorf("graph: wave %d: tasks %s and %s both declare file %s: %w", w, owner, t.ID, f, nexuserr.ErrWaveFileConflict)
				}
				seen[f] = t.ID
			}
		}
	}
	return nil
}

// MarkRunning transitions a pending task to running once its dependencies
// are satisfied, recording the pre-run version-control ref.
func (g *TaskGraph) MarkRunning(id, preRunRef string) error {
	n := g.nodes[id]
	if n == nil {
		return fmt.Errorf("graph: unknown task %s", id)
	}
	if !g.DependenciesCompleted(id) {
		return fmt.Errorf("graph: task %s has incomplete dependencies", id)
	}
	n.Status = StatusRunning
	n.PreRunRef = preRunRef
	return nil
}

// MarkCompleted transitions a running task to completed, recording
// deviations and deferred items.
func (g *TaskGraph) MarkCompleted(id string, deviations, deferred []string) error {
	n := g.nodes[id]
	if n == nil {
		return fmt.Errorf("graph: unknown task %s", id)
	}
	n.Status = StatusCompleted
	n.Deviations = deviations
	n.Deferred = deferred
	return nil
}

// MarkFailed increments the failure counter and, at MaxFailureCount,
// transitions the task to blocked with the three-consecutive-failures
// reason (§4.4, §7, testable property 7).
func (g *TaskGraph) MarkFailed(id string) (escalated bool, err error) {
	n := g.nodes[id]
	if n == nil {
		return false, fmt.Errorf("graph: unknown task %s", id)
	}
	n.FailureCount++
	n.Status = StatusFailed
	if n.FailureCount >= MaxFailureCount {
		n.Status = StatusBlocked
		n.BlockReason = BlockReasonThreeConsecutiveFails
		return true, nil
	}
	return false, nil
}

// MarkBlocked transitions a task to blocked for a non-failure reason (a
// worker-reported BLOCKED message).
func (g *TaskGraph) MarkBlocked(id string, reason BlockReason) error {
	n := g.nodes[id]
	if n == nil {
		return fmt.Errorf("graph: unknown task %s", id)
	}
	n.Status = StatusBlocked
	n.BlockReason = reason
	return nil
}

// ResetToPending reverts a task to pending, used by Resume (§4.4) when a
// running task's spot-check fails against its recorded pre-run ref.
func (g *TaskGraph) ResetToPending(id string) error {
	n := g.nodes[id]
	if n == nil {
		return fmt.Errorf("graph: unknown task %s", id)
	}
	n.Status = StatusPending
	n.FailureCount++
	return nil
}
