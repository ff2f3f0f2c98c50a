// Package contextpacket builds the fixed-shape bundle of information a
// worker subprocess receives for a single task (§4.2). The packet is the
// only authorised source of information for the worker: the Builder
// never widens it beyond what the task graph and index files justify.
package contextpacket

import (
	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/nexuscore/orchestrator/internal/index"
)

// Identity is the identity slot group: task id, TDD mode, risk tier.
type Identity struct {
	TaskID   string
	TDDMode  graph.TDDMode
	RiskTier graph.RiskTier
}

// Tooling is the settings-derived command-string slot group.
type Tooling struct {
	Test        string
	Lint        string
	TypeCheck   string
	FormatCheck string
	Build       string
}

// ContextPacket is the fixed 14-slot bundle built per task (§3).
type ContextPacket struct {
	// identity
	Identity Identity

	// why
	MissionContext string
	PhaseObjective string

	// what
	Files              []string
	FilesContent       map[string]string
	AcceptanceCriteria []string

	// how
	ArchitectureSlice []index.ModuleEntry
	ContractsSlice    []index.ContractEntry
	DependencySymbols map[string][]string
	TestsSlice        map[string][]string
	WaveContext       string

	// constraints
	ScarsDigest string
	StateDigest string
	Boundaries  []string

	// tooling
	Tooling Tooling
}

// PopulatedSlots names every slot that carries content, recorded in the
// mission log at build time so an audit can see what each worker was
// given without persisting the packet itself.
func (p ContextPacket) PopulatedSlots() []string {
	slots := []string{"identity"}
	add := func(name string, populated bool) {
		if populated {
			slots = append(slots, name)
		}
	}
	add("missionContext", p.MissionContext != "")
	add("phaseObjective", p.PhaseObjective != "")
	add("files", len(p.Files) > 0)
	add("filesContent", len(p.FilesContent) > 0)
	add("acceptanceCriteria", len(p.AcceptanceCriteria) > 0)
	add("architectureSlice", len(p.ArchitectureSlice) > 0)
	add("contractsSlice", len(p.ContractsSlice) > 0)
	add("dependencySymbols", len(p.DependencySymbols) > 0)
	add("testsSlice", len(p.TestsSlice) > 0)
	add("waveContext", p.WaveContext != "")
	add("scarsDigest", p.ScarsDigest != "")
	add("stateDigest", p.StateDigest != "")
	add("boundaries", len(p.Boundaries) > 0)
	add("tooling", p.Tooling != Tooling{})
	return slots
}
