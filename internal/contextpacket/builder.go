package contextpacket

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/nexuscore/orchestrator/internal/config"
	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/nexuscore/orchestrator/internal/index"
	"github.com/nexuscore/orchestrator/internal/nexuserr"
)

const (
	maxMissionLines = 20
	maxPhaseLines   = 15
	maxAcceptLines  = 50
	maxWaveLines    = 30
	maxScarsLines   = 30
	maxStateLines   = 150
)

// ScarDigestSource supplies the active-prevention-rules table (§4.6/§4.2
// step 8). Satisfied by the scar registry; kept as an interface here so
// this package does not import it back.
type ScarDigestSource interface {
	ActiveRulesDigest(maxLines int) (string, error)
}

// FileReader abstracts the workspace's current on-disk file contents so
// the Builder can be tested without a real workspace tree.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// PlanContext carries the plan-scoped text the Builder truncates into
// the why/constraints slots. MissionText, PhaseObjectiveText,
// StateText and Boundaries come straight from the
// workspace's mission, plan and state files.
type PlanContext struct {
	MissionText        string
	PhaseObjectiveText string
	StateText          string
	Boundaries         []string
}

// Builder assembles ContextPackets. It never parses source code and
// never follows imports beyond depth 1 (§4.2 invariant).
type Builder struct {
	Files     FileReader
	Modules   index.ModuleMap
	Contracts index.ContractsMap
	Symbols   index.SymbolIndex
	Tests     index.TestMap
	Scars     ScarDigestSource
	Settings  config.Settings
}

// osFileReader reads directly from the filesystem.
type osFileReader struct{}

func (osFileReader) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// OSFiles is the default FileReader, backed by the real filesystem.
var OSFiles FileReader = osFileReader{}

// Build assembles the packet for one task, given the full graph it
// belongs to (for wave-context lookups) and the plan text it was cut
// from.
//
// indexesReady tells the Builder whether the codebase indexer has run:
// when false, the module map is empty and the task graph has more than
// one task, Build fails with *nexuserr.ErrMissingIndex* rather than
// leaving the slices silently empty. A graph of a single task is
// treated as a brand-new project, per §4.2's exception.
func (b *Builder) Build(task *graph.TaskNode, g *graph.TaskGraph, plan PlanContext, indexesReady bool) (ContextPacket, error) {
	if !indexesReady && len(b.Modules) == 0 && len(g.Nodes()) > 1 {
		return ContextPacket{}, fmt.Errorf("contextpacket: %w", nexuserr.ErrMissingIndex)
	}

	files := append([]string(nil), task.DeclaredFiles...)

	filesContent := make(map[string]string, len(files))
	for _, path := range files {
		content, err := b.Files.ReadFile(path)
		if err != nil {
			filesContent[path] = ""
			continue
		}
		filesContent[path] = string(content)
	}

	packet := ContextPacket{
		Identity: Identity{
			TaskID:   task.ID,
			TDDMode:  task.TDDMode,
			RiskTier: task.Risk,
		},
		MissionContext:     firstLines(plan.MissionText, maxMissionLines),
		PhaseObjective:     firstLines(plan.PhaseObjectiveText, maxPhaseLines),
		Files:              files,
		FilesContent:       filesContent,
		AcceptanceCriteria: capSlice(task.AcceptanceCriteria, maxAcceptLines),
		ArchitectureSlice:  b.Modules.ModulesFor(files),
		ContractsSlice:     b.Contracts.ContractsFor(files),
		DependencySymbols:  b.dependencySymbols(files),
		TestsSlice:         b.testsSlice(files),
		WaveContext:        b.waveContext(task, g),
		Boundaries:         plan.Boundaries,
		StateDigest:        firstLines(plan.StateText, maxStateLines),
		Tooling: Tooling{
			Test:        b.Settings.Commands.Test,
			Lint:        b.Settings.Commands.Lint,
			TypeCheck:   b.Settings.Commands.TypeCheck,
			FormatCheck: b.Settings.Commands.FormatCheck,
			Build:       b.Settings.Commands.Build,
		},
	}

	if b.Scars != nil {
		digest, err := b.Scars.ActiveRulesDigest(maxScarsLines)
		if err != nil {
			return ContextPacket{}, fmt.Errorf("contextpacket: scars digest: %w", err)
		}
		packet.ScarsDigest = digest
	}

	return packet, nil
}

// dependencySymbols implements §4.2 step 5: depth-1 only, never a
// transitive graph walk.
func (b *Builder) dependencySymbols(files []string) map[string][]string {
	inTask := make(map[string]bool, len(files))
	for _, f := range files {
		inTask[f] = true
	}
	out := map[string][]string{}
	for _, f := range files {
		entry, ok := b.Symbols[f]
		if !ok {
			continue
		}
		for _, imported := range entry.Imports {
			if inTask[imported] {
				continue
			}
			if dep, ok := b.Symbols[imported]; ok {
				out[imported] = dep.Exports
			}
		}
	}
	return out
}

func (b *Builder) testsSlice(files []string) map[string][]string {
	out := map[string][]string{}
	for _, f := range files {
		if tests, ok := b.Tests[f]; ok {
			out[f] = tests
		}
	}
	return out
}

// waveContext implements §4.2 step 7: one line per completed task in an
// earlier wave, truncated to 30 lines preferring more recent waves.
func (b *Builder) waveContext(task *graph.TaskNode, g *graph.TaskGraph) string {
	type entry struct {
		wave int
		line string
	}
	var entries []entry
	for _, n := range g.Nodes() {
		if n.Wave >= task.Wave || n.Status != graph.StatusCompleted {
			continue
		}
		entries = append(entries, entry{
			wave: n.Wave,
			line: fmt.Sprintf("Wave %d | %s: %s; files: %s", n.Wave, n.ID, n.Description, strings.Join(n.DeclaredFiles, ", ")),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].wave < entries[j].wave })

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.line)
	}
	if len(lines) > maxWaveLines {
		lines = lines[len(lines)-maxWaveLines:]
	}
	return strings.Join(lines, "\n")
}

func firstLines(text string, n int) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func capSlice(items []string, maxLines int) []string {
	if len(items) <= maxLines {
		return items
	}
	return items[:maxLines]
}
