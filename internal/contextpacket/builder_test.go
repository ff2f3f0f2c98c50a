package contextpacket

import (
	"testing"

	"github.com/nexuscore/orchestrator/internal/config"
	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/nexuscore/orchestrator/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFiles map[string]string

func (f fakeFiles) ReadFile(path string) ([]byte, error) {
	content, ok := f[path]
	if !ok {
		return nil, assert.AnError
	}
	return []byte(content), nil
}

type fakeScars struct{ digest string }

func (f fakeScars) ActiveRulesDigest(maxLines int) (string, error) { return f.digest, nil }

func newGraph(t *testing.T, nodes []graph.TaskNode) *graph.TaskGraph {
	t.Helper()
	g, err := graph.New("execute", nodes)
	require.NoError(t, err)
	return g
}

func TestBuildPopulatesAllSlots(t *testing.T) {
	nodes := []graph.TaskNode{
		{ID: "t1", Description: "wire config loader", Wave: 1, DeclaredFiles: []string{"internal/config/config.go"}, Status: graph.StatusCompleted},
		{ID: "t2", Description: "add validation", Wave: 2, DependsOn: []string{"t1"}, DeclaredFiles: []string{"internal/config/validate.go"}, Risk: graph.RiskMedium, TDDMode: graph.TDDStandard, AcceptanceCriteria: []string{"AC-1"}},
	}
	g := newGraph(t, nodes)
	task := g.Node("t2")

	builder := &Builder{
		Files: fakeFiles{"internal/config/validate.go": "package config\n"},
		Modules: index.ModuleMap{
			{Name: "config", Files: []string{"internal/config"}},
		},
		Contracts: index.ContractsMap{
			{Name: "settings-contract", Paths: []string{"internal/config/validate.go"}},
		},
		Symbols: index.SymbolIndex{
			"internal/config/validate.go": {Exports: []string{"Validate"}, Imports: []string{"internal/config/config.go"}},
			"internal/config/config.go":  {Exports: []string{"Settings", "Default"}},
		},
		Tests: index.TestMap{
			"internal/config/validate.go": {"internal/config/validate_test.go"},
		},
		Scars:    fakeScars{digest: "RULE: never skip validation"},
		Settings: config.Default("demo"),
	}

	packet, err := builder.Build(task, g, PlanContext{
		MissionText:        "Ship a safe config loader.",
		PhaseObjectiveText: "Add validation to config.",
		StateText:          "phase: execute\n",
		Boundaries:         []string{"internal/legacy/"},
	}, true)
	require.NoError(t, err)

	require.Equal(t, "t2", packet.Identity.TaskID)
	require.Equal(t, graph.RiskMedium, packet.Identity.RiskTier)
	require.Equal(t, []string{"internal/config/validate.go"}, packet.Files)
	require.Equal(t, "package config\n", packet.FilesContent["internal/config/validate.go"])
	require.Len(t, packet.ArchitectureSlice, 1)
	require.Equal(t, "config", packet.ArchitectureSlice[0].Name)
	require.Len(t, packet.ContractsSlice, 1)
	require.Equal(t, []string{"Settings", "Default"}, packet.DependencySymbols["internal/config/config.go"])
	require.Contains(t, packet.TestsSlice, "internal/config/validate.go")
	require.Contains(t, packet.WaveContext, "Wave 1 | t1")
	require.Equal(t, "RULE: never skip validation", packet.ScarsDigest)
	require.Equal(t, []string{"internal/legacy/"}, packet.Boundaries)
	require.NotEmpty(t, packet.Tooling.Test)
}

func TestBuildNeverWidensFilesBeyondDeclared(t *testing.T) {
	nodes := []graph.TaskNode{
		{ID: "t1", Wave: 1, DeclaredFiles: []string{"a.go"}},
	}
	g := newGraph(t, nodes)
	builder := &Builder{Files: fakeFiles{"a.go": "package a\n"}}

	packet, err := builder.Build(g.Node("t1"), g, PlanContext{}, true)
	require.NoError(t, err)
	require.Equal(t, []string{"a.go"}, packet.Files)
}

func TestBuildFailsMissingIndexOnNonTrivialGraph(t *testing.T) {
	nodes := []graph.TaskNode{
		{ID: "t1", Wave: 1, DeclaredFiles: []string{"a.go"}},
		{ID: "t2", Wave: 2, DependsOn: []string{"t1"}, DeclaredFiles: []string{"b.go"}},
	}
	g := newGraph(t, nodes)
	builder := &Builder{Files: fakeFiles{"b.go": "package a\n"}}

	_, err := builder.Build(g.Node("t2"), g, PlanContext{}, false)
	require.Error(t, err)
}
