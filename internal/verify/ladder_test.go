package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nexuscore/orchestrator/internal/config"
	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/nexuscore/orchestrator/internal/scar"
	"github.com/nexuscore/orchestrator/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiff struct {
	files []string
	err   error
}

func (f fakeDiff) ChangedFiles(string) ([]string, error) { return f.files, f.err }

type fakeRunner struct {
	failing map[string]bool
	ran     []string
}

func (f *fakeRunner) Run(_ context.Context, command string) (string, error) {
	f.ran = append(f.ran, command)
	if f.failing[command] {
		return "boom", errors.New(command + " failed")
	}
	return "all good", nil
}

type fakeScars struct {
	appended []scar.Scar
}

func (f *fakeScars) Append(s scar.Scar) (scar.Scar, error) {
	f.appended = append(f.appended, s)
	return s, nil
}

func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const substantiveSource = `package hello

import "fmt"

// Greet returns the greeting for name.
func Greet(name string) string {
	if name == "" {
		name = "world"
	}
	return fmt.Sprintf("Hello, %s", name)
}
`

func completedGraph(t *testing.T, files ...string) *graph.TaskGraph {
	t.Helper()
	g, err := graph.New("phase-1", []graph.TaskNode{{
		ID:            "T01",
		Description:   "implement greeting",
		Wave:          1,
		DeclaredFiles: files,
		Risk:          graph.RiskLow,
		TDDMode:       graph.TDDStandard,
		Status:        graph.StatusCompleted,
		PreRunRef:     "abc123",
	}})
	require.NoError(t, err)
	return g
}

func planWith(musts workspace.MustHaves, browserRequired bool) workspace.Plan {
	return workspace.Plan{FrontMatter: workspace.PlanFrontMatter{
		Phase:           "phase-1",
		PlanNumber:      1,
		BrowserRequired: browserRequired,
		MustHaves:       musts,
	}}
}

func TestLadderApprovesCleanPlan(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/hello.go", substantiveSource)
	writeProjectFile(t, root, "src/hello_test.go", substantiveSource)

	l := &Ladder{
		Root:     root,
		Diff:     fakeDiff{files: []string{"src/hello.go", "src/hello_test.go"}},
		Runner:   &fakeRunner{},
		Commands: config.CommandSettings{Test: "go test ./...", Lint: "go vet ./..."},
	}
	report, err := l.Run(context.Background(), planWith(workspace.MustHaves{}, false),
		completedGraph(t, "src/hello.go", "src/hello_test.go"))
	require.NoError(t, err)

	assert.True(t, report.MergeApproved)
	for _, rung := range []Rung{RungPhysicality, RungDeterministic, RungDeltaTests, RungAdversarial} {
		res, ok := report.RungResult(rung)
		require.True(t, ok, "missing rung %s", rung)
		assert.Equal(t, StatusOK, res.Status, "rung %s", rung)
	}
	browser, _ := report.RungResult(RungBrowser)
	assert.Equal(t, StatusNotApplicable, browser.Status)
}

func TestFailFastHaltsLadderOnPhysicality(t *testing.T) {
	root := t.TempDir()
	// Declared file never written: rung 1 must fail and rungs 3-7 must
	// be skipped, never executed (testable property 6).
	runner := &fakeRunner{}
	l := &Ladder{
		Root:     root,
		Diff:     fakeDiff{},
		Runner:   runner,
		Commands: config.CommandSettings{Test: "go test ./...", Lint: "go vet ./..."},
	}
	report, err := l.Run(context.Background(), planWith(workspace.MustHaves{}, false),
		completedGraph(t, "src/missing.go"))
	require.NoError(t, err)

	assert.False(t, report.MergeApproved)
	phys, _ := report.RungResult(RungPhysicality)
	assert.Equal(t, StatusFailed, phys.Status)
	for _, rung := range []Rung{RungDeterministic, RungDeltaTests, RungGoalBackward, RungAdversarial, RungSystem, RungBrowser} {
		res, _ := report.RungResult(rung)
		assert.Equal(t, StatusSkipped, res.Status, "rung %s should be skipped", rung)
	}
	assert.Empty(t, runner.ran, "no command may run after a fail-fast halt")
}

func TestDeterministicFailureHaltsLaterRungs(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/hello.go", substantiveSource)

	runner := &fakeRunner{failing: map[string]bool{"go vet ./...": true}}
	l := &Ladder{
		Root:     root,
		Diff:     fakeDiff{files: []string{"src/hello.go"}},
		Runner:   runner,
		Commands: config.CommandSettings{Lint: "go vet ./...", Test: "go test ./..."},
	}
	report, err := l.Run(context.Background(), planWith(workspace.MustHaves{}, false),
		completedGraph(t, "src/hello.go"))
	require.NoError(t, err)

	det, _ := report.RungResult(RungDeterministic)
	assert.Equal(t, StatusFailed, det.Status)
	delta, _ := report.RungResult(RungDeltaTests)
	assert.Equal(t, StatusSkipped, delta.Status)
	assert.False(t, report.MergeApproved)
}

func TestUndeclaredWriteRejectsWithSuggestion(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/hello.go", substantiveSource)
	writeProjectFile(t, root, "src/helo.go", substantiveSource)

	l := &Ladder{
		Root:   root,
		Diff:   fakeDiff{files: []string{"src/hello.go", "src/helo.go"}},
		Runner: &fakeRunner{},
	}
	report, err := l.Run(context.Background(), planWith(workspace.MustHaves{}, false),
		completedGraph(t, "src/hello.go"))
	require.NoError(t, err)

	assert.False(t, report.MergeApproved)
	phys, _ := report.RungResult(RungPhysicality)
	require.Equal(t, StatusFailed, phys.Status)
	require.NotEmpty(t, phys.Gaps)
	assert.Contains(t, phys.Gaps[0].Why, "undeclared write")
	assert.Contains(t, phys.Gaps[0].Why, "did you mean src/hello.go?")
}

func TestRejectionWritesProvisionalScar(t *testing.T) {
	root := t.TempDir()
	scars := &fakeScars{}
	l := &Ladder{
		Root:   root,
		Diff:   fakeDiff{},
		Runner: &fakeRunner{},
		Scars:  scars,
	}
	report, err := l.Run(context.Background(), planWith(workspace.MustHaves{}, false),
		completedGraph(t, "src/missing.go"))
	require.NoError(t, err)

	assert.False(t, report.MergeApproved)
	require.Len(t, scars.appended, 1)
	assert.True(t, scars.appended[0].Provisional)
	assert.NotEmpty(t, scars.appended[0].PreventionRule)
}

func TestWorkspaceWritesAreNotUndeclared(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/hello.go", substantiveSource)

	l := &Ladder{
		Root:   root,
		Diff:   fakeDiff{files: []string{"src/hello.go", ".nexus/05-runtime/task-graph.json"}},
		Runner: &fakeRunner{},
	}
	report, err := l.Run(context.Background(), planWith(workspace.MustHaves{}, false),
		completedGraph(t, "src/hello.go"))
	require.NoError(t, err)
	assert.True(t, report.MergeApproved)
}
