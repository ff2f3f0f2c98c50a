package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/nexuscore/orchestrator/internal/nexuserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := Open(filepath.Join(t.TempDir(), RootDirName))
	require.NoError(t, store.Initialise("store-test"))
	return store
}

func TestStoreRefusesEverythingBeforeInitialise(t *testing.T) {
	store := Open(filepath.Join(t.TempDir(), RootDirName))

	_, err := store.ReadSettings()
	require.ErrorIs(t, err, nexuserr.ErrWorkspaceAbsent)

	err = store.AppendMissionLog(MissionLogEntry{Component: "test", Event: "x"})
	require.ErrorIs(t, err, nexuserr.ErrWorkspaceAbsent)

	_, err = store.ListCheckpointRecords()
	require.ErrorIs(t, err, nexuserr.ErrWorkspaceAbsent)
}

func TestInitialiseMaterialisesSkeletonAndDefaults(t *testing.T) {
	store := newTestStore(t)

	for _, section := range allSections {
		info, err := os.Stat(filepath.Join(store.Root(), section))
		require.NoError(t, err, "section %s", section)
		assert.True(t, info.IsDir())
	}

	settings, err := store.ReadSettings()
	require.NoError(t, err)
	assert.Equal(t, "store-test", settings.Project.Name)
	assert.Equal(t, 5, settings.Pipeline.MaxParallelWorkers)
	assert.True(t, settings.Pipeline.AutoAdvance)

	state, err := store.ReadState()
	require.NoError(t, err)
	assert.Equal(t, MarkNotStarted, state.Plan)
}

func TestInitialiseIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	settings, err := store.ReadSettings()
	require.NoError(t, err)
	settings.Pipeline.MaxParallelWorkers = 2
	require.NoError(t, store.WriteSettings(settings))

	// A second initialise must not clobber customised settings.
	require.NoError(t, store.Initialise("store-test"))
	settings, err = store.ReadSettings()
	require.NoError(t, err)
	assert.Equal(t, 2, settings.Pipeline.MaxParallelWorkers)
}

func TestStateRoundTrip(t *testing.T) {
	store := newTestStore(t)

	in := ProjectState{
		Phase:           "auth",
		Plan:            MarkComplete,
		Execute:         MarkActive,
		Verify:          MarkNotStarted,
		Unify:           MarkNotStarted,
		ActiveBlockers:  []string{"T02 (checkpoint-human-action)"},
		ScarCount:       2,
		ActiveRuleCount: 2,
		LastTimestamp:   "2026-08-01T10:00:00Z",
		NextAction:      "resolve blocked tasks",
		HandoffFile:     "handoff.md",
	}
	require.NoError(t, store.WriteState(in))

	out, err := store.ReadState()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTaskGraphRoundTrip(t *testing.T) {
	store := newTestStore(t)

	g, err := graph.New("auth", []graph.TaskNode{
		{ID: "T01", Wave: 1, DeclaredFiles: []string{"src/a.go"}, Risk: graph.RiskLow, Status: graph.StatusCompleted, PreRunRef: "abc"},
		{ID: "T02", Wave: 2, DependsOn: []string{"T01"}, DeclaredFiles: []string{"src/b.go"}, Risk: graph.RiskHigh},
	})
	require.NoError(t, err)
	require.NoError(t, store.WriteTaskGraph(g))

	loaded, err := store.ReadTaskGraph()
	require.NoError(t, err)
	assert.Equal(t, "auth", loaded.Phase)
	assert.Equal(t, 2, loaded.WaveCount)
	assert.Equal(t, graph.StatusCompleted, loaded.Node("T01").Status)
	assert.Equal(t, "abc", loaded.Node("T01").PreRunRef)
	assert.Equal(t, []string{"T01"}, loaded.Node("T02").DependsOn)
}

func TestMissionLogAppendOrder(t *testing.T) {
	store := newTestStore(t)

	for _, event := range []string{"first", "second", "third"} {
		require.NoError(t, store.AppendMissionLog(MissionLogEntry{Component: "test", Event: event}))
	}

	entries, err := store.ReadMissionLog()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].Event)
	assert.Equal(t, "third", entries[2].Event)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Timestamp.After(entries[2].Timestamp))
}

func TestCheckpointRecordsListOldestFirst(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.WriteCheckpointRecord(CheckpointRecord{ID: "cp-new", Ref: "b", CreatedAt: mustTime(t, "2026-08-01T12:00:00Z")}))
	require.NoError(t, store.WriteCheckpointRecord(CheckpointRecord{ID: "cp-old", Ref: "a", CreatedAt: mustTime(t, "2026-08-01T10:00:00Z")}))

	records, err := store.ListCheckpointRecords()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "cp-old", records[0].ID)

	require.NoError(t, store.RemoveCheckpointRecord("cp-old"))
	records, err = store.ListCheckpointRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
}
