package checkpoint

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nexuscore/orchestrator/internal/scar"
	"github.com/nexuscore/orchestrator/internal/vcs"
	"github.com/nexuscore/orchestrator/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, *vcs.Repo) {
	t.Helper()
	dir := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	git("init", "-q")
	git("config", "user.email", "test@example.com")
	git("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("seed\n"), 0o644))
	git("add", "-A")
	git("commit", "-q", "-m", "seed")
	return dir, vcs.Open(dir)
}

func newManager(t *testing.T, dir string, repo *vcs.Repo) (*Manager, *workspace.Store) {
	t.Helper()
	store := workspace.Open(filepath.Join(dir, workspace.RootDirName))
	require.NoError(t, store.Initialise("checkpoint-test"))
	return &Manager{Repo: repo, Store: store, Snapshot: true}, store
}

func TestCreateWritesRecordAndPrivateRef(t *testing.T) {
	dir, repo := initRepo(t)
	m, store := newManager(t, dir, repo)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "feature.go"), []byte("package feature\n"), 0o644))
	id, err := m.Create("T01", "pre-task checkpoint for high-risk task")
	require.NoError(t, err)

	rec, err := store.ReadCheckpointRecord(id)
	require.NoError(t, err)
	assert.Equal(t, "T01", rec.TaskID)
	assert.NotEmpty(t, rec.Ref)
	assert.NotEmpty(t, rec.SnapshotPath)

	cmd := exec.Command("git", "show-ref", vcs.CheckpointRefNamespace+"/"+id)
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	assert.Contains(t, string(out), rec.Ref)
}

func TestRollbackRestoresTreeAndQuarantinesDiff(t *testing.T) {
	dir, repo := initRepo(t)
	m, store := newManager(t, dir, repo)
	scars := &recordingScars{}
	m.Scars = scars

	id, err := m.Create("T02", "before risky edit")
	require.NoError(t, err)

	victim := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(victim, []byte("clobbered\n"), 0o644))

	diff, err := m.PlanRollback(id)
	require.NoError(t, err)
	assert.Contains(t, diff, "clobbered")

	require.NoError(t, m.Rollback(id))

	restored, err := os.ReadFile(victim)
	require.NoError(t, err)
	assert.Equal(t, "seed\n", string(restored))

	quarantine := filepath.Join(store.Root(), workspace.SectionArtifacts, "quarantine")
	entries, err := os.ReadDir(quarantine)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), id+".diff"))

	// Every rollback leaves a scar behind with a derived prevention
	// rule pointing at the recovery checkpoint.
	require.Len(t, scars.appended, 1)
	appended := scars.appended[0]
	assert.Equal(t, scar.CategoryProcess, appended.Category)
	assert.Equal(t, id, appended.RecoveryCheckpoint)
	assert.Contains(t, appended.PreventionRule, "T02")
	assert.Contains(t, appended.PreventionRule, entries[0].Name())
}

type recordingScars struct {
	appended []scar.Scar
}

func (r *recordingScars) Append(s scar.Scar) (scar.Scar, error) {
	r.appended = append(r.appended, s)
	return s, nil
}

func TestRollbackUnknownCheckpoint(t *testing.T) {
	dir, repo := initRepo(t)
	m, _ := newManager(t, dir, repo)
	_, err := m.PlanRollback("cp-missing")
	require.Error(t, err)
}

type staticScarRefs map[string]bool

func (s staticScarRefs) OpenCheckpointRefs() (map[string]bool, error) { return s, nil }

func TestPruneRespectsAgeAndScarProtection(t *testing.T) {
	dir := t.TempDir()
	store := workspace.Open(filepath.Join(dir, workspace.RootDirName))
	require.NoError(t, store.Initialise("prune-test"))

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-72 * time.Hour)
	records := []workspace.CheckpointRecord{
		{ID: "cp-a", CreatedAt: old, Ref: "a"},
		{ID: "cp-b", CreatedAt: old.Add(time.Hour), Ref: "b"},
		{ID: "cp-c", CreatedAt: old.Add(2 * time.Hour), Ref: "c"},
		{ID: "cp-young", CreatedAt: now.Add(-time.Hour), Ref: "d"},
	}
	for _, rec := range records {
		require.NoError(t, store.WriteCheckpointRecord(rec))
	}

	m := &Manager{
		Store:       store,
		MaxRetained: 2,
		ScarRefs:    staticScarRefs{"cp-a": true},
		now:         func() time.Time { return now },
	}
	require.NoError(t, m.Prune())

	remaining, err := store.ListCheckpointRecords()
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, rec := range remaining {
		ids = append(ids, rec.ID)
	}
	// cp-a survives (scar-referenced), cp-young survives (under 24h),
	// cp-b and cp-c are the evictable oldest beyond the bound.
	assert.Equal(t, []string{"cp-a", "cp-young"}, ids)
}
