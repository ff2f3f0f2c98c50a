package scar

import (
	"strings"
	"testing"
	"time"

	"github.com/nexuscore/orchestrator/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store := workspace.Open(t.TempDir() + "/.nexus")
	require.NoError(t, store.Initialise("scar-test"))
	return New(store)
}

func TestAppendThenListActiveRules(t *testing.T) {
	r := newTestRegistry(t)

	appended, err := r.Append(Scar{
		Category:       CategoryImplementation,
		Description:    "worker wrote outside its declared files",
		RootCause:      "prompt did not restate the boundaries list",
		Resolution:     "rolled back to checkpoint",
		PreventionRule: "always restate the boundaries list in the task prompt",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, appended.ID)
	assert.False(t, appended.Timestamp.IsZero())

	rules, err := r.ListActiveRules()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "always restate the boundaries list in the task prompt", rules[0])
}

func TestAppendRejectsInvalidCategory(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Append(Scar{Category: "cosmic", PreventionRule: "n/a"})
	require.Error(t, err)
}

func TestAppendRejectsMissingPreventionRule(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Append(Scar{Category: CategoryTesting})
	require.Error(t, err)
}

func TestRoundTripPreservesFields(t *testing.T) {
	r := newTestRegistry(t)
	in := Scar{
		ID:                 "S-fixed01",
		Timestamp:          time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Category:           CategoryArchitecture,
		Description:        "module split collided with contract map",
		RootCause:          "plan split one module across two waves",
		Resolution:         "re-planned with module-aligned tasks",
		PreventionRule:     "tasks in one plan must not split a module across waves",
		Provisional:        true,
		RecoveryCheckpoint: "cp-123",
	}
	_, err := r.Append(in)
	require.NoError(t, err)

	all, err := r.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, in, all[0])
}

func TestPromoteProvisional(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Append(Scar{
		Category:           CategoryProcess,
		Description:        "verification rejected the plan",
		PreventionRule:     "run gap closure before re-verifying",
		Provisional:        true,
		RecoveryCheckpoint: "cp-9",
	})
	require.NoError(t, err)

	refs, err := r.OpenCheckpointRefs()
	require.NoError(t, err)
	assert.True(t, refs["cp-9"])

	n, err := r.PromoteProvisional()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	refs, err = r.OpenCheckpointRefs()
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestActiveRulesDigestTruncatesOldestFirst(t *testing.T) {
	r := newTestRegistry(t)
	for _, rule := range []string{"rule one", "rule two", "rule three"} {
		_, err := r.Append(Scar{Category: CategoryTooling, Description: "d", PreventionRule: rule})
		require.NoError(t, err)
	}

	digest, err := r.ActiveRulesDigest(2)
	require.NoError(t, err)
	lines := strings.Split(digest, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "rule two")
	assert.Contains(t, lines[1], "rule three")
}
