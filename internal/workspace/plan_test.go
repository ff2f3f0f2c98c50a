package workspace

import (
	"testing"
	"time"

	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

const samplePlan = `---
phase: auth
plan_number: 1
status: approved
risk_tier: medium
tdd_mode: standard
browser_required: false
checkpoint_before: true
wave_count: 2
must_haves:
  truths:
    - "login returns a session token"
  artefacts:
    - "src/auth/login.go"
  key_links:
    - from: "src/auth/handler.go"
      to: "src/auth/login.go"
      via: "Login"
tasks:
  - id: T01
    description: implement login
    wave: 1
    files_modified:
      - src/auth/login.go
      - src/auth/login_test.go
    risk: high
    tdd_mode: hard
    acceptance_criteria:
      - AC1
  - id: T02
    description: wire handler
    wave: 2
    depends_on:
      - T01
    files_modified:
      - src/auth/handler.go
    risk: low
    tdd_mode: skip
boundaries:
  - src/payments/
---

# Plan body

Acceptance criteria table lives here.
`

func TestParsePlanFrontMatter(t *testing.T) {
	plan, err := ParsePlan([]byte(samplePlan))
	require.NoError(t, err)

	fm := plan.FrontMatter
	assert.Equal(t, "auth", fm.Phase)
	assert.Equal(t, 1, fm.PlanNumber)
	assert.True(t, fm.CheckpointBefore)
	assert.Equal(t, 2, fm.WaveCount)
	require.Len(t, fm.MustHaves.KeyLinks, 1)
	assert.Equal(t, "Login", fm.MustHaves.KeyLinks[0].Via)

	require.Len(t, plan.Tasks, 2)
	assert.Equal(t, []string{"src/auth/login.go", "src/auth/login_test.go"}, plan.Tasks[0].DeclaredFiles)
	assert.Equal(t, graph.RiskHigh, plan.Tasks[0].Risk)
	assert.Equal(t, []string{"T01"}, plan.Tasks[1].DependsOn)
	assert.Equal(t, []string{"src/payments/"}, plan.Boundaries)
	assert.Contains(t, string(plan.Body), "Plan body")
}

func TestParsePlanSkipWithoutJustificationNormalises(t *testing.T) {
	plan, err := ParsePlan([]byte(samplePlan))
	require.NoError(t, err)

	g, err := graph.New(plan.FrontMatter.Phase, plan.Tasks)
	require.NoError(t, err)
	// T02 declared tdd_mode: skip with no justification; the graph
	// normalises it to standard.
	assert.Equal(t, graph.TDDStandard, g.Node("T02").TDDMode)
}

func TestParsePlanRejectsMissingFrontMatter(t *testing.T) {
	_, err := ParsePlan([]byte("# Just a document\n"))
	require.ErrorIs(t, err, ErrMissingFrontMatter)
}

func TestPlanRoundTripThroughStore(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.WritePlan("auth", 1, []byte(samplePlan)))

	plan, err := store.ReadPlan("auth", 1)
	require.NoError(t, err)
	assert.Equal(t, "auth", plan.FrontMatter.Phase)
}
