// Package loop implements the Loop Controller (C8): the top-level
// PLAN -> EXECUTE -> VERIFY -> UNIFY state machine. It routes between
// the scheduler, the verification ladder, the checkpoint manager, and
// the scar registry, and owns auto-advance pauses and the loop marks in
// the project-state file (§4.8).
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/nexuscore/orchestrator/internal/scar"
	"github.com/nexuscore/orchestrator/internal/verify"
	"github.com/nexuscore/orchestrator/internal/workspace"
	"go.uber.org/zap"
)

// Phase names the four loop phases.
type Phase string

const (
	PhasePlanning Phase = "planning"
	PhaseExecute  Phase = "execute"
	PhaseVerify   Phase = "verify"
	PhaseUnify    Phase = "unify"
)

// Outcome summarises one full cycle.
type Outcome struct {
	Report         verify.Report
	MergeApproved  bool
	GapPlanPath    string
	SummaryPath    string
	HandoffPath    string
	BlockedOnHuman bool

	next string
}

// Controller drives one plan through the four phases.
type Controller struct {
	Store *workspace.Store
	Scars *scar.Registry

	// RunWave executes one wave of the task graph; satisfied by the
	// wave scheduler.
	RunWave func(ctx context.Context, plan workspace.Plan, g *graph.TaskGraph, wave int) error
	// Verify runs the eight-rung ladder; satisfied by verify.Ladder.
	Verify func(ctx context.Context, plan workspace.Plan, g *graph.TaskGraph) (verify.Report, error)

	AutoAdvance  bool
	PauseSeconds int
	// Cancel delivers the human's typed "stop" during an auto-advance
	// pause; it prevents the next phase, never in-flight work (§5).
	Cancel <-chan struct{}

	Log *zap.Logger

	now func() time.Time
}

func (c *Controller) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now().UTC()
}

func (c *Controller) logger() *zap.Logger {
	if c.Log != nil {
		return c.Log
	}
	return zap.NewNop()
}

// ValidatePlan enforces the planning -> execute gate (§4.8): every task
// carries its required fields, the graph invariants hold, and the
// checkpoint-before flag is set when any high/critical task exists.
func ValidatePlan(plan workspace.Plan) (*graph.TaskGraph, error) {
	for _, task := range plan.Tasks {
		if task.ID == "" {
			return nil, fmt.Errorf("loop: plan task without an id")
		}
		if task.Wave < 1 {
			return nil, fmt.Errorf("loop: task %s has no wave number", task.ID)
		}
		if len(task.DeclaredFiles) == 0 {
			return nil, fmt.Errorf("loop: task %s declares no files", task.ID)
		}
		if len(task.DeclaredFiles) > graph.MaxDeclaredFiles {
			return nil, fmt.Errorf("loop: task %s declares %d files, max is %d", task.ID, len(task.DeclaredFiles), graph.MaxDeclaredFiles)
		}
		switch task.Risk {
		case graph.RiskLow, graph.RiskMedium, graph.RiskHigh, graph.RiskCritical:
		default:
			return nil, fmt.Errorf("loop: task %s has unknown risk tier %q", task.ID, task.Risk)
		}
	}

	g, err := graph.New(plan.FrontMatter.Phase, plan.Tasks)
	if err != nil {
		return nil, fmt.Errorf("loop: plan graph invalid: %w", err)
	}

	for _, task := range plan.Tasks {
		if task.Risk.HighOrCritical() && !plan.FrontMatter.CheckpointBefore {
			return nil, fmt.Errorf("loop: task %s is %s-risk but checkpoint_before is not set", task.ID, task.Risk)
		}
	}
	return g, nil
}

// RunCycle drives one plan from PLAN through UNIFY (or to a gap-closure
// plan on rejection). Between phases it pauses for cancellation; a
// typed stop ends the cycle at the current boundary.
func (c *Controller) RunCycle(ctx context.Context, plan workspace.Plan) (Outcome, error) {
	log := c.logger()
	phase := plan.FrontMatter.Phase

	// PLAN.
	c.setMarks(phase, workspace.MarkActive, workspace.MarkNotStarted, workspace.MarkNotStarted, workspace.MarkNotStarted, "validate plan")
	g, err := ValidatePlan(plan)
	if err != nil {
		return Outcome{}, err
	}
	c.logEvent("plan-valid", "", map[string]any{"phase": phase, "tasks": len(plan.Tasks)})
	if !c.pauseForCancel(ctx, "execute") {
		return Outcome{}, nil
	}

	// EXECUTE.
	c.setMarks(phase, workspace.MarkComplete, workspace.MarkActive, workspace.MarkNotStarted, workspace.MarkNotStarted, "run waves")
	for wave := 1; wave <= g.WaveCount; wave++ {
		for attempt := 0; ; attempt++ {
			if err := c.RunWave(ctx, plan, g, wave); err != nil {
				return Outcome{}, fmt.Errorf("loop: execute wave %d: %w", wave, err)
			}
			if g.WaveComplete(wave) {
				break
			}
			// Auto-advance may resolve verify/decision checkpoints; a
			// decision resolution re-queues the task, so the wave gets
			// one more pass before the loop yields to the human.
			c.resolveBlocked(g)
			if g.WaveComplete(wave) {
				break
			}
			if attempt >= 1 || !waveHasPending(g, wave) {
				// A human-action gate (or unresolved block) stops the loop
				// at this wave boundary; the state file records the
				// blockers.
				c.recordBlockers(phase, g)
				return Outcome{BlockedOnHuman: true}, nil
			}
		}
	}
	c.logEvent("waves-complete", "", map[string]any{"phase": phase})
	if !c.pauseForCancel(ctx, "verify") {
		return Outcome{}, nil
	}

	// VERIFY.
	c.setMarks(phase, workspace.MarkComplete, workspace.MarkComplete, workspace.MarkActive, workspace.MarkNotStarted, "run verification ladder")
	report, err := c.Verify(ctx, plan, g)
	if err != nil {
		return Outcome{}, fmt.Errorf("loop: verify: %w", err)
	}
	if c.Store != nil {
		data, err := report.Encode()
		if err != nil {
			return Outcome{}, err
		}
		if err := c.Store.WriteVerificationReport(phase, plan.FrontMatter.PlanNumber, data); err != nil {
			return Outcome{}, err
		}
	}

	if !report.MergeApproved {
		// verify -> planning (gap closure), §4.8.
		gapPath, err := c.writeGapClosurePlan(plan, report)
		if err != nil {
			return Outcome{Report: report}, err
		}
		c.setMarks(phase, workspace.MarkComplete, workspace.MarkComplete, workspace.MarkComplete, workspace.MarkNotStarted, "run gap-closure plan")
		log.Warn("merge rejected, gap-closure plan created", zap.String("plan", gapPath))
		return Outcome{Report: report, GapPlanPath: gapPath}, nil
	}
	if !c.pauseForCancel(ctx, "unify") {
		return Outcome{Report: report, MergeApproved: true}, nil
	}

	// UNIFY.
	c.setMarks(phase, workspace.MarkComplete, workspace.MarkComplete, workspace.MarkComplete, workspace.MarkActive, "unify")
	outcome, err := c.unify(plan, g, report)
	if err != nil {
		return outcome, err
	}
	c.setMarks(phase, workspace.MarkComplete, workspace.MarkComplete, workspace.MarkComplete, workspace.MarkComplete, outcome.nextAction())
	return outcome, nil
}

// pauseForCancel waits the configured number of seconds for a typed
// stop before the named transition (§4.8). Returns false when the human
// cancelled or ctx ended. With auto-advance off, or no pause configured,
// it returns true at once without waiting.
func (c *Controller) pauseForCancel(ctx context.Context, next string) bool {
	if c.PauseSeconds <= 0 || !c.AutoAdvance {
		return true
	}
	c.logger().Info("advancing", zap.String("next", next), zap.Int("pause_seconds", c.PauseSeconds))
	select {
	case <-ctx.Done():
		return false
	case <-c.Cancel:
		c.logger().Info("cancelled by human before transition", zap.String("next", next))
		return false
	case <-time.After(time.Duration(c.PauseSeconds) * time.Second):
		return true
	}
}

// resolveBlocked applies auto-advance policy to blocked tasks (§4.4,
// §7): human-verify defaults to approve, decision defaults to the first
// option, human-action always stays blocked.
func (c *Controller) resolveBlocked(g *graph.TaskGraph) {
	if !c.AutoAdvance {
		return
	}
	for _, task := range g.Nodes() {
		if task.Status != graph.StatusBlocked {
			continue
		}
		switch task.BlockReason {
		case graph.BlockReasonHumanVerify:
			task.Status = graph.StatusCompleted
			task.Deviations = append(task.Deviations, "human-verify checkpoint auto-approved under auto-advance")
		case graph.BlockReasonDecision:
			task.Status = graph.StatusPending
			task.Deviations = append(task.Deviations, "decision checkpoint auto-resolved to first option under auto-advance")
		}
	}
	if c.Store != nil {
		if err := c.Store.WriteTaskGraph(g); err != nil {
			c.logger().Error("failed to persist task graph after block resolution", zap.Error(err))
		}
	}
}

func waveHasPending(g *graph.TaskGraph, wave int) bool {
	for _, task := range g.Wave(wave) {
		if task.Status == graph.StatusPending {
			return true
		}
	}
	return false
}

func (c *Controller) recordBlockers(phase string, g *graph.TaskGraph) {
	if c.Store == nil {
		return
	}
	var blockers []string
	for _, task := range g.Nodes() {
		if task.Status == graph.StatusBlocked {
			blockers = append(blockers, fmt.Sprintf("%s (%s)", task.ID, task.BlockReason))
		}
	}
	state, err := c.Store.ReadState()
	if err != nil {
		return
	}
	state.Phase = phase
	state.ActiveBlockers = blockers
	state.LastTimestamp = c.clock().Format(time.RFC3339)
	state.NextAction = "resolve blocked tasks"
	_ = c.Store.WriteState(state)
}

func (c *Controller) setMarks(phase string, plan, execute, verifyMark, unify workspace.LoopMark, nextAction string) {
	if c.Store == nil {
		return
	}
	state, err := c.Store.ReadState()
	if err != nil {
		state = workspace.ProjectState{}
	}
	state.Phase = phase
	state.Plan = plan
	state.Execute = execute
	state.Verify = verifyMark
	state.Unify = unify
	state.LastTimestamp = c.clock().Format(time.RFC3339)
	state.NextAction = nextAction
	if err := c.Store.WriteState(state); err != nil {
		c.logger().Error("failed to persist project state", zap.Error(err))
	}
}

func (c *Controller) logEvent(event, taskID string, fields map[string]any) {
	if c.Store == nil {
		return
	}
	_ = c.Store.AppendMissionLog(workspace.MissionLogEntry{
		Component: "loop",
		TaskID:    taskID,
		Event:     event,
		Fields:    fields,
	})
}
