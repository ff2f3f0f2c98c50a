package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuscore/orchestrator/internal/checks"
	"github.com/nexuscore/orchestrator/internal/config"
	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/nexuscore/orchestrator/internal/index"
	"github.com/nexuscore/orchestrator/internal/scar"
	"github.com/nexuscore/orchestrator/internal/workspace"
	"go.uber.org/zap"
)

// DiffSource is the version-control capability the ladder needs: the
// file set changed since a recorded pre-run ref. Satisfied by vcs.Repo.
type DiffSource interface {
	ChangedFiles(ref string) ([]string, error)
}

// ScarWriter receives the provisional scar written on merge rejection
// (§4.5 output). Satisfied by the scar registry.
type ScarWriter interface {
	Append(s scar.Scar) (scar.Scar, error)
}

// Ladder runs the eight rungs for one plan.
type Ladder struct {
	// Root is the project working-tree root declared file paths are
	// relative to.
	Root string

	Diff     DiffSource
	Runner   CommandRunner
	Commands config.CommandSettings
	TestMap  index.TestMap

	// Plugins extend rung 5 with project-local adversarial checks.
	Plugins []checks.Plugin

	// Browser is the rung-7 collaborator; nil means unavailable.
	// BrowserPrompt, when set, is asked once if the plan requires
	// browser validation but no collaborator is configured; an empty
	// answer records a gap and the ladder continues.
	Browser       Collaborator
	BrowserPrompt func(question string) string
	Flows         []FlowSpec
	Stability     *StabilityTracker

	Scars ScarWriter
	Log   *zap.Logger

	now func() time.Time
}

func (l *Ladder) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now().UTC()
}

func (l *Ladder) logger() *zap.Logger {
	if l.Log != nil {
		return l.Log
	}
	return zap.NewNop()
}

// Run executes the ladder for one plan against its task graph. Rungs 1
// and 2 are fail-fast: on failure, later rungs are recorded as skipped
// and the merge is rejected (§4.5, testable property 6).
func (l *Ladder) Run(ctx context.Context, plan workspace.Plan, g *graph.TaskGraph) (Report, error) {
	report := Report{
		Phase:      plan.FrontMatter.Phase,
		PlanNumber: plan.FrontMatter.PlanNumber,
		StartedAt:  l.clock(),
	}
	modified, declared := l.modifiedAndDeclared(g)

	halted := false
	record := func(result RungResult) {
		report.Rungs = append(report.Rungs, result)
		l.logger().Info("rung finished",
			zap.String("rung", string(result.Rung)),
			zap.String("status", string(result.Status)),
			zap.Int("gaps", len(result.Gaps)))
	}
	runOrSkip := func(name Rung, fn func() RungResult) {
		if halted {
			record(RungResult{Rung: name, Status: StatusSkipped, Detail: "ladder halted by a fail-fast rung"})
			return
		}
		record(fn())
	}

	// Rungs 1-2: fail-fast gates.
	physicality := l.runPhysicality(g, modified, declared)
	record(physicality)
	if physicality.Status == StatusFailed {
		halted = true
	}
	runOrSkip(RungDeterministic, func() RungResult { return l.runDeterministic(ctx, modified) })
	if !halted {
		if res, ok := report.RungResult(RungDeterministic); ok && res.Status == StatusFailed {
			halted = true
		}
	}

	// Rungs 3-7: non-blocking, collect gaps and continue.
	runOrSkip(RungDeltaTests, func() RungResult { return l.runDeltaTests(ctx, modified) })
	runOrSkip(RungGoalBackward, func() RungResult { return l.runGoalBackward(plan.FrontMatter.MustHaves, modified) })
	runOrSkip(RungAdversarial, func() RungResult { return l.runAdversarial(modified) })
	runOrSkip(RungSystem, func() RungResult { return l.runSystem(ctx) })
	runOrSkip(RungBrowser, func() RungResult { return l.runBrowser(ctx, plan.FrontMatter.BrowserRequired) })

	// Rung 8: merge-judge.
	record(l.judge(report))
	judge, _ := report.RungResult(RungMergeJudge)
	report.MergeApproved = judge.Status == StatusOK
	report.FinishedAt = l.clock()

	if !report.MergeApproved && l.Scars != nil {
		if err := l.writeProvisionalScar(report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// judge is rung 8: every earlier rung must be ok, not-applicable, or
// skipped for a reason other than a fail-fast halt; any failed rung, and
// any of rungs 3-7 skipped by a halt, rejects the merge (§4.5 rung 8).
func (l *Ladder) judge(report Report) RungResult {
	var gaps []Gap
	for _, rung := range report.Rungs {
		if rung.Status == StatusFailed {
			gaps = append(gaps, Gap{
				Rung: RungMergeJudge,
				Why:  fmt.Sprintf("rung %s failed: %s", rung.Rung, rung.Detail),
			})
		}
		if rung.Status == StatusSkipped && (rung.Rung == RungDeltaTests || rung.Rung == RungGoalBackward ||
			rung.Rung == RungAdversarial || rung.Rung == RungSystem || rung.Rung == RungBrowser) &&
			rung.Detail == "ladder halted by a fail-fast rung" {
			gaps = append(gaps, Gap{
				Rung: RungMergeJudge,
				Why:  fmt.Sprintf("rung %s never ran: halted by a fail-fast rung", rung.Rung),
			})
		}
	}
	if len(gaps) > 0 {
		return RungResult{Rung: RungMergeJudge, Status: StatusFailed, Detail: "merge rejected", Gaps: gaps}
	}
	return RungResult{Rung: RungMergeJudge, Status: StatusOK, Detail: "merge approved"}
}

func (l *Ladder) writeProvisionalScar(report Report) error {
	gaps := report.Gaps()
	why := "verification rejected the plan"
	if len(gaps) > 0 {
		why = gaps[0].Why
	}
	_, err := l.Scars.Append(scar.Scar{
		Category:       scar.CategoryProcess,
		Description:    fmt.Sprintf("plan %d of phase %s rejected by verification", report.PlanNumber, report.Phase),
		RootCause:      why,
		Resolution:     "gap-closure plan",
		PreventionRule: fmt.Sprintf("before re-verifying phase %s, close the gap: %s", report.Phase, why),
		Provisional:    true,
	})
	if err != nil {
		return fmt.Errorf("verify: write provisional scar: %w", err)
	}
	return nil
}

// modifiedAndDeclared computes the changed-file set across every task
// with a recorded pre-run ref, and the union of declared files. Diffs
// use recorded pre-run refs, never HEAD, because HEAD advances
// intra-wave (§4.5 rung 1, §9).
func (l *Ladder) modifiedAndDeclared(g *graph.TaskGraph) (modified []string, declared map[string]bool) {
	declared = map[string]bool{}
	seen := map[string]bool{}
	for _, task := range g.Nodes() {
		for _, f := range task.DeclaredFiles {
			declared[f] = true
		}
	}
	if l.Diff == nil {
		return nil, declared
	}
	for _, task := range g.Nodes() {
		if task.PreRunRef == "" {
			continue
		}
		changed, err := l.Diff.ChangedFiles(task.PreRunRef)
		if err != nil {
			l.logger().Warn("diff against pre-run ref failed",
				zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		for _, f := range changed {
			if !seen[f] {
				seen[f] = true
				modified = append(modified, f)
			}
		}
	}
	return modified, declared
}
