package loop

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/nexuscore/orchestrator/internal/verify"
	"github.com/nexuscore/orchestrator/internal/workspace"
)

// unify reconciles plan versus actual, writes the summary and handoff
// files, promotes provisional scars, and propagates architectural
// deviations into the architecture section (§4.8).
func (c *Controller) unify(plan workspace.Plan, g *graph.TaskGraph, report verify.Report) (Outcome, error) {
	phase := plan.FrontMatter.Phase
	outcome := Outcome{Report: report, MergeApproved: true}

	var completed, deferred, blocked, archNotes []string
	for _, task := range g.Nodes() {
		switch task.Status {
		case graph.StatusCompleted:
			completed = append(completed, task.ID)
		case graph.StatusDeferred:
			deferred = append(deferred, task.ID)
		case graph.StatusBlocked:
			blocked = append(blocked, fmt.Sprintf("%s (%s)", task.ID, task.BlockReason))
		}
		for _, deviation := range task.Deviations {
			if strings.Contains(strings.ToLower(deviation), "architect") ||
				strings.Contains(strings.ToLower(deviation), "module") {
				archNotes = append(archNotes, fmt.Sprintf("- %s: %s", task.ID, deviation))
			}
		}
	}

	promoted := 0
	activeRules := 0
	scarCount := 0
	if c.Scars != nil {
		var err error
		if promoted, err = c.Scars.PromoteProvisional(); err != nil {
			return outcome, fmt.Errorf("loop: promote scars: %w", err)
		}
		rules, err := c.Scars.ListActiveRules()
		if err != nil {
			return outcome, fmt.Errorf("loop: list rules: %w", err)
		}
		activeRules = len(rules)
		all, err := c.Scars.ListAll()
		if err != nil {
			return outcome, err
		}
		scarCount = len(all)
	}

	if c.Store == nil {
		return outcome, nil
	}

	if len(archNotes) > 0 {
		notes := fmt.Sprintf("\n## Phase %s, plan %d\n\n%s\n", phase, plan.FrontMatter.PlanNumber, strings.Join(archNotes, "\n"))
		if err := c.Store.AppendArchChanges([]byte(notes)); err != nil {
			return outcome, err
		}
	}

	nextAction := c.nextActionFromRoadmap(phase)

	summary := renderSummary(plan, report, completed, deferred, blocked, promoted, nextAction)
	if err := c.Store.WriteSummary(phase, plan.FrontMatter.PlanNumber, summary); err != nil {
		return outcome, err
	}
	outcome.SummaryPath = c.Store.SummaryPath(phase, plan.FrontMatter.PlanNumber)

	handoff := renderHandoff(phase, completed, blocked, activeRules, nextAction, c.clock())
	if err := c.Store.WriteHandoff(handoff); err != nil {
		return outcome, err
	}
	outcome.HandoffPath = c.Store.HandoffPath()

	state, err := c.Store.ReadState()
	if err != nil {
		return outcome, err
	}
	state.Phase = phase
	state.ActiveBlockers = blocked
	state.ScarCount = scarCount
	state.ActiveRuleCount = activeRules
	state.LastTimestamp = c.clock().Format(time.RFC3339)
	state.NextAction = nextAction
	state.HandoffFile = outcome.HandoffPath
	if err := c.Store.WriteState(state); err != nil {
		return outcome, err
	}

	c.logEvent("unify-complete", "", map[string]any{
		"phase":     phase,
		"completed": len(completed),
		"deferred":  len(deferred),
		"promoted":  promoted,
	})
	outcome.next = nextAction
	return outcome, nil
}

// nextActionFromRoadmap reads the mission roadmap checklist: the first
// unchecked phase is the next action; none left means the project is
// complete (§4.8 "unify -> next phase plan or project-complete").
func (c *Controller) nextActionFromRoadmap(currentPhase string) string {
	data, err := c.Store.ReadRoadmap()
	if err != nil || len(data) == 0 {
		return "project complete"
	}
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		name, ok := strings.CutPrefix(trimmed, "- [ ] ")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name != "" && name != currentPhase {
			return "plan phase " + name
		}
	}
	return "project complete"
}

func (o Outcome) nextAction() string {
	if o.next != "" {
		return o.next
	}
	return "project complete"
}

func renderSummary(plan workspace.Plan, report verify.Report, completed, deferred, blocked []string, promoted int, nextAction string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Summary: phase %s, plan %d\n\n", plan.FrontMatter.Phase, plan.FrontMatter.PlanNumber)
	fmt.Fprintf(&b, "merge: approved\n\n")
	fmt.Fprintf(&b, "## Tasks\n\n")
	fmt.Fprintf(&b, "completed: %s\n", joinOrNone(completed))
	fmt.Fprintf(&b, "deferred: %s\n", joinOrNone(deferred))
	fmt.Fprintf(&b, "blocked: %s\n\n", joinOrNone(blocked))
	fmt.Fprintf(&b, "## Must-haves\n\n")
	for _, truth := range plan.FrontMatter.MustHaves.Truths {
		fmt.Fprintf(&b, "- %s: met\n", truth)
	}
	fmt.Fprintf(&b, "\n## Verification\n\n")
	for _, rung := range report.Rungs {
		fmt.Fprintf(&b, "- %s: %s\n", rung.Rung, rung.Status)
	}
	fmt.Fprintf(&b, "\nscars promoted: %d\n", promoted)
	fmt.Fprintf(&b, "next action: %s\n", nextAction)
	return b.Bytes()
}

func renderHandoff(phase string, completed, blocked []string, activeRules int, nextAction string, at time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Handoff\n\n")
	fmt.Fprintf(&b, "phase: %s\n", phase)
	fmt.Fprintf(&b, "loop: x x x x\n")
	fmt.Fprintf(&b, "timestamp: %s\n", at.Format(time.RFC3339))
	fmt.Fprintf(&b, "completions: %s\n", joinOrNone(completed))
	fmt.Fprintf(&b, "blockers: %s\n", joinOrNone(blocked))
	fmt.Fprintf(&b, "active_rules: %d\n", activeRules)
	fmt.Fprintf(&b, "next_action: %s\n", nextAction)
	return b.Bytes()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
