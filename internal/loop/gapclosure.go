package loop

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/nexuscore/orchestrator/internal/verify"
	"github.com/nexuscore/orchestrator/internal/workspace"
	"gopkg.in/yaml.v3"
)

// writeGapClosurePlan turns a rejected verification report into a
// narrower follow-up plan (§4.8 "verify -> planning (gap closure)"):
// one wave, one task per implicated file group, carrying the gap text
// as the task description.
func (c *Controller) writeGapClosurePlan(plan workspace.Plan, report verify.Report) (string, error) {
	if c.Store == nil {
		return "", nil
	}
	phase := plan.FrontMatter.Phase
	nextNumber := plan.FrontMatter.PlanNumber + 1

	content, err := renderGapClosurePlan(plan, report, nextNumber)
	if err != nil {
		return "", fmt.Errorf("loop: render gap-closure plan: %w", err)
	}
	if err := c.Store.WritePlan(phase, nextNumber, content); err != nil {
		return "", err
	}
	c.logEvent("gap-closure-plan", "", map[string]any{
		"phase": phase,
		"plan":  nextNumber,
		"gaps":  len(report.Gaps()),
	})
	return c.Store.PlanPath(phase, nextNumber), nil
}

func renderGapClosurePlan(plan workspace.Plan, report verify.Report, planNumber int) ([]byte, error) {
	// Group gaps by implicated file so one worker closes all gaps in one
	// file; gaps with no file become one catch-all review task.
	byFile := map[string][]verify.Gap{}
	for _, gap := range report.Gaps() {
		if gap.Rung == verify.RungMergeJudge {
			continue
		}
		byFile[gap.File] = append(byFile[gap.File], gap)
	}
	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	type taskDoc struct {
		ID            string   `yaml:"id"`
		Description   string   `yaml:"description"`
		Wave          int      `yaml:"wave"`
		FilesModified []string `yaml:"files_modified"`
		Risk          string   `yaml:"risk"`
		TDDMode       string   `yaml:"tdd_mode"`
	}
	var tasks []taskDoc
	fileless := ""
	for i, f := range files {
		gaps := byFile[f]
		description := gaps[0].Why
		if len(gaps) > 1 {
			description = fmt.Sprintf("%s (+%d more gaps)", gaps[0].Why, len(gaps)-1)
		}
		declared := []string{f}
		if f == "" {
			declared = excluding(firstDeclaredFiles(plan), files)
			description = "close verification gaps: " + description
			if len(declared) == 0 {
				// Every declared file already has its own gap task; the
				// file-less gaps ride along with the first of those.
				fileless = description
				continue
			}
		}
		tasks = append(tasks, taskDoc{
			ID:            fmt.Sprintf("G%02d", i+1),
			Description:   description,
			Wave:          1,
			FilesModified: declared,
			Risk:          "medium",
			TDDMode:       "standard",
		})
	}
	if fileless != "" && len(tasks) > 0 {
		tasks[0].Description += "; " + fileless
	}

	front := map[string]any{
		"phase":             plan.FrontMatter.Phase,
		"plan_number":       planNumber,
		"status":            "gap-closure",
		"risk_tier":         plan.FrontMatter.RiskTier,
		"tdd_mode":          plan.FrontMatter.TDDMode,
		"browser_required":  plan.FrontMatter.BrowserRequired,
		"checkpoint_before": true,
		"wave_count":        1,
		"must_haves":        plan.FrontMatter.MustHaves,
		"tasks":             tasks,
		"boundaries":        plan.Boundaries,
	}
	frontYAML, err := yaml.Marshal(front)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(frontYAML)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# Gap closure for plan %d\n\n", plan.FrontMatter.PlanNumber)
	b.WriteString("Verification rejected the previous plan. Each task below closes the gaps recorded against one file.\n\n")
	for _, gap := range report.Gaps() {
		if gap.Rung == verify.RungMergeJudge {
			continue
		}
		fmt.Fprintf(&b, "- [%s] %s\n", gap.Rung, gap.Why)
	}
	return b.Bytes(), nil
}

func excluding(files, taken []string) []string {
	used := map[string]bool{}
	for _, f := range taken {
		used[f] = true
	}
	var out []string
	for _, f := range files {
		if !used[f] {
			out = append(out, f)
		}
	}
	return out
}

func firstDeclaredFiles(plan workspace.Plan) []string {
	for _, task := range plan.Tasks {
		if len(task.DeclaredFiles) > 0 {
			return task.DeclaredFiles
		}
	}
	return []string{"README.md"}
}
