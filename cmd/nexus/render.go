package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/nexuscore/orchestrator/internal/logging"
	"github.com/nexuscore/orchestrator/internal/verify"
	"go.uber.org/zap"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	// The tri-kind checkpoint frame (§7): verify defaults to approve
	// under auto-advance, decide defaults to the first option, act
	// always pauses.
	frameStyles = map[string]lipgloss.Style{
		"verify": lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("42")).Padding(0, 1),
		"decide": lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("214")).Padding(0, 1),
		"act":    lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("196")).Padding(0, 1),
	}
)

func componentLogger(name string) *zap.Logger {
	return logging.Component(baseLog, name)
}

func renderCheck(name string, ok bool, hint string) {
	if ok {
		fmt.Printf("%s %s\n", okStyle.Render("ok"), name)
		return
	}
	fmt.Printf("%s %s\n   %s\n", failStyle.Render("!!"), name, dimStyle.Render(hint))
}

// renderCheckpointFrame draws the tri-kind frame around a human pause.
func renderCheckpointFrame(kind, message string) string {
	style, found := frameStyles[kind]
	if !found {
		style = frameStyles["verify"]
	}
	title := strings.ToUpper(kind)
	return style.Render(fmt.Sprintf("%s\n%s", title, message))
}

// renderReport prints the per-rung ladder outcome and the gap list with
// file-line references (§7 user-visible behaviour).
func renderReport(report verify.Report) string {
	var b strings.Builder
	for _, rung := range report.Rungs {
		mark := okStyle.Render("ok  ")
		switch rung.Status {
		case verify.StatusFailed:
			mark = failStyle.Render("fail")
		case verify.StatusSkipped:
			mark = dimStyle.Render("skip")
		case verify.StatusNotApplicable:
			mark = dimStyle.Render("n/a ")
		}
		fmt.Fprintf(&b, "%s %s", mark, rung.Rung)
		if rung.Detail != "" {
			fmt.Fprintf(&b, " %s", dimStyle.Render("("+rung.Detail+")"))
		}
		b.WriteString("\n")
	}

	gaps := report.Gaps()
	if len(gaps) > 0 {
		b.WriteString("\ngaps:\n")
		for _, gap := range gaps {
			location := gap.File
			if gap.Line > 0 {
				location = fmt.Sprintf("%s:%d", gap.File, gap.Line)
			}
			if location != "" {
				fmt.Fprintf(&b, "  %s %s %s\n", warnStyle.Render("-"), gap.Why, dimStyle.Render(location))
			} else {
				fmt.Fprintf(&b, "  %s %s\n", warnStyle.Render("-"), gap.Why)
			}
		}
	}

	if report.MergeApproved {
		b.WriteString("\n" + okStyle.Render("merge approved"))
	} else {
		b.WriteString("\n" + failStyle.Render("merge rejected"))
	}
	return b.String()
}

func renderBlockedTasks(g *graph.TaskGraph) string {
	var b strings.Builder
	for _, task := range g.Nodes() {
		if task.Status != graph.StatusBlocked {
			continue
		}
		kind := "verify"
		switch task.BlockReason {
		case graph.BlockReasonDecision:
			kind = "decide"
		case graph.BlockReasonHumanAction:
			kind = "act"
		}
		b.WriteString(renderCheckpointFrame(kind,
			fmt.Sprintf("task %s is blocked: %s", task.ID, task.BlockReason)))
		b.WriteString("\n")
	}
	return b.String()
}

// renderDiffPreview truncates a long rollback diff for terminal review.
func renderDiffPreview(diff string) string {
	const maxLines = 60
	lines := strings.Split(diff, "\n")
	if len(lines) > maxLines {
		hidden := len(lines) - maxLines
		lines = append(lines[:maxLines], dimStyle.Render(fmt.Sprintf("... %d more lines", hidden)))
	}
	return strings.Join(lines, "\n")
}

func renderError(err error) string {
	return failStyle.Render("error: ") + err.Error()
}
