package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nexuscore/orchestrator/internal/checks"
	"go.uber.org/zap"
)

// builtinCheck is one of the seven red-team categories of §4.5 rung 5,
// expressed as a line pattern. Project-local plugins extend this set.
type builtinCheck struct {
	category string
	severity checks.Severity
	re       *regexp.Regexp
	message  string
}

var builtinChecks = []builtinCheck{
	{
		category: "unhandled-edge-cases",
		severity: checks.SeverityWarning,
		re:       regexp.MustCompile(`(\.split\([^)]*\)\[\d+\]|strings\.Split\([^)]*\)\[\d+\]|\.Split\([^)]*\)\[\d+\])`),
		message:  "indexes a split result without checking its length",
	},
	{
		category: "unhandled-edge-cases",
		severity: checks.SeverityWarning,
		re:       regexp.MustCompile(`[/%]\s*len\(`),
		message:  "divides or mods by a length that may be zero",
	},
	{
		category: "unhandled-edge-cases",
		severity: checks.SeverityWarning,
		re:       regexp.MustCompile(`(\.pop\(\)|\.shift\(\))\s*[.[]`),
		message:  "chains off pop/shift, which is undefined on an empty collection",
	},
	{
		category: "development-artefacts",
		severity: checks.SeverityWarning,
		re:       regexp.MustCompile(`\b(TODO|FIXME|HACK)\b`),
		message:  "development marker left in a production path",
	},
	{
		category: "development-artefacts",
		severity: checks.SeverityWarning,
		re:       regexp.MustCompile(`(?m)^\s*(console\.log|fmt\.Println|print\()`),
		message:  "debug log call in a production path",
	},
	{
		category: "development-artefacts",
		severity: checks.SeverityWarning,
		re:       regexp.MustCompile(`(localhost|127\.0\.0\.1):\d+`),
		message:  "hard-coded localhost address",
	},
	{
		category: "type-safety",
		severity: checks.SeverityWarning,
		re:       regexp.MustCompile(`(as any\b|@ts-ignore|@ts-nocheck)`),
		message:  "type-safety escape hatch",
	},
	{
		category: "missing-error-paths",
		severity: checks.SeverityWarning,
		re:       regexp.MustCompile(`catch\s*(\([^)]*\))?\s*\{\s*\}`),
		message:  "empty catch block swallows errors",
	},
	{
		category: "security",
		severity: checks.SeverityBlocker,
		re:       regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*["'][A-Za-z0-9+/_-]{8,}["']`),
		message:  "hard-coded secret",
	},
	{
		category: "security",
		severity: checks.SeverityBlocker,
		re:       regexp.MustCompile(`\b(eval|exec)\s*\(\s*[^)"']*(\+|\$\{|%s)`),
		message:  "user input interpolated into exec/eval",
	},
	{
		category: "security",
		severity: checks.SeverityBlocker,
		re:       regexp.MustCompile(`(?i)(select|insert|update|delete)\s+.*["']\s*\+\s*\w`),
		message:  "string-concatenated query",
	},
	{
		category: "n-plus-one",
		severity: checks.SeverityInfo,
		re:       regexp.MustCompile(`for\s*\(.*\)\s*\{[^}]*(await\s+\w+\.(find|get|query)|\.(findOne|query)\()`),
		message:  "query inside a loop body",
	},
	{
		category: "input-validation",
		severity: checks.SeverityWarning,
		re:       regexp.MustCompile(`(req\.(body|params|query)|os\.Args)\[?[^\n]*\bexec`),
		message:  "boundary input reaches exec without validation",
	},
}

// runAdversarial is rung 5: the built-in red-team categories plus any
// project-local interpreted check plugins; any blocker-severity finding
// fails the rung (§4.5 rung 5).
func (l *Ladder) runAdversarial(modified []string) RungResult {
	var findings []checks.Finding

	for _, rel := range modified {
		content, err := os.ReadFile(filepath.Join(l.Root, rel))
		if err != nil {
			continue
		}
		findings = append(findings, scanBuiltins(rel, string(content))...)
	}

	for _, plugin := range l.Plugins {
		pluginFindings, err := plugin.Run(modified)
		if err != nil {
			l.logger().Warn("adversarial-check plugin failed",
				zap.String("plugin", plugin.Path), zap.Error(err))
			continue
		}
		findings = append(findings, pluginFindings...)
	}

	var gaps []Gap
	blockers := 0
	for _, f := range findings {
		if f.Severity == checks.SeverityBlocker {
			blockers++
		}
		gaps = append(gaps, Gap{
			Rung: RungAdversarial,
			Why:  fmt.Sprintf("[%s/%s] %s", f.Category, f.Severity, f.Description),
			File: f.File,
			Line: f.Line,
		})
	}

	switch {
	case blockers > 0:
		return RungResult{
			Rung:   RungAdversarial,
			Status: StatusFailed,
			Detail: fmt.Sprintf("%d blocker finding(s), %d total", blockers, len(findings)),
			Gaps:   gaps,
		}
	case len(findings) > 0:
		return RungResult{
			Rung:   RungAdversarial,
			Status: StatusOK,
			Detail: fmt.Sprintf("%d non-blocking finding(s)", len(findings)),
			Gaps:   gaps,
		}
	default:
		return RungResult{Rung: RungAdversarial, Status: StatusOK}
	}
}

func scanBuiltins(rel, content string) []checks.Finding {
	var findings []checks.Finding
	lines := strings.Split(content, "\n")
	for _, check := range builtinChecks {
		for i, line := range lines {
			if check.re.MatchString(line) {
				findings = append(findings, checks.Finding{
					Category:    check.category,
					Severity:    check.severity,
					File:        rel,
					Line:        i + 1,
					Description: check.message,
				})
			}
		}
	}
	return findings
}
