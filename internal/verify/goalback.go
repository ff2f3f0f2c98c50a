package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nexuscore/orchestrator/internal/workspace"
)

// Stub anti-patterns (§4.5 rung 4, §12 glossary "Stub"): a declared
// artefact whose body matches one of these is not substantive.
var stubPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`(?m)^\s*return\s+(null|nil|undefined|\[\]|\{\}|""|'')\s*;?\s*$`), "returns an empty value"},
	{regexp.MustCompile(`(?i)throw new Error\(["'](not.{0,3}implemented|todo)`), "throws not-implemented"},
	{regexp.MustCompile(`(?i)panic\(["'](not.{0,3}implemented|todo)`), "panics not-implemented"},
	{regexp.MustCompile(`(?i)raise NotImplementedError`), "raises not-implemented"},
}

var todoOnly = regexp.MustCompile(`(?m)^\s*(//|#)\s*TODO\b`)
var consoleLog = regexp.MustCompile(`(?m)^\s*console\.log\(`)

// runGoalBackward is rung 4: walk the plan's must-haves backward from
// the promised truths to the artefacts and key links that deliver them
// (§4.5 rung 4).
func (l *Ladder) runGoalBackward(musts workspace.MustHaves, modified []string) RungResult {
	if len(musts.Truths) == 0 && len(musts.Artefacts) == 0 && len(musts.KeyLinks) == 0 {
		return RungResult{Rung: RungGoalBackward, Status: StatusSkipped, Detail: "plan declares no must-haves"}
	}

	var gaps []Gap
	substantive := map[string]bool{}

	for _, artefact := range musts.Artefacts {
		gap, ok := l.checkArtefact(artefact, modified)
		if !ok {
			gaps = append(gaps, gap)
			continue
		}
		substantive[artefact] = true
	}

	for _, link := range musts.KeyLinks {
		if gap, ok := l.checkKeyLink(link); !ok {
			gaps = append(gaps, gap)
		}
	}

	// A truth with no surviving artefact behind it is unsupported: the
	// observable behaviour has nothing substantive delivering it.
	if len(musts.Artefacts) > 0 && len(substantive) == 0 {
		for _, truth := range musts.Truths {
			gaps = append(gaps, Gap{
				Rung:  RungGoalBackward,
				Truth: truth,
				Why:   "no declared artefact behind this truth survived the substance checks",
			})
		}
	}

	if len(gaps) > 0 {
		return RungResult{
			Rung:   RungGoalBackward,
			Status: StatusFailed,
			Detail: fmt.Sprintf("%d must-have gap(s)", len(gaps)),
			Gaps:   gaps,
		}
	}
	return RungResult{Rung: RungGoalBackward, Status: StatusOK}
}

// checkArtefact verifies one declared artefact exists, is substantive,
// and is actually wired in: imported or referenced by some other
// modified file (§4.5 rung 4: "is imported, is called, and its return
// value is consumed").
func (l *Ladder) checkArtefact(artefact string, modified []string) (Gap, bool) {
	path := filepath.Join(l.Root, artefact)
	content, err := os.ReadFile(path)
	if err != nil {
		return Gap{
			Rung:         RungGoalBackward,
			Why:          fmt.Sprintf("artefact %s does not exist", artefact),
			File:         artefact,
			MissingFiles: []string{artefact},
		}, false
	}
	if reason, stubbed := looksStub(string(content)); stubbed {
		return Gap{
			Rung: RungGoalBackward,
			Why:  fmt.Sprintf("artefact %s is a stub: %s", artefact, reason),
			File: artefact,
		}, false
	}
	if !l.referencedElsewhere(artefact, modified) {
		return Gap{
			Rung: RungGoalBackward,
			Why:  fmt.Sprintf("artefact %s is never imported or called by any other modified file", artefact),
			File: artefact,
		}, false
	}
	return Gap{}, true
}

// checkKeyLink verifies one {from, to, via} wiring assertion: both ends
// exist and the from side references the via symbol.
func (l *Ladder) checkKeyLink(link workspace.KeyLink) (Gap, bool) {
	fromContent, err := os.ReadFile(filepath.Join(l.Root, link.From))
	if err != nil {
		return Gap{
			Rung:         RungGoalBackward,
			Why:          fmt.Sprintf("key link %s -> %s: from side missing", link.From, link.To),
			MissingFiles: []string{link.From},
		}, false
	}
	if _, err := os.Stat(filepath.Join(l.Root, link.To)); err != nil {
		return Gap{
			Rung:         RungGoalBackward,
			Why:          fmt.Sprintf("key link %s -> %s: to side missing", link.From, link.To),
			MissingFiles: []string{link.To},
		}, false
	}
	if link.Via != "" && !strings.Contains(string(fromContent), link.Via) {
		return Gap{
			Rung: RungGoalBackward,
			Why:  fmt.Sprintf("key link %s -> %s: %s never references %q", link.From, link.To, link.From, link.Via),
			File: link.From,
		}, false
	}
	return Gap{}, true
}

// looksStub reports whether content matches any declared stub
// anti-pattern: return-empty as the only body, throw-not-implemented,
// a lone TODO, or a sole console.log side effect.
func looksStub(content string) (string, bool) {
	meaningful := meaningfulLines(content)
	for _, p := range stubPatterns {
		if p.re.MatchString(content) && meaningful <= 6 {
			return p.reason, true
		}
	}
	if meaningful <= 4 && todoOnly.MatchString(content) {
		return "lone TODO", true
	}
	if logs := consoleLog.FindAllString(content, -1); len(logs) > 0 && meaningful <= len(logs)+3 {
		return "sole console.log side effect", true
	}
	return "", false
}

// meaningfulLines counts non-blank, non-comment, non-brace lines, a
// rough measure of whether a file does anything.
func meaningfulLines(content string) int {
	count := 0
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "", trimmed == "{", trimmed == "}", trimmed == "};":
		case strings.HasPrefix(trimmed, "//"), strings.HasPrefix(trimmed, "#"),
			strings.HasPrefix(trimmed, "/*"), strings.HasPrefix(trimmed, "*"):
		default:
			count++
		}
	}
	return count
}

// referencedElsewhere scans the other modified files for a mention of
// the artefact's import path or bare name. Depth-1 and textual on
// purpose: the core never parses source code (§1 Non-goals).
func (l *Ladder) referencedElsewhere(artefact string, modified []string) bool {
	base := strings.TrimSuffix(filepath.Base(artefact), filepath.Ext(artefact))
	importPath := strings.TrimSuffix(artefact, filepath.Ext(artefact))
	for _, other := range modified {
		if other == artefact {
			continue
		}
		content, err := os.ReadFile(filepath.Join(l.Root, other))
		if err != nil {
			continue
		}
		text := string(content)
		if strings.Contains(text, importPath) || strings.Contains(text, base+"(") || strings.Contains(text, base+".") {
			return true
		}
	}
	return false
}
