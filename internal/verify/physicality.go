package verify

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/sahilm/fuzzy"
)

// minSourceLines is the rung-1 floor for a source file's length (§4.5
// rung 1).
const minSourceLines = 10

// dataFileExts are extensions exempt from the minimum-length rule: a
// one-line JSON or lock file is physically fine.
var dataFileExts = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".md": true, ".txt": true, ".lock": true, ".sum": true,
	".mod": true, ".svg": true, ".png": true, ".env": true,
}

// runPhysicality is rung 1: every declared file exists, is non-empty,
// and (for source) is at least ten lines; and the diff against the
// recorded pre-run refs contains no file outside the union of declared
// lists (§4.5 rung 1).
func (l *Ladder) runPhysicality(g *graph.TaskGraph, modified []string, declared map[string]bool) RungResult {
	var gaps []Gap

	for _, task := range g.Nodes() {
		if task.Status != graph.StatusCompleted {
			continue
		}
		for _, rel := range task.DeclaredFiles {
			gap, ok := l.checkDeclaredFile(task.ID, rel)
			if !ok {
				gaps = append(gaps, gap)
			}
		}
	}

	declaredList := make([]string, 0, len(declared))
	for f := range declared {
		declaredList = append(declaredList, f)
	}
	sort.Strings(declaredList)

	for _, f := range modified {
		if declared[f] || l.isWorkspaceInternal(f) {
			continue
		}
		why := fmt.Sprintf("undeclared write: %s is not in any task's declared-files list", f)
		if suggestion := nearestDeclared(f, declaredList); suggestion != "" {
			why += fmt.Sprintf(" (did you mean %s?)", suggestion)
		}
		gaps = append(gaps, Gap{Rung: RungPhysicality, Why: why, File: f})
	}

	if len(gaps) > 0 {
		return RungResult{
			Rung:   RungPhysicality,
			Status: StatusFailed,
			Detail: fmt.Sprintf("%d physicality violation(s)", len(gaps)),
			Gaps:   gaps,
		}
	}
	return RungResult{Rung: RungPhysicality, Status: StatusOK}
}

func (l *Ladder) checkDeclaredFile(taskID, rel string) (Gap, bool) {
	path := filepath.Join(l.Root, rel)
	info, err := os.Stat(path)
	if err != nil {
		return Gap{
			Rung:         RungPhysicality,
			Why:          fmt.Sprintf("task %s declared %s but it does not exist", taskID, rel),
			File:         rel,
			MissingFiles: []string{rel},
		}, false
	}
	if info.Size() == 0 {
		return Gap{
			Rung: RungPhysicality,
			Why:  fmt.Sprintf("task %s declared %s but it is empty", taskID, rel),
			File: rel,
		}, false
	}
	if !dataFileExts[strings.ToLower(filepath.Ext(rel))] {
		content, err := os.ReadFile(path)
		if err == nil && lineCount(content) < minSourceLines {
			return Gap{
				Rung: RungPhysicality,
				Why:  fmt.Sprintf("task %s declared source file %s but it is under %d lines", taskID, rel, minSourceLines),
				File: rel,
			}, false
		}
	}
	return Gap{}, true
}

// isWorkspaceInternal filters the orchestrator's own governance writes
// out of the undeclared-write check: the Store mutates the workspace
// during execution by design.
func (l *Ladder) isWorkspaceInternal(rel string) bool {
	return strings.HasPrefix(rel, ".nexus/") || strings.HasPrefix(rel, ".nexus\\")
}

// nearestDeclared fuzzy-matches an undeclared path against the declared
// list so the gap message can point at a likely misspelling.
func nearestDeclared(path string, declared []string) string {
	matches := fuzzy.Find(path, declared)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

func lineCount(content []byte) int {
	content = bytes.TrimRight(content, "\n")
	if len(content) == 0 {
		return 0
	}
	return bytes.Count(content, []byte("\n")) + 1
}
