package verify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// CommandRunner executes one configured project command (a settings
// string like "go test ./...") and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, command string) (output string, err error)
}

// ShellRunner runs a command string through the shell in a fixed
// directory, capturing stdout and stderr.
type ShellRunner struct {
	Dir string
}

// Run executes command via `sh -c`. A non-zero exit returns the output
// alongside the error so callers can surface what the tool printed.
func (r ShellRunner) Run(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	output := stdout.String() + stderr.String()
	if err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return output, fmt.Errorf("%s failed: %s", command, errMsg)
	}
	return output, nil
}

// errorMarker catches tool output that reports problems without a
// non-zero exit (some linters and format checkers do this).
var errorMarker = regexp.MustCompile(`(?m)^\s*(error|ERROR|FAIL|panic):|\bFAILED\b`)

// runDeterministic is rung 2: lint, type-check, format-check, and the
// delta test set, in sequence; each must exit zero with output free of
// error markers (§4.5 rung 2).
func (l *Ladder) runDeterministic(ctx context.Context, modified []string) RungResult {
	steps := []struct {
		name    string
		command string
	}{
		{"lint", l.Commands.Lint},
		{"typecheck", l.Commands.TypeCheck},
		{"format-check", l.Commands.FormatCheck},
		{"test", l.deltaTestCommand(modified)},
	}

	var gaps []Gap
	ran := 0
	for _, step := range steps {
		if step.command == "" {
			continue
		}
		ran++
		output, err := l.Runner.Run(ctx, step.command)
		if err != nil {
			gaps = append(gaps, Gap{
				Rung: RungDeterministic,
				Why:  fmt.Sprintf("%s command failed: %v", step.name, err),
			})
			continue
		}
		if loc := errorMarker.FindString(output); loc != "" {
			gaps = append(gaps, Gap{
				Rung: RungDeterministic,
				Why:  fmt.Sprintf("%s output contains an error marker (%q) despite exit zero", step.name, strings.TrimSpace(loc)),
			})
		}
	}

	if len(gaps) > 0 {
		return RungResult{
			Rung:   RungDeterministic,
			Status: StatusFailed,
			Detail: fmt.Sprintf("%d deterministic check(s) failed", len(gaps)),
			Gaps:   gaps,
		}
	}
	if ran == 0 {
		return RungResult{Rung: RungDeterministic, Status: StatusSkipped, Detail: "no commands configured"}
	}
	return RungResult{Rung: RungDeterministic, Status: StatusOK}
}

// deltaTestCommand narrows the configured test command to the test files
// mapped to modified sources, where the test map knows them (§4.5 rung
// 2: "the subset of test files mapped to modified source files").
func (l *Ladder) deltaTestCommand(modified []string) string {
	if l.Commands.Test == "" {
		return ""
	}
	tests := l.testFilesFor(modified)
	if len(tests) == 0 {
		return l.Commands.Test
	}
	return l.Commands.Test + " " + strings.Join(tests, " ")
}

// runDeltaTests is rung 3 (§4.5 rung 3): it runs the configured test
// command over the directories of the test files mapped to modified
// sources, or the whole command when no mapped test file is known. A
// modified file with no mapped test adds no directory of its own.
func (l *Ladder) runDeltaTests(ctx context.Context, modified []string) RungResult {
	if l.Commands.Test == "" {
		return RungResult{Rung: RungDeltaTests, Status: StatusSkipped, Detail: "no test command configured"}
	}
	dirs := moduleDirsOf(l.testFilesFor(modified))
	command := l.Commands.Test
	if len(dirs) > 0 {
		command = l.Commands.Test + " " + strings.Join(dirs, " ")
	}
	output, err := l.Runner.Run(ctx, command)
	if err != nil {
		return RungResult{
			Rung:   RungDeltaTests,
			Status: StatusFailed,
			Detail: "module test suite failed",
			Gaps:   []Gap{{Rung: RungDeltaTests, Why: fmt.Sprintf("%v", err)}},
		}
	}
	if loc := errorMarker.FindString(output); loc != "" {
		return RungResult{
			Rung:   RungDeltaTests,
			Status: StatusFailed,
			Detail: "module test output contains an error marker",
			Gaps:   []Gap{{Rung: RungDeltaTests, Why: fmt.Sprintf("test output contains %q despite exit zero", strings.TrimSpace(loc))}},
		}
	}
	return RungResult{Rung: RungDeltaTests, Status: StatusOK}
}

// runSystem is rung 6: configured integration and end-to-end commands,
// if present (§4.5 rung 6).
func (l *Ladder) runSystem(ctx context.Context) RungResult {
	var gaps []Gap
	ran := 0
	for _, step := range []struct{ name, command string }{
		{"integration", l.Commands.Integration},
		{"e2e", l.Commands.EndToEnd},
	} {
		if step.command == "" {
			continue
		}
		ran++
		if _, err := l.Runner.Run(ctx, step.command); err != nil {
			gaps = append(gaps, Gap{Rung: RungSystem, Why: fmt.Sprintf("%s command failed: %v", step.name, err)})
		}
	}
	if len(gaps) > 0 {
		return RungResult{Rung: RungSystem, Status: StatusFailed, Detail: "system validation failed", Gaps: gaps}
	}
	if ran == 0 {
		return RungResult{Rung: RungSystem, Status: StatusSkipped, Detail: "no integration or e2e commands configured"}
	}
	return RungResult{Rung: RungSystem, Status: StatusOK}
}

func (l *Ladder) testFilesFor(modified []string) []string {
	seen := map[string]bool{}
	var tests []string
	for _, src := range modified {
		for _, testFile := range l.TestMap[src] {
			if !seen[testFile] {
				seen[testFile] = true
				tests = append(tests, testFile)
			}
		}
	}
	sort.Strings(tests)
	return tests
}

func moduleDirsOf(files []string) []string {
	seen := map[string]bool{}
	var dirs []string
	for _, f := range files {
		dir := filepath.Dir(f)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, "./"+dir)
		}
	}
	sort.Strings(dirs)
	return dirs
}
