// Package checks loads project-local adversarial-check plugins: small
// interpreted Go scripts that extend rung 5 of the verification ladder
// with project-specific red-team categories (§4.5 rung 5, §11). Plugins
// are interpreted with yaegi rather than compiled and loaded as Go
// plugins, the same choice the teacher made for its own definition-file
// loader -- a single static binary stays single, and project-local
// scripts never need a matching toolchain/platform build.
package checks

// Severity is how serious one adversarial finding is; only Blocker
// fails rung 5 (§4.5 rung 5).
type Severity string

const (
	SeverityBlocker Severity = "blocker"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Finding is one adversarial-check result against a modified file.
type Finding struct {
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	File        string   `json:"file"`
	Line        int      `json:"line,omitempty"`
	Description string   `json:"description"`
}

// Plugin is one loaded adversarial-check script.
type Plugin struct {
	Path string
	run  func(files []string) ([]Finding, error)
}

// Run executes the plugin against the given modified-file set.
func (p Plugin) Run(files []string) ([]Finding, error) {
	return p.run(files)
}

// NewPlugin wraps a check function as a Plugin without going through
// the interpreter, for callers that supply checks in-process.
func NewPlugin(path string, run func(files []string) ([]Finding, error)) Plugin {
	return Plugin{Path: path, run: run}
}
