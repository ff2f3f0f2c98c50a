// Package adapter provides concrete dispatcher.Adapter implementations
// for the two shapes of external worker runtime the core supports: one
// with a generic tool-invocation protocol (MCP-capable) and one without
// (§4.9).
package adapter

import (
	"encoding/json"
	"fmt"
)

// ToolCapable is an adapter for a runtime with a generic tool-invocation
// protocol: browser automation is described as MCP tool-name references
// rather than a shell command.
type ToolCapable struct {
	Tag           string
	Name          string
	Args          []string
	MCPPath       string
	MCPServerName string
	MCPServerCmd  string
	ToolNames     []string
}

func (a ToolCapable) RuntimeTag() string            { return a.Tag }
func (a ToolCapable) Command() (string, []string)   { return a.Name, a.Args }

func (a ToolCapable) MCPConfig() (string, []byte, bool) {
	if a.MCPPath == "" {
		return "", nil, false
	}
	doc := map[string]any{
		"mcpServers": map[string]any{
			a.MCPServerName: map[string]any{
				"command": a.MCPServerCmd,
			},
		},
	}
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", nil, false
	}
	return a.MCPPath, content, true
}

func (a ToolCapable) BrowserInstructionSnippet() string {
	if len(a.ToolNames) == 0 {
		return ""
	}
	return fmt.Sprintf("Browser automation is available via these tools: %v. Call them directly; do not shell out.", a.ToolNames)
}

// RunnerBacked is an adapter for a runtime with no generic tool protocol:
// browser automation is exposed as a bundled shell-callable runner
// binary instead of a tool reference.
type RunnerBacked struct {
	Tag        string
	Name       string
	Args       []string
	RunnerPath string
}

func (a RunnerBacked) RuntimeTag() string              { return a.Tag }
func (a RunnerBacked) Command() (string, []string)     { return a.Name, a.Args }
func (a RunnerBacked) MCPConfig() (string, []byte, bool) { return "", nil, false }

func (a RunnerBacked) BrowserInstructionSnippet() string {
	if a.RunnerPath == "" {
		return ""
	}
	return fmt.Sprintf("Browser automation is available by invoking the shell command %q with a flow-spec path as its only argument.", a.RunnerPath)
}
