package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToolCapableWritesMCPConfigAndToolSnippet(t *testing.T) {
	a := ToolCapable{
		Tag:           "tool-capable-runtime",
		Name:          "worker-cli",
		Args:          []string{"run", "{promptFile}"},
		MCPPath:       "/tmp/mcp.json",
		MCPServerName: "browser",
		MCPServerCmd:  "nexus-browser-mcp",
		ToolNames:     []string{"browser.navigate", "browser.screenshot"},
	}

	path, content, ok := a.MCPConfig()
	require.True(t, ok)
	require.Equal(t, "/tmp/mcp.json", path)
	require.Contains(t, string(content), "browser")

	require.Contains(t, a.BrowserInstructionSnippet(), "browser.navigate")
	name, args := a.Command()
	require.Equal(t, "worker-cli", name)
	require.Equal(t, []string{"run", "{promptFile}"}, args)
}

func TestRunnerBackedHasNoMCPConfigButHasRunnerSnippet(t *testing.T) {
	a := RunnerBacked{
		Tag:        "runner-backed-runtime",
		Name:       "worker-cli",
		Args:       []string{"{promptFile}"},
		RunnerPath: "./bin/browser-runner",
	}

	_, _, ok := a.MCPConfig()
	require.False(t, ok)
	require.Contains(t, a.BrowserInstructionSnippet(), "./bin/browser-runner")
}
