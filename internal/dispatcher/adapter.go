package dispatcher

// Adapter wires the tagged-message protocol to one external
// language-model runtime (External-Agent Adapters, C9). The Dispatcher
// is otherwise runtime-agnostic: it only knows how to spawn a command,
// feed it a prompt, and parse the worker protocol on its stdout (§4.3).
type Adapter interface {
	// RuntimeTag identifies the adapter for logging and mission-log
	// entries, e.g. "claude-code", "codex-cli".
	RuntimeTag() string

	// Command returns the invocation command and argument vector.
	Command() (name string, args []string)

	// MCPConfig returns a tool-config file the Dispatcher should write
	// before spawning the worker, and whether one is needed at all.
	MCPConfig() (path string, content []byte, ok bool)

	// BrowserInstructionSnippet returns the prompt fragment that tells
	// the worker how to drive browser automation: either an MCP tool
	// name list for capable runtimes, or a shell-callable runner path
	// for runtimes without MCP support.
	BrowserInstructionSnippet() string
}
