package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nexuscore/orchestrator/internal/contextpacket"
)

// Dispatcher spawns worker subprocesses through an Adapter and drives
// them to a terminal WorkerOutcome (§4.3).
type Dispatcher struct {
	// Timeout is the per-worker wall-clock budget. Zero means no timeout.
	Timeout time.Duration
}

// promptFilePlaceholder is the token an Adapter's argument vector may
// contain; Start replaces it with the path of a temp file holding the
// rendered prompt before spawning the worker. Stdin is reserved for the
// worker protocol's permission-grant/deny messages, not the prompt --
// a real CLI worker takes its prompt as a file argument, the same way
// the teacher's own subprocess calls take explicit arguments rather
// than piping stdin.
const promptFilePlaceholder = "{promptFile}"

// Start renders the packet into a prompt file, writes the adapter's MCP
// config file if it needs one, spawns the worker, and returns a live
// Run the caller drives to completion with repeated Wait calls.
func (d *Dispatcher) Start(ctx context.Context, adapter Adapter, packet contextpacket.ContextPacket) (*Run, error) {
	if path, content, ok := adapter.MCPConfig(); ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dispatcher: mcp config dir: %w", err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return nil, fmt.Errorf("dispatcher: write mcp config: %w", err)
		}
	}

	prompt, err := renderPrompt(packet, adapter.BrowserInstructionSnippet())
	if err != nil {
		return nil, err
	}
	promptFile, err := os.CreateTemp("", "nexus-worker-*.json")
	if err != nil {
		return nil, fmt.Errorf("dispatcher: create prompt file: %w", err)
	}
	if _, err := promptFile.WriteString(prompt); err != nil {
		promptFile.Close()
		return nil, fmt.Errorf("dispatcher: write prompt file: %w", err)
	}
	if err := promptFile.Close(); err != nil {
		return nil, fmt.Errorf("dispatcher: close prompt file: %w", err)
	}

	name, args := adapter.Command()
	resolved := make([]string, len(args))
	for i, a := range args {
		if a == promptFilePlaceholder {
			a = promptFile.Name()
		}
		resolved[i] = a
	}
	return startRun(ctx, name, resolved)
}

// RunToCompletion drives a Run via Wait, granting or denying any
// PERMISSION_REQUEST through resolve, until a genuinely terminal
// outcome (complete, blocked, timeout, crash) is returned.
func (d *Dispatcher) RunToCompletion(run *Run, resolve func(PermissionRequestPayload) (grant bool, content []byte, reason string)) (WorkerOutcome, error) {
	for {
		outcome, err := run.Wait(d.Timeout)
		if err != nil {
			return outcome, err
		}
		if outcome.Kind != OutcomePermissionRequest {
			return outcome, nil
		}
		grant, content, reason := resolve(outcome.Permission)
		if grant {
			if err := run.Grant(outcome.Permission.Path, content); err != nil {
				return outcome, fmt.Errorf("dispatcher: grant permission: %w", err)
			}
			continue
		}
		if err := run.Deny(reason); err != nil {
			return outcome, fmt.Errorf("dispatcher: deny permission: %w", err)
		}
	}
}

// renderPrompt serialises the packet as JSON, the only wire format a
// worker needs to reconstruct its bounded context, followed by the
// adapter's browser-automation instruction fragment.
func renderPrompt(packet contextpacket.ContextPacket, browserSnippet string) (string, error) {
	encoded, err := json.MarshalIndent(packet, "", "  ")
	if err != nil {
		return "", fmt.Errorf("dispatcher: encode context packet: %w", err)
	}
	prompt := string(encoded)
	if browserSnippet != "" {
		prompt += "\n\n" + browserSnippet
	}
	return prompt, nil
}
