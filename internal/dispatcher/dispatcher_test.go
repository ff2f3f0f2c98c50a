package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/nexuscore/orchestrator/internal/contextpacket"
	"github.com/stretchr/testify/require"
)

// scriptAdapter runs a short shell script in place of a real worker
// binary, letting these tests exercise the real subprocess + stdio
// plumbing without depending on an external language-model runtime.
type scriptAdapter struct{ script string }

func (a scriptAdapter) RuntimeTag() string                { return "test-script" }
func (a scriptAdapter) Command() (string, []string)       { return "sh", []string{"-c", a.script} }
func (a scriptAdapter) MCPConfig() (string, []byte, bool) { return "", nil, false }
func (a scriptAdapter) BrowserInstructionSnippet() string { return "" }

func TestDispatcherRunToCompletionReportsComplete(t *testing.T) {
	script := `printf '<<COMPLETE>>\n{"summary":"ok","filesModified":["a.go"]}\n<</COMPLETE>>\n'`
	d := &Dispatcher{Timeout: 5 * time.Second}

	run, err := d.Start(context.Background(), scriptAdapter{script: script}, contextpacket.ContextPacket{})
	require.NoError(t, err)

	outcome, err := d.RunToCompletion(run, func(PermissionRequestPayload) (bool, []byte, string) {
		t.Fatal("no permission request expected")
		return false, nil, ""
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeComplete, outcome.Kind)
	require.Equal(t, "ok", outcome.Complete.Summary)
}

func TestDispatcherHandlesPermissionRequestThenCompletes(t *testing.T) {
	script := `printf '<<PERMISSION_REQUEST>>\n{"path":"b.go","reason":"need read"}\n<</PERMISSION_REQUEST>>\n'
read -r line1
read -r line2
read -r line3
printf '<<COMPLETE>>\n{"summary":"granted-path-used"}\n<</COMPLETE>>\n'`
	d := &Dispatcher{Timeout: 5 * time.Second}

	run, err := d.Start(context.Background(), scriptAdapter{script: script}, contextpacket.ContextPacket{})
	require.NoError(t, err)

	granted := false
	outcome, err := d.RunToCompletion(run, func(req PermissionRequestPayload) (bool, []byte, string) {
		granted = true
		require.Equal(t, "b.go", req.Path)
		return true, []byte("content"), ""
	})
	require.NoError(t, err)
	require.True(t, granted)
	require.Equal(t, OutcomeComplete, outcome.Kind)
}

func TestDispatcherReportsCrashOnEarlyExit(t *testing.T) {
	script := `exit 0`
	d := &Dispatcher{Timeout: 5 * time.Second}

	run, err := d.Start(context.Background(), scriptAdapter{script: script}, contextpacket.ContextPacket{})
	require.NoError(t, err)

	_, err = d.RunToCompletion(run, nil)
	require.Error(t, err)
}

func TestDispatcherReportsTimeout(t *testing.T) {
	script := `sleep 5`
	d := &Dispatcher{Timeout: 50 * time.Millisecond}

	run, err := d.Start(context.Background(), scriptAdapter{script: script}, contextpacket.ContextPacket{})
	require.NoError(t, err)

	outcome, err := d.RunToCompletion(run, nil)
	require.Error(t, err)
	require.Equal(t, OutcomeTimeout, outcome.Kind)
}
