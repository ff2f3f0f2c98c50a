package scheduler

import (
	"context"

	"github.com/nexuscore/orchestrator/internal/contextpacket"
	"github.com/nexuscore/orchestrator/internal/graph"
)

// Validator runs the fail-fast rungs (1-2) of the verification ladder
// against one task's reported completion, synchronously, before the
// Scheduler marks the task completed (§4.4 step 4).
type Validator interface {
	Validate(ctx context.Context, task *graph.TaskNode, packet contextpacket.ContextPacket) (pass bool, explanation string, err error)
}

// AlwaysPass is a Validator that never rejects a completion; useful as
// a default when the full verification ladder runs as a separate,
// later phase rather than inline per task.
type AlwaysPass struct{}

func (AlwaysPass) Validate(context.Context, *graph.TaskNode, contextpacket.ContextPacket) (bool, string, error) {
	return true, "", nil
}
