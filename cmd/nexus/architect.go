package main

import (
	"context"
	"fmt"

	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/nexuscore/orchestrator/internal/workspace"
)

// terminalArchitect is the CLI's architect escalator (§7): after three
// consecutive failures it presents the options frame and records the
// escalation; the human picks the path forward on the next invocation
// (revise the plan, re-approach, or nexus recover).
type terminalArchitect struct {
	store *workspace.Store
}

func (a terminalArchitect) Escalate(_ context.Context, task *graph.TaskNode) error {
	fmt.Println(renderCheckpointFrame("decide", fmt.Sprintf(
		"task %s failed %d consecutive attempts.\nOptions:\n  1. revise the task in the plan file\n  2. re-approach with a narrower declared-files list\n  3. nexus recover <checkpoint-id> to roll back",
		task.ID, task.FailureCount)))
	if a.store == nil {
		return nil
	}
	return a.store.AppendMissionLog(workspace.MissionLogEntry{
		Component: "architect",
		TaskID:    task.ID,
		Event:     "options-proposed",
		Fields: map[string]any{
			"options": []string{"revise", "re-approach", "roll back"},
		},
	})
}
