// Package scheduler implements the Wave Scheduler (C4): it drives a
// TaskGraph to completion wave by wave, dispatching workers through the
// Context Packet Builder and Worker Dispatcher, spot-checking and
// validating each completion, and retrying or escalating on failure
// (§4.4).
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexuscore/orchestrator/internal/contextpacket"
	"github.com/nexuscore/orchestrator/internal/dispatcher"
	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/nexuscore/orchestrator/internal/logging"
	"github.com/nexuscore/orchestrator/internal/nexuserr"
	"github.com/nexuscore/orchestrator/internal/scar"
	"github.com/nexuscore/orchestrator/internal/vcs"
	"github.com/nexuscore/orchestrator/internal/workspace"
	"go.uber.org/zap"
)

// CheckpointCreator is the seam onto the Checkpoint Manager (C6): the
// Scheduler asks for a pre-task checkpoint before dispatching any
// high/critical-risk task (§4.4 step 2).
type CheckpointCreator interface {
	Create(taskID, reason string) (checkpointID string, err error)
}

// ArchitectEscalator is consulted after three consecutive failures on
// one task (§7): it proposes options (revise, re-approach, roll back)
// and requires human approval before anything proceeds. The Scheduler
// never dispatches the task a fourth time either way.
type ArchitectEscalator interface {
	Escalate(ctx context.Context, task *graph.TaskNode) error
}

// ScarAppender records the provisional scar written alongside an
// escalation; satisfied by the scar registry.
type ScarAppender interface {
	Append(s scar.Scar) (scar.Scar, error)
}

// DefaultMaxParallelWorkers is the wave concurrency cap used when
// settings do not override it (§4.4 step 3).
const DefaultMaxParallelWorkers = 5

// Scheduler drives one TaskGraph's waves to completion.
type Scheduler struct {
	Store      *workspace.Store
	VCS        *vcs.Repo
	Builder    *contextpacket.Builder
	Dispatcher *dispatcher.Dispatcher
	Adapter    dispatcher.Adapter
	SpotCheck  graph.SpotChecker
	Validator  Validator
	Checkpoint CheckpointCreator
	Permission PermissionPolicy
	Architect  ArchitectEscalator
	Scars      ScarAppender

	PlanContext        contextpacket.PlanContext
	IndexesReady       bool
	MaxParallelWorkers int

	Log *zap.Logger
}

func (s *Scheduler) maxParallel() int {
	if s.MaxParallelWorkers > 0 {
		return s.MaxParallelWorkers
	}
	return DefaultMaxParallelWorkers
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// RunWave executes every pending, dependency-satisfied task in wave,
// up to the configured parallelism, and blocks until each has reached a
// terminal per-task state (completed, failed-and-retrying resolved,
// blocked, or deferred). It never starts a task from a later wave.
func (s *Scheduler) RunWave(ctx context.Context, g *graph.TaskGraph, wave int) error {
	var runnable []*graph.TaskNode
	for _, n := range g.Wave(wave) {
		if n.Status == graph.StatusPending && g.DependenciesCompleted(n.ID) {
			runnable = append(runnable, n)
		}
	}
	if err := assertWaveDisjoint(runnable); err != nil {
		return err
	}

	sem := make(chan struct{}, s.maxParallel())
	var wg sync.WaitGroup
	errs := make([]error, len(runnable))

	for i, task := range runnable {
		wg.Add(1)
		go func(i int, task *graph.TaskNode) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			errs[i] = s.runTask(ctx, g, task)
		}(i, task)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func assertWaveDisjoint(tasks []*graph.TaskNode) error {
	seen := map[string]string{}
	for _, t := range tasks {
		for _, f := range t.DeclaredFiles {
			if owner, exists := seen[f]; exists {
				return fmt.Errorf("scheduler: %w: %s and %s both declare %s", nexuserr.ErrWaveFileConflict, owner, t.ID, f)
			}
			seen[f] = t.ID
		}
	}
	return nil
}

// runTask drives a single task through checkpoint, dispatch, spot-check,
// validation, and retry until it reaches completed or blocked.
func (s *Scheduler) runTask(ctx context.Context, g *graph.TaskGraph, task *graph.TaskNode) error {
	log := logging.Task(s.logger(), task.ID)

	if task.Risk.HighOrCritical() && s.Checkpoint != nil {
		if _, err := s.Checkpoint.Create(task.ID, "pre-task checkpoint for "+string(task.Risk)+"-risk task"); err != nil {
			return fmt.Errorf("scheduler: checkpoint before %s: %w", task.ID, err)
		}
	}

	preRunRef := ""
	if s.VCS != nil {
		ref, err := s.VCS.HeadRef()
		if err != nil {
			return fmt.Errorf("scheduler: head ref: %w", err)
		}
		preRunRef = ref
	}
	if err := g.MarkRunning(task.ID, preRunRef); err != nil {
		return fmt.Errorf("scheduler: mark running %s: %w", task.ID, err)
	}
	s.persist(g)
	s.logTaskEvent(task.ID, "task-started", map[string]any{"pre_run_ref": preRunRef})

	for attempt := 1; attempt <= graph.MaxFailureCount; attempt++ {
		outcome, err := s.dispatchOnce(ctx, g, task)
		if err != nil && outcome.Kind == "" {
			return err
		}

		switch outcome.Kind {
		case dispatcher.OutcomeComplete:
			done, err := s.handleComplete(ctx, g, task, preRunRef, outcome)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			// validator rejected: fall through to failure accounting below.
		case dispatcher.OutcomeBlocked:
			_ = g.MarkBlocked(task.ID, mapBlockedKind(outcome.Blocked.Kind))
			s.logBlocked(task, outcome)
			s.persist(g)
			return nil
		case dispatcher.OutcomeTimeout, dispatcher.OutcomeCrash:
			log.Warn("worker did not complete", zap.String("outcome", string(outcome.Kind)))
		}

		escalated, ferr := g.MarkFailed(task.ID)
		if ferr != nil {
			return fmt.Errorf("scheduler: mark failed %s: %w", task.ID, ferr)
		}
		s.persist(g)
		if escalated {
			log.Warn("three consecutive failures, escalating")
			s.escalate(ctx, task)
			return nil
		}
	}
	return nil
}

func (s *Scheduler) dispatchOnce(ctx context.Context, g *graph.TaskGraph, task *graph.TaskNode) (dispatcher.WorkerOutcome, error) {
	packet, err := s.Builder.Build(task, g, s.PlanContext, s.IndexesReady)
	if err != nil {
		return dispatcher.WorkerOutcome{}, fmt.Errorf("scheduler: build packet for %s: %w", task.ID, err)
	}
	if s.Store != nil {
		_ = s.Store.AppendMissionLog(workspace.MissionLogEntry{
			Component: "contextpacket",
			TaskID:    task.ID,
			Event:     "packet-built",
			Fields:    map[string]any{"populated_slots": packet.PopulatedSlots()},
		})
	}
	run, err := s.Dispatcher.Start(ctx, s.Adapter, packet)
	if err != nil {
		return dispatcher.WorkerOutcome{}, fmt.Errorf("scheduler: start worker for %s: %w", task.ID, err)
	}
	return s.Dispatcher.RunToCompletion(run, func(req dispatcher.PermissionRequestPayload) (bool, []byte, string) {
		grant, content, reason := s.Permission.Resolve(req, packet)
		s.logTaskEvent(task.ID, "permission-request", map[string]any{
			"path":    req.Path,
			"granted": grant,
			"reason":  reason,
		})
		return grant, content, reason
	})
}

// handleComplete runs the spot-check and validator for a reported
// completion. done=true means the task reached a terminal state this
// call: either marked completed, or blocked because the spot-check
// failed (the validator is never invoked on a spot-check failure, per
// §4.4 step 4). done=false means the validator rejected the completion
// and the caller should fall through to failure accounting.
func (s *Scheduler) handleComplete(ctx context.Context, g *graph.TaskGraph, task *graph.TaskNode, preRunRef string, outcome dispatcher.WorkerOutcome) (done bool, err error) {
	passed, err := s.SpotCheck.SpotCheck(preRunRef, outcome.Complete.FilesModified)
	if err != nil {
		return false, fmt.Errorf("scheduler: spot-check %s: %w", task.ID, err)
	}
	if !passed {
		_ = g.MarkBlocked(task.ID, graph.BlockReasonGeneric)
		s.persist(g)
		return true, nil
	}

	packet, err := s.Builder.Build(task, g, s.PlanContext, s.IndexesReady)
	if err != nil {
		return false, fmt.Errorf("scheduler: rebuild packet for validation %s: %w", task.ID, err)
	}
	pass, _, err := s.Validator.Validate(ctx, task, packet)
	if err != nil {
		return false, fmt.Errorf("scheduler: validate %s: %w", task.ID, err)
	}
	if !pass {
		return false, nil
	}
	if err := g.MarkCompleted(task.ID, outcome.Complete.Deviations, outcome.Complete.Deferred); err != nil {
		return false, fmt.Errorf("scheduler: mark completed %s: %w", task.ID, err)
	}
	s.persist(g)
	s.logTaskEvent(task.ID, "task-completed", map[string]any{"files": outcome.Complete.FilesModified})
	return true, nil
}

// logTaskEvent appends one strictly-ordered mission-log line for a task
// transition; write ordering (task-graph before mission-log) is already
// satisfied because persist runs first.
func (s *Scheduler) logTaskEvent(taskID, event string, fields map[string]any) {
	if s.Store == nil {
		return
	}
	_ = s.Store.AppendMissionLog(workspace.MissionLogEntry{
		Component: "scheduler",
		TaskID:    taskID,
		Event:     event,
		Fields:    fields,
	})
}

// escalate records the architect escalation for a task that exhausted
// its three attempts: a provisional scar with a derived prevention rule,
// a mission-log entry, and the architect adapter's option proposal (§7,
// scenario C).
func (s *Scheduler) escalate(ctx context.Context, task *graph.TaskNode) {
	if s.Scars != nil {
		_, err := s.Scars.Append(scar.Scar{
			Category:       scar.CategoryImplementation,
			Description:    fmt.Sprintf("task %s failed %d consecutive attempts", task.ID, task.FailureCount),
			RootCause:      "repeated worker failures on the same task",
			Resolution:     "architect escalation",
			PreventionRule: fmt.Sprintf("do not re-dispatch %s without revising its approach or splitting its scope", task.ID),
			Provisional:    true,
		})
		if err != nil {
			s.logger().Error("failed to record escalation scar", zap.Error(err))
		}
	}
	if s.Store != nil {
		_ = s.Store.AppendMissionLog(workspace.MissionLogEntry{
			Component: "scheduler",
			TaskID:    task.ID,
			Event:     "architect-escalation",
			Fields:    map[string]any{"failure_count": task.FailureCount},
		})
	}
	if s.Architect != nil {
		if err := s.Architect.Escalate(ctx, task); err != nil {
			s.logger().Error("architect escalation failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) persist(g *graph.TaskGraph) {
	if s.Store == nil {
		return
	}
	if err := s.Store.WriteTaskGraph(g); err != nil {
		s.logger().Error("failed to persist task graph", zap.Error(err))
	}
}

func (s *Scheduler) logBlocked(task *graph.TaskNode, outcome dispatcher.WorkerOutcome) {
	if s.Store == nil {
		return
	}
	_ = s.Store.AppendMissionLog(workspace.MissionLogEntry{
		Component: "scheduler",
		TaskID:    task.ID,
		Event:     "blocked",
		Fields: map[string]any{
			"kind":   outcome.Blocked.Kind,
			"reason": outcome.Blocked.Reason,
		},
	})
}

func mapBlockedKind(kind dispatcher.BlockedKind) graph.BlockReason {
	switch kind {
	case dispatcher.BlockedHumanVerify:
		return graph.BlockReasonHumanVerify
	case dispatcher.BlockedDecision:
		return graph.BlockReasonDecision
	case dispatcher.BlockedHumanAction:
		return graph.BlockReasonHumanAction
	default:
		return graph.BlockReasonGeneric
	}
}
