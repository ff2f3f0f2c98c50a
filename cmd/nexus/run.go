package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nexuscore/orchestrator/internal/graph"
	"github.com/nexuscore/orchestrator/internal/loop"
	"github.com/nexuscore/orchestrator/internal/scheduler"
	"github.com/nexuscore/orchestrator/internal/verify"
	"github.com/nexuscore/orchestrator/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	flagPhase      string
	flagPlanNumber int
)

func init() {
	for _, cmd := range []*cobra.Command{planCmd, executeCmd, verifyCmd, unifyCmd, runCmd} {
		cmd.Flags().StringVar(&flagPhase, "phase", "", "phase name (required)")
		cmd.Flags().IntVar(&flagPlanNumber, "plan", 1, "plan number within the phase")
		_ = cmd.MarkFlagRequired("phase")
	}
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Validate the phase's plan document",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		planDoc, err := e.store.ReadPlan(flagPhase, flagPlanNumber)
		if err != nil {
			return err
		}
		g, err := loop.ValidatePlan(planDoc)
		if err != nil {
			return err
		}
		fmt.Printf("plan valid: %d tasks across %d waves\n", len(planDoc.Tasks), g.WaveCount)
		return nil
	},
}

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run the plan's waves to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, planDoc, g, err := loadPlanGraph()
		if err != nil {
			return err
		}
		sched, err := e.buildScheduler(planDoc)
		if err != nil {
			return err
		}
		if err := resumeGraph(e, sched, g); err != nil {
			return err
		}
		ctx := signalContext()
		for wave := 1; wave <= g.WaveCount; wave++ {
			if err := sched.RunWave(ctx, g, wave); err != nil {
				return err
			}
			if !g.WaveComplete(wave) {
				fmt.Println(renderBlockedTasks(g))
				return nil
			}
		}
		fmt.Println("all waves complete")
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the eight-rung verification ladder against the plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, planDoc, g, err := loadPlanGraph()
		if err != nil {
			return err
		}
		ladder, err := e.buildLadder(planDoc)
		if err != nil {
			return err
		}
		report, err := ladder.Run(signalContext(), planDoc, g)
		if err != nil {
			return err
		}
		data, err := report.Encode()
		if err != nil {
			return err
		}
		if err := e.store.WriteVerificationReport(flagPhase, flagPlanNumber, data); err != nil {
			return err
		}
		fmt.Println(renderReport(report))
		if !report.MergeApproved {
			return fmt.Errorf("merge rejected: %d gap(s)", len(report.Gaps()))
		}
		return nil
	},
}

var unifyCmd = &cobra.Command{
	Use:   "unify",
	Short: "Reconcile plan versus actual, write summary and handoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, planDoc, _, err := loadPlanGraph()
		if err != nil {
			return err
		}
		controller := newController(e)
		// unify drives the whole cycle through RunCycle: the plan is
		// validated again and its waves and verification run before UNIFY.
		outcome, err := controller.RunCycle(signalContext(), planDoc)
		if err != nil {
			return err
		}
		if outcome.SummaryPath != "" {
			fmt.Printf("summary: %s\nhandoff: %s\n", outcome.SummaryPath, outcome.HandoffPath)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the full PLAN -> EXECUTE -> VERIFY -> UNIFY loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		planDoc, err := e.store.ReadPlan(flagPhase, flagPlanNumber)
		if err != nil {
			return err
		}
		controller := newController(e)
		outcome, err := controller.RunCycle(signalContext(), planDoc)
		if err != nil {
			return err
		}
		switch {
		case outcome.BlockedOnHuman:
			fmt.Println(renderCheckpointFrame("act", "a human-action gate is open; resolve it and re-run"))
		case outcome.GapPlanPath != "":
			fmt.Println(renderReport(outcome.Report))
			fmt.Printf("gap-closure plan written: %s\n", outcome.GapPlanPath)
		case outcome.MergeApproved:
			fmt.Println(renderReport(outcome.Report))
			fmt.Printf("cycle complete; summary: %s\n", outcome.SummaryPath)
		default:
			fmt.Println("cycle stopped before completion")
		}
		return nil
	},
}

// newController wires the loop controller over the scheduler and
// ladder builders, with stdin watching for a typed "stop" during
// auto-advance pauses.
func newController(e *env) *loop.Controller {
	cancel := make(chan struct{})
	go watchForStop(cancel)

	return &loop.Controller{
		Store: e.store,
		Scars: e.scars,
		RunWave: func(ctx context.Context, planDoc workspace.Plan, g *graph.TaskGraph, wave int) error {
			sched, err := e.buildScheduler(planDoc)
			if err != nil {
				return err
			}
			if wave == 1 {
				if err := resumeGraph(e, sched, g); err != nil {
					return err
				}
			}
			return sched.RunWave(ctx, g, wave)
		},
		Verify: func(ctx context.Context, planDoc workspace.Plan, g *graph.TaskGraph) (verify.Report, error) {
			ladder, err := e.buildLadder(planDoc)
			if err != nil {
				return verify.Report{}, err
			}
			return ladder.Run(ctx, planDoc, g)
		},
		AutoAdvance:  e.settings.Pipeline.AutoAdvance,
		PauseSeconds: 5,
		Cancel:       cancel,
		Log:          componentLogger("loop"),
	}
}

func loadPlanGraph() (*env, workspace.Plan, *graph.TaskGraph, error) {
	e, err := openEnv()
	if err != nil {
		return nil, workspace.Plan{}, nil, err
	}
	planDoc, err := e.store.ReadPlan(flagPhase, flagPlanNumber)
	if err != nil {
		return nil, workspace.Plan{}, nil, err
	}
	g, err := loop.ValidatePlan(planDoc)
	if err != nil {
		return nil, workspace.Plan{}, nil, err
	}
	// Prefer the persisted graph when one exists: it carries statuses
	// and pre-run refs from earlier sessions.
	if persisted, err := e.store.ReadTaskGraph(); err == nil && persisted.Phase == planDoc.FrontMatter.Phase {
		g = persisted
	}
	return e, planDoc, g, nil
}

// resumeGraph reconciles tasks left running by a killed session (§4.4
// Resume) before any new dispatch.
func resumeGraph(e *env, sched *scheduler.Scheduler, g *graph.TaskGraph) error {
	if err := g.Resume(sched.SpotCheck); err != nil {
		return err
	}
	return e.store.WriteTaskGraph(g)
}

// watchForStop closes cancel when the human types "stop" during an
// auto-advance pause (§4.8).
func watchForStop(cancel chan struct{}) {
	for {
		line := promptLine("")
		if strings.EqualFold(strings.TrimSpace(line), "stop") {
			close(cancel)
			return
		}
		if line == "" {
			return
		}
	}
}

// signalContext cancels on SIGINT/SIGTERM so in-flight subprocesses are
// released on all exit paths.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}
