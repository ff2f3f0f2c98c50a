// Command nexus is the thin, scriptable command-line surface of the
// orchestration core (§6): init, doctor, recover, and the four loop
// entry points that are normally chained automatically.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/nexuscore/orchestrator/internal/logging"
	"github.com/nexuscore/orchestrator/internal/nexuserr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Exit codes (§6): 0 success, 1 user-correctable failure, 2
// infrastructure failure, 3 unexpected internal error.
const (
	exitOK             = 0
	exitUserError      = 1
	exitInfrastructure = 2
	exitInternal       = 3
)

var (
	flagDebug     bool
	flagWorkspace string
	flagWorkerCmd string

	baseLog *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "nexus",
	Short:         "Autonomous agentic development orchestrator",
	Long:          "nexus drives the PLAN -> EXECUTE -> VERIFY -> UNIFY loop:\nspecialised worker subprocesses do the code generation, and the core\nverifies every claimed change against the filesystem and version control.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		baseLog, err = logging.New(logging.Options{Debug: flagDebug})
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if baseLog != nil {
			_ = baseLog.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "human-readable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "workspace root (default: ./.nexus)")
	rootCmd.PersistentFlags().StringVar(&flagWorkerCmd, "worker-cmd", "", "worker runtime invocation, e.g. \"claude -p {promptFile}\"")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(unifyCmd)
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error chain onto the §6 exit-code contract via the
// sentinel errors of internal/nexuserr.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, nexuserr.ErrWorkspaceAbsent),
		errors.Is(err, nexuserr.ErrCheckpointNotFound),
		errors.Is(err, nexuserr.ErrMissingIndex),
		errors.Is(err, nexuserr.ErrWaveFileConflict),
		errors.Is(err, nexuserr.ErrDependencyCycle),
		errors.Is(err, nexuserr.ErrDependencyNotMonotonic):
		return exitUserError
	case errors.Is(err, nexuserr.ErrWorkerCrash),
		errors.Is(err, nexuserr.ErrWorkerTimeout),
		errors.Is(err, errInfrastructure):
		return exitInfrastructure
	default:
		return exitInternal
	}
}

// errInfrastructure labels environment failures (git missing, worker
// binary absent) so the exit-code mapping can distinguish them from
// internal bugs.
var errInfrastructure = errors.New("infrastructure failure")
