package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nexuscore/orchestrator/internal/workspace"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [project-name]",
	Short: "Create the numbered workspace skeleton and default settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectRoot, wsRoot, err := workspaceRoot()
		if err != nil {
			return err
		}
		name := filepath.Base(projectRoot)
		if len(args) > 0 {
			name = args[0]
		}
		store := workspace.Open(wsRoot)
		if err := store.Initialise(name); err != nil {
			return err
		}
		fmt.Printf("initialised workspace for %s at %s\n", name, wsRoot)
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Audit the environment the orchestrator depends on",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectRoot, wsRoot, err := workspaceRoot()
		if err != nil {
			return err
		}

		healthy := true
		check := func(name string, ok bool, hint string) {
			renderCheck(name, ok, hint)
			if !ok {
				healthy = false
			}
		}

		_, gitErr := exec.LookPath("git")
		check("git on PATH", gitErr == nil, "install git; checkpoints and spot-checks shell out to it")

		gitDir := exec.Command("git", "rev-parse", "--git-dir")
		gitDir.Dir = projectRoot
		check("project is a git repository", gitDir.Run() == nil, "run git init; version control is the durability layer")

		store := workspace.Open(wsRoot)
		check("workspace initialised", store.Exists(), "run nexus init")

		if store.Exists() {
			_, settingsErr := store.ReadSettings()
			check("settings parse", settingsErr == nil, "fix governance/settings.json")

			_, modErr := os.Stat(store.ModuleMapPath())
			check("codebase index present", modErr == nil, "run the indexer; brand-new projects may skip this")
		}

		if flagWorkerCmd != "" {
			parts := strings.Fields(flagWorkerCmd)
			_, workerErr := exec.LookPath(parts[0])
			check("worker runtime on PATH", workerErr == nil, "install the worker runtime named by --worker-cmd")
		}

		if !healthy {
			return fmt.Errorf("%w: environment audit found problems", errInfrastructure)
		}
		fmt.Println("environment healthy")
		return nil
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover <checkpoint-id>",
	Short: "Roll the working tree and workspace back to a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		id := args[0]

		diff, err := e.checkpoints.PlanRollback(id)
		if err != nil {
			return err
		}
		if strings.TrimSpace(diff) == "" {
			fmt.Println("working tree already matches the checkpoint")
		} else {
			fmt.Println(renderDiffPreview(diff))
		}

		if !confirm(fmt.Sprintf("reset working tree to checkpoint %s? The current diff is quarantined first", id)) {
			fmt.Println("rollback cancelled")
			return nil
		}
		if err := e.checkpoints.Rollback(id); err != nil {
			return err
		}
		fmt.Printf("rolled back to %s\n", id)
		return nil
	},
}

// confirm asks a yes/no question on the terminal; anything but y/yes
// declines.
func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	answer := promptLine("")
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// promptLine reads one line from stdin; the question, when non-empty,
// is printed first. Used both by confirm and as the ladder's one-shot
// browser prompt.
func promptLine(question string) string {
	if question != "" {
		fmt.Printf("%s: ", question)
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}
