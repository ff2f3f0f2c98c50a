package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexuscore/orchestrator/internal/browser"
	"github.com/nexuscore/orchestrator/internal/checkpoint"
	"github.com/nexuscore/orchestrator/internal/checks"
	"github.com/nexuscore/orchestrator/internal/config"
	"github.com/nexuscore/orchestrator/internal/contextpacket"
	"github.com/nexuscore/orchestrator/internal/dispatcher"
	"github.com/nexuscore/orchestrator/internal/dispatcher/adapter"
	"github.com/nexuscore/orchestrator/internal/index"
	"github.com/nexuscore/orchestrator/internal/logging"
	"github.com/nexuscore/orchestrator/internal/scar"
	"github.com/nexuscore/orchestrator/internal/scheduler"
	"github.com/nexuscore/orchestrator/internal/vcs"
	"github.com/nexuscore/orchestrator/internal/verify"
	"github.com/nexuscore/orchestrator/internal/workspace"
)

// env is every long-lived component wired for one invocation: the
// project root, its workspace store, and the collaborators the loop
// routes between.
type env struct {
	projectRoot string
	store       *workspace.Store
	settings    config.Settings
	repo        *vcs.Repo
	scars       *scar.Registry
	checkpoints *checkpoint.Manager
}

// workspaceRoot resolves the --workspace flag or defaults to ./.nexus.
func workspaceRoot() (projectRoot, wsRoot string, err error) {
	projectRoot, err = os.Getwd()
	if err != nil {
		return "", "", err
	}
	wsRoot = flagWorkspace
	if wsRoot == "" {
		wsRoot = filepath.Join(projectRoot, workspace.RootDirName)
	}
	return projectRoot, wsRoot, nil
}

// openEnv opens an initialised workspace and its settings; every
// command except init goes through here.
func openEnv() (*env, error) {
	projectRoot, wsRoot, err := workspaceRoot()
	if err != nil {
		return nil, err
	}
	store := workspace.Open(wsRoot)
	settings, err := store.ReadSettings()
	if err != nil {
		return nil, err
	}
	repo := vcs.Open(projectRoot)
	scars := scar.New(store)
	return &env{
		projectRoot: projectRoot,
		store:       store,
		settings:    settings,
		repo:        repo,
		scars:       scars,
		checkpoints: &checkpoint.Manager{
			Repo:        repo,
			Store:       store,
			ScarRefs:    scars,
			Scars:       scars,
			MaxRetained: settings.Checkpoints.MaxRetained,
			Snapshot:    true,
			Log:         logging.Component(baseLog, "checkpoint"),
		},
	}, nil
}

// workerAdapter builds the dispatch adapter from --worker-cmd. When
// settings enable the browser and carry its MCP path, the runtime gets
// tool-name references; otherwise it gets the bundled shell runner (§4.9).
func (e *env) workerAdapter() (dispatcher.Adapter, error) {
	if flagWorkerCmd == "" {
		return nil, fmt.Errorf("%w: no worker runtime configured, pass --worker-cmd", errInfrastructure)
	}
	parts := strings.Fields(flagWorkerCmd)
	name, args := parts[0], parts[1:]
	tag := filepath.Base(name)

	if e.settings.Browser.Enabled && e.settings.Browser.MCPPath != "" {
		return adapter.ToolCapable{
			Tag:           tag,
			Name:          name,
			Args:          args,
			MCPPath:       e.settings.Browser.MCPPath,
			MCPServerName: "browser",
			MCPServerCmd:  "nexus-browser-mcp",
			ToolNames:     []string{"browser_navigate", "browser_click", "browser_screenshot"},
		}, nil
	}
	return adapter.RunnerBacked{
		Tag:        tag,
		Name:       name,
		Args:       args,
		RunnerPath: filepath.Join(e.store.BrowserDir(), "runner.sh"),
	}, nil
}

// buildScheduler wires the wave scheduler for one plan.
func (e *env) buildScheduler(plan workspace.Plan) (*scheduler.Scheduler, error) {
	adapter, err := e.workerAdapter()
	if err != nil {
		return nil, err
	}

	modules, _ := index.LoadModuleMap(e.store.ModuleMapPath())
	contracts, _ := index.LoadContractsMap(e.store.ContractsMapPath())
	symbols, _ := index.LoadSymbolIndex(e.store.SymbolIndexPath())
	tests, _ := index.LoadTestMap(e.store.TestMapPath())
	indexesReady := modules != nil

	mission, _ := os.ReadFile(e.store.MissionPath())
	stateText, _ := os.ReadFile(e.store.StatePath())

	builder := &contextpacket.Builder{
		Files:     contextpacket.OSFiles,
		Modules:   modules,
		Contracts: contracts,
		Symbols:   symbols,
		Tests:     tests,
		Scars:     e.scars,
		Settings:  e.settings,
	}

	return &scheduler.Scheduler{
		Store:      e.store,
		VCS:        e.repo,
		Builder:    builder,
		Dispatcher: &dispatcher.Dispatcher{Timeout: time.Duration(e.settings.Pipeline.WorkerTimeoutSeconds) * time.Second},
		Adapter:    adapter,
		SpotCheck:  scheduler.VCSSpotChecker{Repo: e.repo, Root: e.projectRoot},
		Validator:  scheduler.AlwaysPass{},
		Checkpoint: e.checkpoints,
		Permission: scheduler.PermissionPolicy{Files: contextpacket.OSFiles},
		Architect:  terminalArchitect{store: e.store},
		Scars:      e.scars,
		PlanContext: contextpacket.PlanContext{
			MissionText:        string(mission),
			PhaseObjectiveText: plan.FrontMatter.Phase,
			StateText:          string(stateText),
			Boundaries:         plan.Boundaries,
		},
		IndexesReady:       indexesReady,
		MaxParallelWorkers: e.settings.Pipeline.MaxParallelWorkers,
		Log:                logging.Component(baseLog, "scheduler"),
	}, nil
}

// buildLadder wires the verification ladder for one plan.
func (e *env) buildLadder(plan workspace.Plan) (*verify.Ladder, error) {
	tests, _ := index.LoadTestMap(e.store.TestMapPath())
	plugins, err := checks.LoadDir(e.store.ChecksDir())
	if err != nil {
		return nil, err
	}

	ladder := &verify.Ladder{
		Root:     e.projectRoot,
		Diff:     e.repo,
		Runner:   verify.ShellRunner{Dir: e.projectRoot},
		Commands: e.settings.Commands,
		TestMap:  tests,
		Plugins:  plugins,
		Scars:    e.scars,
		Log:      logging.Component(baseLog, "verify"),
	}

	if plan.FrontMatter.BrowserRequired && e.settings.Browser.Enabled {
		flows, err := verify.LoadFlowSpecs(filepath.Join(e.store.BrowserDir(), "flows.json"))
		if err != nil {
			return nil, err
		}
		ladder.Flows = flows
		ladder.Browser = &browser.Runner{
			ArtifactsDir: e.store.BrowserDir(),
			Log:          logging.Component(baseLog, "browser"),
		}
		tracker := &verify.StabilityTracker{Path: filepath.Join(e.store.BrowserDir(), "flow-stability.json")}
		if err := tracker.Load(); err != nil {
			return nil, err
		}
		ladder.Stability = tracker
	}
	if plan.FrontMatter.BrowserRequired && !e.settings.Browser.Enabled {
		ladder.BrowserPrompt = promptLine
	}
	return ladder, nil
}
