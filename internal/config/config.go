// Package config defines the typed shape of the orchestrator's settings
// file (governance/settings.json) together with the defaulting and
// validation passes applied on load, following the same
// applyDefaults/normalize/validate pipeline the retrieval pack uses for its
// own project configuration.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Autonomy enumerates how much the loop controller may act without pausing
// for human confirmation.
type Autonomy string

const (
	AutonomyLow    Autonomy = "low"
	AutonomyMedium Autonomy = "medium"
	AutonomyHigh   Autonomy = "high"
)

// TDDMode enumerates the test-driven-development discipline a task must
// follow.
type TDDMode string

const (
	TDDHard     TDDMode = "hard"
	TDDStandard TDDMode = "standard"
	TDDSkip     TDDMode = "skip"
)

// Settings is the typed view of governance/settings.json. It is loaded
// once by the workspace Store and passed by value into every component
// that needs it.
type Settings struct {
	Project        ProjectInfo         `json:"project"`
	Pipeline       PipelineSettings    `json:"pipeline"`
	Autonomy       AutonomySettings    `json:"autonomy"`
	TDD            TDDSettings         `json:"tdd"`
	Commands       CommandSettings     `json:"commands"`
	Browser        BrowserSettings     `json:"browser"`
	Checkpoints    CheckpointSettings  `json:"checkpoints"`
	Notifications  NotificationConfig  `json:"notifications"`
	RequiredSkills map[string][]string `json:"required_skills,omitempty"`
}

// ProjectInfo is project identity metadata.
type ProjectInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// PipelineSettings controls scheduler tuning.
type PipelineSettings struct {
	AutoAdvance        bool `json:"auto_advance"`
	Parallelization    bool `json:"parallelization"`
	MaxParallelWorkers int  `json:"maxParallelWorkers"`
	// WorkerTimeoutSeconds is the per-worker wall-clock budget enforced
	// by the dispatcher; zero or a negative value is replaced by the
	// 900-second default.
	WorkerTimeoutSeconds int `json:"workerTimeoutSeconds,omitempty"`
}

// AutonomySettings carries the default autonomy level plus per-task
// overrides (task ID -> level).
type AutonomySettings struct {
	Default   Autonomy            `json:"default"`
	Overrides map[string]Autonomy `json:"overrides,omitempty"`
}

// TDDSettings carries the default TDD mode plus per-task overrides.
type TDDSettings struct {
	Default   TDDMode            `json:"default"`
	Overrides map[string]TDDMode `json:"overrides,omitempty"`
}

// CommandSettings are the tool invocation strings used by the verification
// ladder (§4.5 rungs 2, 3, 6).
type CommandSettings struct {
	Test        string `json:"test,omitempty"`
	Lint        string `json:"lint,omitempty"`
	TypeCheck   string `json:"typecheck,omitempty"`
	FormatCheck string `json:"format_check,omitempty"`
	Build       string `json:"build,omitempty"`
	Integration string `json:"integration,omitempty"`
	EndToEnd    string `json:"e2e,omitempty"`
}

// BrowserSettings controls the rung-7 collaborator.
type BrowserSettings struct {
	Enabled bool   `json:"enabled"`
	MCPPath string `json:"mcpPath,omitempty"`
}

// CheckpointSettings controls checkpoint retention (§4.6).
type CheckpointSettings struct {
	BeforeHighRisk bool `json:"beforeHighRisk"`
	MaxRetained    int  `json:"maxRetained"`
}

// NotificationConfig toggles human-visible notifications.
type NotificationConfig struct {
	OnHighRisk     bool `json:"onHighRisk"`
	OnCriticalRisk bool `json:"onCriticalRisk"`
	OnScar         bool `json:"onScar"`
}

// Default returns the settings skeleton materialised by workspace
// initialisation, before any project customises it.
func Default(projectName string) Settings {
	return Settings{
		Project: ProjectInfo{
			Name:    projectName,
			Version: "0.1.0",
		},
		Pipeline: PipelineSettings{
			AutoAdvance:          true,
			Parallelization:      true,
			MaxParallelWorkers:   5,
			WorkerTimeoutSeconds: 900,
		},
		Autonomy: AutonomySettings{Default: AutonomyMedium},
		TDD:      TDDSettings{Default: TDDStandard},
		Commands: CommandSettings{
			Test:        "go test ./...",
			Lint:        "go vet ./...",
			TypeCheck:   "go build ./...",
			FormatCheck: "gofmt -l .",
		},
		Checkpoints: CheckpointSettings{
			BeforeHighRisk: true,
			MaxRetained:    10,
		},
		Notifications: NotificationConfig{
			OnHighRisk:     true,
			OnCriticalRisk: true,
			OnScar:         true,
		},
	}
}

// Parse decodes settings JSON, applies defaults for any missing scalar, and
// validates the result.
func Parse(data []byte) (Settings, error) {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("config: parse settings: %w", err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

// Encode serialises settings back to indented JSON for atomic persistence.
func (s Settings) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("config: encode settings: %w", err)
	}
	return data, nil
}

func (s *Settings) applyDefaults() {
	if s.Pipeline.MaxParallelWorkers <= 0 {
		s.Pipeline.MaxParallelWorkers = 5
	}
	if s.Pipeline.WorkerTimeoutSeconds <= 0 {
		s.Pipeline.WorkerTimeoutSeconds = 900
	}
	if s.Autonomy.Default == "" {
		s.Autonomy.Default = AutonomyMedium
	}
	if s.TDD.Default == "" {
		s.TDD.Default = TDDStandard
	}
	if s.Checkpoints.MaxRetained <= 0 {
		s.Checkpoints.MaxRetained = 10
	}
}

// Validate enforces the enumerations and cross-field constraints the
// settings file must satisfy.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Project.Name) == "" {
		return fmt.Errorf("project.name is required")
	}
	if err := validAutonomy(s.Autonomy.Default); err != nil {
		return fmt.Errorf("autonomy.default: %w", err)
	}
	for task, level := range s.Autonomy.Overrides {
		if err := validAutonomy(level); err != nil {
			return fmt.Errorf("autonomy.overrides[%s]: %w", task, err)
		}
	}
	if err := validTDD(s.TDD.Default); err != nil {
		return fmt.Errorf("tdd.default: %w", err)
	}
	for task, mode := range s.TDD.Overrides {
		if err := validTDD(mode); err != nil {
			return fmt.Errorf("tdd.overrides[%s]: %w", task, err)
		}
	}
	if s.Pipeline.MaxParallelWorkers < 1 {
		return fmt.Errorf("pipeline.maxParallelWorkers must be >= 1")
	}
	if s.Checkpoints.MaxRetained < 1 {
		return fmt.Errorf("checkpoints.maxRetained must be >= 1")
	}
	return nil
}

// AutonomyFor resolves the effective autonomy level for a task, honouring
// any override.
func (s Settings) AutonomyFor(taskID string) Autonomy {
	if level, ok := s.Autonomy.Overrides[taskID]; ok {
		return level
	}
	return s.Autonomy.Default
}

// TDDModeFor resolves the effective TDD mode for a task, honouring any
// override. A skip mode without an accompanying justification is the
// caller's responsibility to rewrite per §9 -- this accessor only resolves
// the configured value.
func (s Settings) TDDModeFor(taskID string) TDDMode {
	if mode, ok := s.TDD.Overrides[taskID]; ok {
		return mode
	}
	return s.TDD.Default
}

func validAutonomy(a Autonomy) error {
	switch a {
	case AutonomyLow, AutonomyMedium, AutonomyHigh:
		return nil
	default:
		return fmt.Errorf("must be one of low, medium, high, got %q", a)
	}
}

func validTDD(m TDDMode) error {
	switch m {
	case TDDHard, TDDStandard, TDDSkip:
		return nil
	default:
		return fmt.Errorf("must be one of hard, standard, skip, got %q", m)
	}
}
