package workspace

import (
	"path/filepath"
	"strconv"
)

// RootDirName is the default top-level workspace directory name (§6).
const RootDirName = ".nexus"

// Numbered sections of the workspace (§2, §6).
const (
	SectionMission           = "00-mission"
	SectionGovernance        = "01-governance"
	SectionArchitecture      = "02-architecture"
	SectionIndex             = "03-index"
	SectionPlans             = "04-plans"
	SectionRuntime           = "05-runtime"
	SectionCheckpoints       = "06-checkpoints"
	SectionArtifacts         = "07-artifacts"
	SectionBrowserAutomation = "08-browser-automation"
)

var allSections = []string{
	SectionMission,
	SectionGovernance,
	SectionArchitecture,
	SectionIndex,
	SectionPlans,
	SectionRuntime,
	SectionCheckpoints,
	SectionArtifacts,
	SectionBrowserAutomation,
}

func (s *Store) path(section string, parts ...string) string {
	return filepath.Join(append([]string{s.root, section}, parts...)...)
}

// SettingsPath is governance/settings.json.
func (s *Store) SettingsPath() string { return s.path(SectionGovernance, "settings.json") }

// StatePath is governance/state.md, the human-readable project-state file.
func (s *Store) StatePath() string { return s.path(SectionGovernance, "state.md") }

// ScarsPath is governance/scars.md.
func (s *Store) ScarsPath() string { return s.path(SectionGovernance, "scars.md") }

// TaskGraphPath is runtime/task-graph.json.
func (s *Store) TaskGraphPath() string { return s.path(SectionRuntime, "task-graph.json") }

// MissionLogPath is runtime/mission-log.ndjson.
func (s *Store) MissionLogPath() string { return s.path(SectionRuntime, "mission-log.ndjson") }

// ModuleMapPath is architecture/modules.json.
func (s *Store) ModuleMapPath() string { return s.path(SectionArchitecture, "modules.json") }

// ContractsMapPath is architecture/api-contracts.json.
func (s *Store) ContractsMapPath() string { return s.path(SectionArchitecture, "api-contracts.json") }

// SymbolIndexPath is index/symbols.json.
func (s *Store) SymbolIndexPath() string { return s.path(SectionIndex, "symbols.json") }

// TestMapPath is index/test-map.json.
func (s *Store) TestMapPath() string { return s.path(SectionIndex, "test-map.json") }

// MissionPath is mission/mission.md.
func (s *Store) MissionPath() string { return s.path(SectionMission, "mission.md") }

// RoadmapPath is mission/roadmap.md, the ordered phase checklist UNIFY
// consults for the next action (§4.8).
func (s *Store) RoadmapPath() string { return s.path(SectionMission, "roadmap.md") }

// ArchChangesPath is architecture/changes.md, where UNIFY appends the
// architectural deviations workers reported.
func (s *Store) ArchChangesPath() string { return s.path(SectionArchitecture, "changes.md") }

// PlanPath returns the plan document path for phase/plan number n.
func (s *Store) PlanPath(phase string, n int) string {
	return s.path(SectionPlans, phase, planFileName(n))
}

// CheckpointPath returns the JSON record path for a checkpoint id.
func (s *Store) CheckpointPath(id string) string {
	return s.path(SectionCheckpoints, "checkpoint-"+id+".json")
}

// CheckpointsDir is the directory holding every checkpoint record.
func (s *Store) CheckpointsDir() string { return s.path(SectionCheckpoints) }

// SnapshotPath returns the workspace-snapshot path for a checkpoint id.
func (s *Store) SnapshotPath(id string) string {
	return s.path(SectionCheckpoints, "snapshots", id)
}

// QuarantinePath returns a timestamped quarantine file path for a rejected
// rollback diff (§4.6).
func (s *Store) QuarantinePath(name string) string {
	return s.path(SectionArtifacts, "quarantine", name)
}

// SummaryPath returns the UNIFY summary path for phase/plan number n.
func (s *Store) SummaryPath(phase string, n int) string {
	return s.path(SectionPlans, phase, "summary-"+strconv.Itoa(n)+".md")
}

// VerificationReportPath returns the verification-report path for
// phase/plan number n.
func (s *Store) VerificationReportPath(phase string, n int) string {
	return s.path(SectionPlans, phase, "verification-report-"+strconv.Itoa(n)+".json")
}

// HandoffPath is runtime/handoff.md, the session-continuity document
// UNIFY writes (§4.8).
func (s *Store) HandoffPath() string { return s.path(SectionRuntime, "handoff.md") }

// ChecksDir is governance/checks, the project-local adversarial-check
// plugin directory consumed by rung 5.
func (s *Store) ChecksDir() string { return s.path(SectionGovernance, "checks") }

// MailboxDir is runtime/mailbox, one NDJSON spool per addressee.
func (s *Store) MailboxDir() string { return s.path(SectionRuntime, "mailbox") }

// BrowserDir is the browser-automation artifacts section.
func (s *Store) BrowserDir() string { return s.path(SectionBrowserAutomation) }

func planFileName(n int) string {
	return "plan-" + strconv.Itoa(n) + ".md"
}
