// Package verify implements the Verification Ladder (C5): eight
// sequential rungs run against the modified files and the task graph
// after a plan's waves complete. Rungs 1-2 halt the ladder on failure;
// rungs 3-7 collect gaps and continue; rung 8 is the merge gate (§4.5).
package verify

import (
	"encoding/json"
	"time"
)

// Rung names the eight ladder positions.
type Rung string

const (
	RungPhysicality   Rung = "physicality"
	RungDeterministic Rung = "deterministic"
	RungDeltaTests    Rung = "delta-tests"
	RungGoalBackward  Rung = "goal-backward"
	RungAdversarial   Rung = "adversarial"
	RungSystem        Rung = "system-validation"
	RungBrowser       Rung = "browser-validation"
	RungMergeJudge    Rung = "merge-judge"
)

// RungStatus is one rung's outcome (§3 VerificationReport).
type RungStatus string

const (
	StatusOK            RungStatus = "ok"
	StatusFailed        RungStatus = "failed"
	StatusSkipped       RungStatus = "skipped"
	StatusNotApplicable RungStatus = "not-applicable"
)

// Gap records one specific failure: which truth or check failed, why,
// and which files are implicated (§3).
type Gap struct {
	Rung         Rung     `json:"rung"`
	Truth        string   `json:"truth,omitempty"`
	Why          string   `json:"why"`
	File         string   `json:"file,omitempty"`
	Line         int      `json:"line,omitempty"`
	MissingFiles []string `json:"missing_files,omitempty"`
}

// RungResult is one rung's full outcome.
type RungResult struct {
	Rung   Rung       `json:"rung"`
	Status RungStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
	Gaps   []Gap      `json:"gaps,omitempty"`
}

// Report is the single VerificationReport document written per run (§3).
type Report struct {
	Phase         string       `json:"phase"`
	PlanNumber    int          `json:"plan_number"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
	Rungs         []RungResult `json:"rungs"`
	MergeApproved bool         `json:"merge_approved"`
}

// RungResult returns the recorded result for rung name, if present.
func (r Report) RungResult(name Rung) (RungResult, bool) {
	for _, rung := range r.Rungs {
		if rung.Rung == name {
			return rung, true
		}
	}
	return RungResult{}, false
}

// Gaps flattens every recorded gap across rungs, ladder order.
func (r Report) Gaps() []Gap {
	var out []Gap
	for _, rung := range r.Rungs {
		out = append(out, rung.Gaps...)
	}
	return out
}

// Encode renders the report as indented JSON for the plans section.
func (r Report) Encode() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
