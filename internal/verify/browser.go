package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FlowSpec describes one browser flow the plan promises (§4.5 rung 7).
type FlowSpec struct {
	Name  string     `json:"name"`
	URL   string     `json:"url"`
	Steps []FlowStep `json:"steps,omitempty"`
	// Expect is text that must be visible when the flow ends.
	Expect string `json:"expect,omitempty"`
}

// FlowStep is one interaction within a flow.
type FlowStep struct {
	Action   string `json:"action"` // navigate | click | type | wait
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
}

// FlowResult is what the collaborator returns: artifact paths plus a
// verdict. Video is captured only for flows that ran longer than 30
// seconds (§4.5 rung 7).
type FlowResult struct {
	Passed         bool
	ScreenshotPath string
	TracePath      string
	VideoPath      string
	Duration       time.Duration
	Failure        string
}

// Collaborator is the browser-automation contract the core consumes:
// a black box that runs one flow and returns artifacts and a verdict
// (§1 out-of-scope note). The default in-process implementation lives
// in internal/browser.
type Collaborator interface {
	RunFlow(ctx context.Context, flow FlowSpec) (FlowResult, error)
}

// stableThreshold is how many consecutive passes promote a flow to
// stable (§4.5 rung 7).
const stableThreshold = 3

// StabilityTracker persists per-flow consecutive-pass counts in the
// browser-automation section so stability survives sessions.
type StabilityTracker struct {
	Path string

	counts map[string]int
}

// Load reads the tracker state; a missing file starts every flow at
// zero.
func (t *StabilityTracker) Load() error {
	t.counts = map[string]int{}
	data, err := os.ReadFile(t.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("verify: read flow stability: %w", err)
	}
	if err := json.Unmarshal(data, &t.counts); err != nil {
		return fmt.Errorf("verify: parse flow stability: %w", err)
	}
	return nil
}

// Stable reports whether a flow has passed three consecutive runs.
func (t *StabilityTracker) Stable(flow string) bool {
	return t.counts[flow] >= stableThreshold
}

// Record updates a flow's consecutive-pass count and persists.
func (t *StabilityTracker) Record(flow string, passed bool) error {
	if t.counts == nil {
		t.counts = map[string]int{}
	}
	if passed {
		t.counts[flow]++
	} else {
		t.counts[flow] = 0
	}
	data, err := json.MarshalIndent(t.counts, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(t.Path, data, 0o644)
}

// runBrowser is rung 7. Not-applicable when the plan does not require
// browser validation. When required but no collaborator is configured,
// the ladder prompts once; with no resolution it records a gap and
// continues (§9 open-question decision).
func (l *Ladder) runBrowser(ctx context.Context, required bool) RungResult {
	if !required {
		return RungResult{Rung: RungBrowser, Status: StatusNotApplicable}
	}
	if l.Browser == nil {
		if l.BrowserPrompt != nil {
			if answer := l.BrowserPrompt("browser validation is required but no automation path is configured; provide one or leave empty to record a gap"); answer != "" {
				return RungResult{
					Rung:   RungBrowser,
					Status: StatusFailed,
					Detail: "browser automation path provided mid-verify; re-run verification to use it",
					Gaps:   []Gap{{Rung: RungBrowser, Why: "collaborator configured after ladder start: " + answer}},
				}
			}
		}
		return RungResult{
			Rung:   RungBrowser,
			Status: StatusFailed,
			Detail: "browser validation required but unavailable",
			Gaps:   []Gap{{Rung: RungBrowser, Why: "plan requires browser validation but no collaborator is configured"}},
		}
	}

	var gaps []Gap
	for _, flow := range l.Flows {
		wasStable := l.Stability != nil && l.Stability.Stable(flow.Name)
		result, err := l.Browser.RunFlow(ctx, flow)
		passed := err == nil && result.Passed
		if l.Stability != nil {
			if rerr := l.Stability.Record(flow.Name, passed); rerr != nil {
				return RungResult{Rung: RungBrowser, Status: StatusFailed, Detail: "flow stability tracking failed",
					Gaps: []Gap{{Rung: RungBrowser, Why: rerr.Error()}}}
			}
		}
		if passed {
			continue
		}
		why := result.Failure
		if err != nil {
			why = err.Error()
		}
		if wasStable {
			// A stable flow regressing is the strongest browser signal
			// and fails the rung outright.
			gaps = append(gaps, Gap{Rung: RungBrowser, Truth: flow.Name,
				Why: fmt.Sprintf("stable flow %s regressed: %s", flow.Name, why)})
		} else {
			gaps = append(gaps, Gap{Rung: RungBrowser, Truth: flow.Name,
				Why: fmt.Sprintf("flow %s failed: %s", flow.Name, why)})
		}
	}

	if len(gaps) > 0 {
		return RungResult{
			Rung:   RungBrowser,
			Status: StatusFailed,
			Detail: fmt.Sprintf("%d flow failure(s)", len(gaps)),
			Gaps:   gaps,
		}
	}
	return RungResult{Rung: RungBrowser, Status: StatusOK}
}
