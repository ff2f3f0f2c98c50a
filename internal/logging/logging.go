// Package logging builds the base zap.Logger for the orchestrator process
// and the conventional per-component scoping ("component", "<name>") used
// everywhere else in this module. There is exactly one base logger per
// process, constructed once in cmd/nexus and threaded through explicitly --
// nothing here is a package-level global.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls how the base logger is constructed.
type Options struct {
	// Debug selects zap's development encoder (human-readable, caller info,
	// debug level enabled) instead of the production JSON encoder.
	Debug bool
	// LogFile, when non-empty, additionally writes JSON-encoded entries to
	// this path (opened append-only) alongside stderr. Debug ignores it.
	LogFile string
}

// New constructs the base logger for the process.
func New(opts Options) (*zap.Logger, error) {
	if opts.Debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	if opts.LogFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.LogFile)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, opts.LogFile)
	}
	return cfg.Build()
}

// Component returns a logger scoped to a single orchestrator component,
// mirroring the way every component in this package receives its own
// pre-scoped logger rather than reaching for a global.
func Component(base *zap.Logger, name string) *zap.Logger {
	return base.With(zap.String("component", name))
}

// Task further scopes a component logger to a single task, the other axis
// every mission-log entry and worker-dispatch log line is keyed on.
func Task(l *zap.Logger, taskID string) *zap.Logger {
	return l.With(zap.String("task_id", taskID))
}
