package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	s := Default("widget-factory")
	require.NoError(t, s.Validate())
	require.Equal(t, 5, s.Pipeline.MaxParallelWorkers)
	require.Equal(t, AutonomyMedium, s.Autonomy.Default)
}

func TestParseAppliesDefaultsAndOverrides(t *testing.T) {
	raw := []byte(`{
		"project": {"name": "widget-factory"},
		"autonomy": {"default": "low", "overrides": {"T02": "high"}},
		"tdd": {"default": "hard", "overrides": {"T03": "skip"}}
	}`)
	s, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, AutonomyLow, s.AutonomyFor("T01"))
	require.Equal(t, AutonomyHigh, s.AutonomyFor("T02"))
	require.Equal(t, TDDHard, s.TDDModeFor("T01"))
	require.Equal(t, TDDSkip, s.TDDModeFor("T03"))
	require.Equal(t, 5, s.Pipeline.MaxParallelWorkers, "zero-value parallelism must default to 5")
}

func TestParseRejectsUnknownAutonomy(t *testing.T) {
	raw := []byte(`{"project": {"name": "x"}, "autonomy": {"default": "extreme"}}`)
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestParseRejectsMissingProjectName(t *testing.T) {
	raw := []byte(`{"project": {"name": ""}}`)
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestEncodeRoundTrips(t *testing.T) {
	s := Default("widget-factory")
	data, err := s.Encode()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, s.Project.Name, parsed.Project.Name)
	require.Equal(t, s.Pipeline.MaxParallelWorkers, parsed.Pipeline.MaxParallelWorkers)
}
