package verify

import (
	"testing"

	"github.com/nexuscore/orchestrator/internal/checks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdversarialBlockerFailsRung(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/config.js",
		"const settings = {\n  apiKey: \"sk_live_abcdef123456\",\n  retries: 3,\n}\nmodule.exports = settings\n")

	l := &Ladder{Root: root}
	result := l.runAdversarial([]string{"src/config.js"})

	require.Equal(t, StatusFailed, result.Status)
	require.NotEmpty(t, result.Gaps)
	assert.Contains(t, result.Gaps[0].Why, "security")
	assert.Equal(t, "src/config.js", result.Gaps[0].File)
	assert.Equal(t, 2, result.Gaps[0].Line)
}

func TestAdversarialWarningsDoNotFailRung(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/service.go",
		"package service\n\n// TODO: tighten retry policy\nfunc Retry() int {\n\treturn 3\n}\n")

	l := &Ladder{Root: root}
	result := l.runAdversarial([]string{"src/service.go"})

	assert.Equal(t, StatusOK, result.Status)
	assert.NotEmpty(t, result.Gaps, "warnings are still recorded as findings")
}

func TestAdversarialFlagsUnhandledEdgeCases(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/parse.go",
		"package parse\n\nimport \"strings\"\n\nfunc Host(addr string) string {\n\treturn strings.Split(addr, \":\")[0]\n}\n\nfunc Bucket(i int, items []string) string {\n\treturn items[i%len(items)]\n}\n")

	l := &Ladder{Root: root}
	result := l.runAdversarial([]string{"src/parse.go"})

	assert.Equal(t, StatusOK, result.Status, "edge-case findings are warnings, not blockers")
	require.NotEmpty(t, result.Gaps)
	categories := make([]string, 0, len(result.Gaps))
	for _, gap := range result.Gaps {
		categories = append(categories, gap.Why)
	}
	assert.Contains(t, categories[0], "unhandled-edge-cases")
	require.Len(t, result.Gaps, 2)
}

func TestAdversarialCleanFileNoFindings(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/hello.go", substantiveSource)

	l := &Ladder{Root: root}
	result := l.runAdversarial([]string{"src/hello.go"})

	assert.Equal(t, StatusOK, result.Status)
	assert.Empty(t, result.Gaps)
}

func TestAdversarialMergesPluginFindings(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/hello.go", substantiveSource)

	plugin := checks.NewPlugin("custom.go", func(files []string) ([]checks.Finding, error) {
		return []checks.Finding{{
			Category:    "project-rule",
			Severity:    checks.SeverityBlocker,
			File:        files[0],
			Description: "greeting must be localised",
		}}, nil
	})

	l := &Ladder{Root: root, Plugins: []checks.Plugin{plugin}}
	result := l.runAdversarial([]string{"src/hello.go"})

	require.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Gaps[0].Why, "project-rule")
}
