package verify

import (
	"testing"

	"github.com/nexuscore/orchestrator/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const callerSource = `package main

import "example.com/app/src/hello"

func main() {
	message := hello.Greet("nexus")
	println(message)
}
`

func TestGoalBackwardPassesWiredArtefact(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/hello.go", substantiveSource)
	writeProjectFile(t, root, "src/main.go", callerSource)

	l := &Ladder{Root: root}
	result := l.runGoalBackward(workspace.MustHaves{
		Truths:    []string{"greeting is returned for a name"},
		Artefacts: []string{"src/hello.go"},
		KeyLinks:  []workspace.KeyLink{{From: "src/main.go", To: "src/hello.go", Via: "Greet"}},
	}, []string{"src/hello.go", "src/main.go"})

	assert.Equal(t, StatusOK, result.Status)
	assert.Empty(t, result.Gaps)
}

func TestGoalBackwardFlagsStubArtefact(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/hello.go", "package hello\n\nfunc Greet(name string) string {\n\treturn \"\"\n}\n")
	writeProjectFile(t, root, "src/main.go", callerSource)

	l := &Ladder{Root: root}
	result := l.runGoalBackward(workspace.MustHaves{
		Truths:    []string{"greeting is returned for a name"},
		Artefacts: []string{"src/hello.go"},
	}, []string{"src/hello.go", "src/main.go"})

	require.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Gaps[0].Why, "stub")
	// The unsupported truth is reported alongside the stub artefact.
	last := result.Gaps[len(result.Gaps)-1]
	assert.Equal(t, "greeting is returned for a name", last.Truth)
}

func TestGoalBackwardFlagsUnwiredArtefact(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/hello.go", substantiveSource)

	l := &Ladder{Root: root}
	result := l.runGoalBackward(workspace.MustHaves{
		Artefacts: []string{"src/hello.go"},
	}, []string{"src/hello.go"})

	require.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Gaps[0].Why, "never imported or called")
}

func TestGoalBackwardFlagsBrokenKeyLink(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/hello.go", substantiveSource)
	writeProjectFile(t, root, "src/main.go", "package main\n\nfunc main() {}\n")

	l := &Ladder{Root: root}
	result := l.runGoalBackward(workspace.MustHaves{
		KeyLinks: []workspace.KeyLink{{From: "src/main.go", To: "src/hello.go", Via: "Greet"}},
	}, nil)

	require.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Gaps[0].Why, `never references "Greet"`)
}

func TestGoalBackwardMissingArtefactReportsMissingFiles(t *testing.T) {
	l := &Ladder{Root: t.TempDir()}
	result := l.runGoalBackward(workspace.MustHaves{
		Artefacts: []string{"src/ghost.go"},
	}, nil)

	require.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, []string{"src/ghost.go"}, result.Gaps[0].MissingFiles)
}

func TestLooksStub(t *testing.T) {
	cases := []struct {
		name    string
		content string
		stub    bool
	}{
		{"throw not implemented", "function f() {\n  throw new Error('not implemented')\n}\n", true},
		{"lone todo", "// TODO: write this\n", true},
		{"sole console log", "function f() {\n  console.log('hi')\n}\n", true},
		{"real code", substantiveSource, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, stubbed := looksStub(tc.content)
			assert.Equal(t, tc.stub, stubbed)
		})
	}
}
