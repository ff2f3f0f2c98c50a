package workspace

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/nexuscore/orchestrator/internal/graph"
	"gopkg.in/yaml.v3"
)

// ErrMissingFrontMatter mirrors the teacher's front-matter parsing
// contract: a plan document must open with a YAML fence.
var ErrMissingFrontMatter = errors.New("workspace: plan is missing YAML front matter")

// KeyLink asserts a wiring connection a plan promises (§4.5 goal-backward,
// §12 glossary "Must-have").
type KeyLink struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Via  string `yaml:"via"`
}

// MustHaves is the plan's promised, testable surface.
type MustHaves struct {
	Truths    []string  `yaml:"truths"`
	Artefacts []string  `yaml:"artefacts"`
	KeyLinks  []KeyLink `yaml:"key_links"`
}

// PlanFrontMatter is the YAML block at the top of a plan document (§6).
type PlanFrontMatter struct {
	Phase            string    `yaml:"phase"`
	PlanNumber       int       `yaml:"plan_number"`
	Status           string    `yaml:"status"`
	RiskTier         string    `yaml:"risk_tier"`
	TDDMode          string    `yaml:"tdd_mode"`
	ReviewTier       string    `yaml:"review_tier,omitempty"`
	BrowserRequired  bool      `yaml:"browser_required"`
	CheckpointBefore bool      `yaml:"checkpoint_before"`
	WaveCount        int       `yaml:"wave_count"`
	MustHaves        MustHaves `yaml:"must_haves"`
}

// Plan is a parsed plan document: front matter, the embedded task graph,
// and the raw Markdown body (boundaries, acceptance criteria, etc).
type Plan struct {
	FrontMatter PlanFrontMatter
	Tasks       []graph.TaskNode
	Boundaries  []string
	Body        []byte
}

// ParsePlan extracts front matter and body from a plan document, following
// the teacher's front-matter fence convention (`---\n...\n---\n\n<body>`).
func ParsePlan(content []byte) (Plan, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Plan{}, ErrMissingFrontMatter
	}
	rest := normalized[4:]
	parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Plan{}, fmt.Errorf("workspace: malformed plan front matter")
	}

	var doc struct {
		PlanFrontMatter `yaml:",inline"`
		Tasks           []planTaskYAML `yaml:"tasks"`
		Boundaries      []string       `yaml:"boundaries"`
	}
	if err := yaml.Unmarshal(parts[0], &doc); err != nil {
		return Plan{}, fmt.Errorf("workspace: parse plan front matter: %w", err)
	}

	tasks := make([]graph.TaskNode, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		tasks = append(tasks, t.toTaskNode())
	}

	return Plan{
		FrontMatter: doc.PlanFrontMatter,
		Tasks:       tasks,
		Boundaries:  doc.Boundaries,
		Body:        parts[1],
	}, nil
}

type planTaskYAML struct {
	ID                   string   `yaml:"id"`
	Description          string   `yaml:"description"`
	Wave                 int      `yaml:"wave"`
	DependsOn            []string `yaml:"depends_on"`
	FilesModified        []string `yaml:"files_modified"`
	Risk                 string   `yaml:"risk"`
	TDDMode              string   `yaml:"tdd_mode"`
	TDDSkipJustification string   `yaml:"tdd_skip_justification,omitempty"`
	AcceptanceCriteria   []string `yaml:"acceptance_criteria"`
}

func (t planTaskYAML) toTaskNode() graph.TaskNode {
	return graph.TaskNode{
		ID:                   t.ID,
		Description:          t.Description,
		Wave:                 t.Wave,
		DependsOn:            t.DependsOn,
		DeclaredFiles:        t.FilesModified,
		Risk:                 graph.RiskTier(t.Risk),
		TDDMode:              graph.TDDMode(t.TDDMode),
		TDDSkipJustification: t.TDDSkipJustification,
		AcceptanceCriteria:   t.AcceptanceCriteria,
	}
}
