package scheduler

import (
	"os"
	"path/filepath"

	"github.com/nexuscore/orchestrator/internal/vcs"
)

// VCSSpotChecker implements graph.SpotChecker (and the cheap
// post-completion check of §4.4) against a real version-control repo:
// every declared file must exist on disk, and the diff against the
// recorded pre-run ref must be non-empty.
type VCSSpotChecker struct {
	Repo *vcs.Repo
	Root string
}

// SpotCheck reports whether declaredFiles all exist and the repo has a
// non-empty diff against preRunRef restricted to those paths.
func (c VCSSpotChecker) SpotCheck(preRunRef string, declaredFiles []string) (bool, error) {
	for _, rel := range declaredFiles {
		if _, err := os.Stat(filepath.Join(c.Root, rel)); err != nil {
			return false, nil
		}
	}
	if preRunRef == "" {
		return len(declaredFiles) == 0, nil
	}
	return c.Repo.DiffNonEmpty(preRunRef, declaredFiles...)
}
