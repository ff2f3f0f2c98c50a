package graph

// SpotChecker is the minimal capability Resume needs from the Wave
// Scheduler's spot-check logic (declared files exist and the
// version-control diff against the recorded pre-run ref is non-empty),
// kept as a narrow interface so this package does not depend on vcs or the
// filesystem directly.
type SpotChecker interface {
	SpotCheck(preRunRef string, declaredFiles []string) (bool, error)
}

// Resume reconciles any task left in the running state by a previous
// session (§4.4 "Resume"): if its spot-check still passes against the
// recorded pre-run ref it is promoted to completed, otherwise it reverts to
// pending with its failure counter incremented. Every other task keeps its
// recorded status.
func (g *TaskGraph) Resume(checker SpotChecker) error {
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Status != StatusRunning {
			continue
		}
		ok, err := checker.SpotCheck(n.PreRunRef, n.DeclaredFiles)
		if err != nil {
			return err
		}
		if ok {
			n.Status = StatusCompleted
			continue
		}
		if err := g.ResetToPending(id); err != nil {
			return err
		}
	}
	return nil
}
