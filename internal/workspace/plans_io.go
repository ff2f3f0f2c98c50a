package workspace

import (
	"errors"
	"io/fs"
	"os"
)

// ReadPlan loads and parses the plan document for phase/plan number n.
func (s *Store) ReadPlan(phase string, n int) (Plan, error) {
	data, err := s.read(s.PlanPath(phase, n))
	if err != nil {
		return Plan{}, err
	}
	return ParsePlan(data)
}

// WritePlan atomically persists a rendered plan document.
func (s *Store) WritePlan(phase string, n int, content []byte) error {
	return s.atomicWrite(s.PlanPath(phase, n), content)
}

// WriteVerificationReport atomically persists the VerificationReport
// JSON for phase/plan number n (§4.5 output).
func (s *Store) WriteVerificationReport(phase string, n int, data []byte) error {
	return s.atomicWrite(s.VerificationReportPath(phase, n), data)
}

// WriteSummary atomically persists the UNIFY summary for phase/plan
// number n (§4.8).
func (s *Store) WriteSummary(phase string, n int, data []byte) error {
	return s.atomicWrite(s.SummaryPath(phase, n), data)
}

// WriteHandoff atomically persists the session-continuity handoff file
// (§4.8).
func (s *Store) WriteHandoff(data []byte) error {
	return s.atomicWrite(s.HandoffPath(), data)
}

// ReadRoadmap returns mission/roadmap.md, or nil when no roadmap has
// been written.
func (s *Store) ReadRoadmap() ([]byte, error) {
	data, err := s.read(s.RoadmapPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// AppendArchChanges appends architectural-deviation notes to
// architecture/changes.md, creating it on first use.
func (s *Store) AppendArchChanges(notes []byte) error {
	existing, err := os.ReadFile(s.ArchChangesPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return s.atomicWrite(s.ArchChangesPath(), append(existing, notes...))
}
