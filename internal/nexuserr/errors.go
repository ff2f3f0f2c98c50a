// Package nexuserr collects the sentinel errors shared across components so
// callers can distinguish failure modes with errors.Is/errors.As instead of
// matching on message strings.
package nexuserr

import "errors"

var (
	// ErrMissingIndex is returned by the context packet builder when the
	// codebase indexer has not yet written module or dependency maps for an
	// existing (non brand-new) project.
	ErrMissingIndex = errors.New("nexus: codebase index not yet available")

	// ErrUndeclaredWrite names a worker write to a file outside its task's
	// declared-files list. Rung 1 of the verification ladder reports such
	// writes as gaps; no function in this module returns this error.
	ErrUndeclaredWrite = errors.New("nexus: undeclared write outside declared files")

	// ErrSpotCheckFailed names a completion the worker did not produce: a
	// declared file is missing, or the version-control diff against the
	// pre-run ref is empty. The spot-check reports this as a false result
	// and the scheduler marks the task blocked; no function in this module
	// returns this error.
	ErrSpotCheckFailed = errors.New("nexus: spot-check failed")

	// ErrThreeConsecutiveFailures marks a task that has exhausted its three
	// auto-dispatch attempts and now requires human confirmation.
	ErrThreeConsecutiveFailures = errors.New("nexus: three consecutive failures, escalating")

	// ErrWaveFileConflict is returned when two tasks in the same wave share
	// a declared file, violating the wave file-disjointness invariant.
	ErrWaveFileConflict = errors.New("nexus: two tasks in the same wave share a declared file")

	// ErrDependencyCycle names a dependency cycle in the task graph. No
	// function in this module returns it: graph.New reports any cycle as
	// ErrDependencyNotMonotonic, since a cycle always contains a dependency
	// whose wave is not strictly earlier.
	ErrDependencyCycle = errors.New("nexus: dependency cycle detected")

	// ErrDependencyNotMonotonic is returned when a task depends on another
	// task in the same or a later wave.
	ErrDependencyNotMonotonic = errors.New("nexus: dependency wave is not strictly earlier")

	// ErrWorkspaceAbsent is returned by every Store operation except
	// Initialise when the workspace root does not yet exist on disk.
	ErrWorkspaceAbsent = errors.New("nexus: workspace not initialised")

	// ErrCheckpointNotFound is returned by recover when the requested
	// checkpoint id is not present in the checkpoint directory.
	ErrCheckpointNotFound = errors.New("nexus: checkpoint not found")

	// ErrUnbalancedTags is returned by the worker-protocol parser when the
	// subprocess stream ends with an open tag never closed.
	ErrUnbalancedTags = errors.New("nexus: unbalanced worker protocol tags")

	// ErrWorkerCrash is returned when a worker subprocess exits without
	// emitting a terminal message.
	ErrWorkerCrash = errors.New("nexus: worker exited without a terminal message")

	// ErrWorkerTimeout is returned when a worker subprocess exceeds its
	// wall-clock budget.
	ErrWorkerTimeout = errors.New("nexus: worker exceeded its time budget")
)
