package rag

import "sync"

// ProjectLocks serializes destructive operations per project so an
// ingest and a reset for the same project never interleave. Locks are
// created lazily and never released from the map; project cardinality
// is expected to stay small.
type ProjectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProjectLocks returns an empty lock set.
func NewProjectLocks() *ProjectLocks {
	return &ProjectLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the project's mutex and returns its unlock function.
func (l *ProjectLocks) Lock(projectID string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[projectID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
