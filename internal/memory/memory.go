// Package memory keeps per-project conversation history used to ground
// follow-up questions. History is process-resident: a restart forgets
// every conversation, which callers must treat as acceptable.
package memory

import (
	"sync"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single utterance in a project's conversation.
type Turn struct {
	Role    Role
	Content string
}

// Store holds conversation turns keyed by project ID. All methods are
// safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	turns map[string][]Turn
}

// NewStore returns an empty conversation store.
func NewStore() *Store {
	return &Store{turns: make(map[string][]Turn)}
}

// Append records a turn at the end of the project's history. The full
// history is retained; bounding happens at read time in Recent.
func (s *Store) Append(projectID string, role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[projectID] = append(s.turns[projectID], Turn{Role: role, Content: content})
}

// Recent returns up to limit of the most recent turns, oldest first.
// A non-positive limit returns the whole history. The returned slice
// is a copy and safe to retain.
func (s *Store) Recent(projectID string, limit int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.turns[projectID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Turn, len(all))
	copy(out, all)
	return out
}

// Len reports the number of turns stored for the project.
func (s *Store) Len(projectID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns[projectID])
}

// Clear drops the project's history. Clearing an unknown project is a
// no-op.
func (s *Store) Clear(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, projectID)
}
