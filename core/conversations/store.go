package conversations

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one appended (role, text) entry. Turns are immutable once stored.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// Session is one stored conversation.
type Session struct {
	ID      string
	Title   string
	Started time.Time
	Turns   []Turn
}

// Store is the persistence boundary the orchestrator writes through. The
// storage format is the implementation's business; the orchestrator only
// appends.
type Store interface {
	NewSession(title string) (string, error)
	AddUserText(sessionID, text string) error
	AddAssistantText(sessionID, text string) error
}

// MemoryStore is a concurrency-safe in-memory Store, the reference
// collaborator used by the composition root and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*Session{}}
}

func (s *MemoryStore) NewSession(title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.sessions[id] = &Session{ID: id, Title: title, Started: time.Now()}
	return id, nil
}

func (s *MemoryStore) AddUserText(sessionID, text string) error {
	return s.appendTurn(sessionID, Turn{Role: RoleUser, Text: text, Timestamp: time.Now()})
}

func (s *MemoryStore) AddAssistantText(sessionID, text string) error {
	return s.appendTurn(sessionID, Turn{Role: RoleAssistant, Text: text, Timestamp: time.Now()})
}

func (s *MemoryStore) appendTurn(sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	session.Turns = append(session.Turns, turn)
	return nil
}

// Snapshot returns a deep copy of one session, detached from further
// appends. Returns nil when the session does not exist.
func (s *MemoryStore) Snapshot(sessionID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	snapshot := &Session{}
	if err := copier.CopyWithOption(snapshot, session, copier.Option{DeepCopy: true}); err != nil {
		return nil
	}
	return snapshot
}
