package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use. Nothing
// survives a restart.
type InMemoryStore struct {
	mu           sync.RWMutex
	students     []Student
	sessions     []*Session
	sessionIndex map[string]*Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessionIndex: make(map[string]*Session)}
}

func (s *InMemoryStore) CreateStudent(_ context.Context, in NewStudent) (Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.students {
		if strings.EqualFold(existing.Name, in.Name) {
			return Student{}, ErrDuplicateIdentity
		}
	}
	st := Student{
		ID:              newID(),
		Name:            in.Name,
		Email:           in.Email,
		VoiceProfileRef: in.VoiceProfileRef,
		RegisteredAt:    time.Now().UTC(),
	}
	s.students = append(s.students, st)
	return st, nil
}

func (s *InMemoryStore) FindStudentByName(_ context.Context, name string) (Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.students {
		if strings.EqualFold(st.Name, name) {
			return st, nil
		}
	}
	return Student{}, ErrNotFound
}

func (s *InMemoryStore) GetStudent(_ context.Context, id string) (Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.students {
		if st.ID == id {
			return st, nil
		}
	}
	return Student{}, ErrNotFound
}

func (s *InMemoryStore) ListStudents(_ context.Context) ([]Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Student, len(s.students))
	copy(out, s.students)
	return out, nil
}

func (s *InMemoryStore) CreateSession(_ context.Context, sess Session) (Session, error) {
	sess.ID = newID()
	stored := cloneSession(&sess)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, stored)
	s.sessionIndex[stored.ID] = stored
	return *cloneSession(stored), nil
}

func (s *InMemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessionIndex[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *cloneSession(sess), nil
}

func (s *InMemoryStore) UpdateSession(_ context.Context, id string, update SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessionIndex[id]
	if !ok {
		return ErrNotFound
	}
	update.apply(sess)
	return nil
}

func (s *InMemoryStore) ListSessionsForStudent(_ context.Context, studentID string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Session
	for _, sess := range s.sessions {
		if sess.StudentID == studentID {
			out = append(out, *cloneSession(sess))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListSessions(_ context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *cloneSession(sess))
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

// newID returns a time-ordered UUIDv7; ids minted by one process sort in
// creation order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func cloneSession(s *Session) *Session {
	c := *s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}
