package server

import (
	"context"
	"fmt"
	"sync"

	"reportmate/internal/domain"
	"reportmate/internal/draft"
	"reportmate/internal/service"
)

type sessionEntry struct {
	sess  service.RetrievalSession
	docs  []domain.SourceDocument
	draft *draft.Draft

	// update serialises rebuilds and deletion of one session.
	update *sync.Mutex
}

// sessionStore keeps retrieval sessions by ID for the lifetime of the process.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*sessionEntry)}
}

func (s *sessionStore) get(id string) (sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return sessionEntry{}, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	return *e, nil
}

// hold returns the entry with a reference taken on its index, so a
// concurrent update cannot drop the index while the caller uses it. The
// reference is taken under the store lock; release gives it back.
func (s *sessionStore) hold(ctx context.Context, id string, eng *service.Engine) (sessionEntry, func(), error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return sessionEntry{}, nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	entry := *e
	if !eng.Acquire(entry.sess) {
		return entry, func() {}, nil
	}
	return entry, func() { eng.Release(ctx, entry.sess) }, nil
}

func (s *sessionStore) put(sess service.RetrievalSession, docs []domain.SourceDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sess.ID]
	if !ok {
		e = &sessionEntry{update: &sync.Mutex{}}
		s.sessions[sess.ID] = e
	}
	if e.sess.Fingerprint != sess.Fingerprint {
		e.draft = nil
	}
	e.sess = sess
	e.docs = docs
}

func (s *sessionStore) setDraft(id string, d *draft.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		e.draft = d
	}
}

func (s *sessionStore) delete(id string) (sessionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return sessionEntry{}, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	delete(s.sessions, id)
	return *e, nil
}

// drain empties the store and returns what it held.
func (s *sessionStore) drain() []sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sessionEntry, 0, len(s.sessions))
	for id, e := range s.sessions {
		out = append(out, *e)
		delete(s.sessions, id)
	}
	return out
}

func (s *sessionStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
