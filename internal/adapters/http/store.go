package http

import (
	"sync"
	"time"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
)

// SessionSummary is the list view of a stored session.
type SessionSummary struct {
	ID         string        `json:"id"`
	Status     domain.Status `json:"status"`
	ImageTag   string        `json:"image_tag,omitempty"`
	Attempts   int           `json:"attempts"`
	MaxRetries int           `json:"max_retries"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
}

// SessionStore keeps the most recent sessions in memory. Running sessions are
// never evicted; once the store holds more than limit entries the oldest
// terminal sessions are dropped.
type SessionStore struct {
	mu       sync.RWMutex
	limit    int
	order    []string
	sessions map[string]*domain.Session
}

// NewSessionStore creates a store holding at most limit finished sessions.
func NewSessionStore(limit int) *SessionStore {
	if limit < 1 {
		limit = 1
	}
	return &SessionStore{limit: limit, sessions: make(map[string]*domain.Session)}
}

// Begin registers a running session so it can be polled while in flight.
func (s *SessionStore) Begin(id, imageTag string, maxRetries int, startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		s.order = append(s.order, id)
	}
	s.sessions[id] = &domain.Session{
		ID:         id,
		Status:     domain.StatusRunning,
		MaxRetries: maxRetries,
		ImageTag:   imageTag,
		Attempts:   []domain.AttemptRecord{},
		StartedAt:  startedAt,
	}
}

// AppendAttempt adds a finished attempt to a running session.
func (s *SessionStore) AppendAttempt(id string, rec domain.AttemptRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok && !sess.Status.Terminal() {
		sess.Attempts = append(sess.Attempts, rec)
	}
}

// Put stores a terminal session, replacing its running entry.
func (s *SessionStore) Put(sess *domain.Session) {
	if sess == nil {
		return
	}
	cp := clone(sess)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[cp.ID]; !ok {
		s.order = append(s.order, cp.ID)
	}
	s.sessions[cp.ID] = cp
	s.evict()
}

// evict drops the oldest terminal sessions above the limit. Callers hold mu.
func (s *SessionStore) evict() {
	excess := len(s.order) - s.limit
	if excess <= 0 {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if excess > 0 && s.sessions[id].Status.Terminal() {
			delete(s.sessions, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Get returns a copy of the session with the given id.
func (s *SessionStore) Get(id string) (*domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return clone(sess), true
}

// List returns summaries, newest first.
func (s *SessionStore) List() []SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionSummary, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		sess := s.sessions[s.order[i]]
		out = append(out, SessionSummary{
			ID:         sess.ID,
			Status:     sess.Status,
			ImageTag:   sess.ImageTag,
			Attempts:   len(sess.Attempts),
			MaxRetries: sess.MaxRetries,
			StartedAt:  sess.StartedAt,
			FinishedAt: sess.FinishedAt,
		})
	}
	return out
}

// Len reports the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// clone copies the session and its attempt slice. Attempt records are final
// once appended, so their own slices are shared.
func clone(sess *domain.Session) *domain.Session {
	cp := *sess
	cp.Attempts = make([]domain.AttemptRecord, len(sess.Attempts))
	copy(cp.Attempts, sess.Attempts)
	if sess.Failure != nil {
		f := *sess.Failure
		cp.Failure = &f
	}
	return &cp
}
