package state

import (
	"sync"
	"time"

	"telegram-knowledge-bot/internal/domain"
	"telegram-knowledge-bot/internal/domain/model"

	"github.com/rs/zerolog"
)

// SessionStore is the single source of truth for "is this owner currently
// processing". One mutex guards the map so every read-modify-write for an
// owner goes through a single mutation point; holders must never block on
// network calls inside With.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*model.Session
	log      *zerolog.Logger
}

func NewSessionStore(log *zerolog.Logger) *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]*model.Session),
		log:      log,
	}
}

// GetOrCreate returns the owner's session, refreshing its activity time, or
// creates an empty one.
func (s *SessionStore) GetOrCreate(owner int64) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[owner]; ok {
		sess.LastActivityAt = time.Now()
		return sess
	}
	now := time.Now()
	sess := &model.Session{Owner: owner, CreatedAt: now, LastActivityAt: now}
	s.sessions[owner] = sess
	return sess
}

// Get returns the owner's session without refreshing it.
func (s *SessionStore) Get(owner int64) (*model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[owner]
	return sess, ok
}

// Remove tears the owner's session down. Missing sessions are a no-op.
func (s *SessionStore) Remove(owner int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, owner)
}

// StartJob creates a session bound to job, enforcing the one-job-per-owner
// invariant: a second submission while a non-terminal job exists returns
// ErrJobActive and leaves the existing session untouched.
func (s *SessionStore) StartJob(owner int64, job *model.Job) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[owner]; ok && existing.Job != nil && !existing.Job.State.Terminal() {
		existing.LastActivityAt = time.Now()
		return nil, domain.ErrJobActive
	}
	now := time.Now()
	sess := &model.Session{Owner: owner, Job: job, CreatedAt: now, LastActivityAt: now}
	s.sessions[owner] = sess
	return sess, nil
}

// With runs fn on the owner's session under the store lock, refreshing its
// activity time. It returns false when no session exists (e.g. swept while
// the caller was suspended on a network call).
func (s *SessionStore) With(owner int64, fn func(*model.Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[owner]
	if !ok {
		return false
	}
	sess.LastActivityAt = time.Now()
	fn(sess)
	return true
}

// SweepExpired removes every session inactive for longer than ttl and
// returns the evicted sessions so the caller can cancel in-flight work.
// Safe to call concurrently with any other operation; a missing session is
// simply skipped.
func (s *SessionStore) SweepExpired(now time.Time, ttl time.Duration) []*model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []*model.Session
	for owner, sess := range s.sessions {
		if sess.Expired(now, ttl) {
			delete(s.sessions, owner)
			evicted = append(evicted, sess)
		}
	}
	if len(evicted) > 0 {
		s.log.Info().Int("count", len(evicted)).Msg("evicted expired sessions")
	}
	return evicted
}

// SessionView is a read-only projection for the admin API.
type SessionView struct {
	Owner          int64           `json:"owner"`
	JobID          string          `json:"job_id,omitempty"`
	State          model.JobState  `json:"state,omitempty"`
	URL            string          `json:"url,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

// Snapshot copies the current sessions for inspection.
func (s *SessionStore) Snapshot() []SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionView, 0, len(s.sessions))
	for _, sess := range s.sessions {
		v := SessionView{
			Owner:          sess.Owner,
			CreatedAt:      sess.CreatedAt,
			LastActivityAt: sess.LastActivityAt,
		}
		if sess.Job != nil {
			v.JobID = sess.Job.ID
			v.State = sess.Job.State
			v.URL = sess.Job.URL
		}
		out = append(out, v)
	}
	return out
}
