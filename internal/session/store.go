package session

import (
	"context"
	"log/slog"
	"sync"
)

// Store is the in-memory session table. Every mutation runs under the store
// lock and is mirrored to the repository best-effort; a failed save is
// logged, never surfaced.
//
// Unknown call ids are created on first touch. This is deliberate: after a
// restart loses in-flight state, webhooks for live calls must still land
// somewhere safe. Anyone replacing the snapshot repositories with real
// persistence should revisit this default.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	repo     Repository
	log      *slog.Logger
}

func NewStore(repo Repository, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*Session),
		repo:     repo,
		log:      log,
	}
}

// Load replaces the in-memory table with the last repository snapshot.
// Called once at startup.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	loaded, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Session, len(loaded))
	for id, sess := range loaded {
		cp := sess.Clone()
		cp.CallID = id
		s.sessions[id] = &cp
	}
	s.log.Info("sessions loaded", "count", len(s.sessions))
	return nil
}

// Update applies fn to the session for callID, creating it if unseen, and
// returns a copy of the result. The read-modify-write is one critical
// section; the snapshot save happens inside it so mirrored state never runs
// ahead of memory.
func (s *Store) Update(ctx context.Context, callID string, fn func(*Session)) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[callID]
	if !ok {
		sess = &Session{CallID: callID}
		s.sessions[callID] = sess
		s.log.Info("session created", "call_id", callID)
	}
	fn(sess)
	s.persistLocked(ctx)
	return sess.Clone()
}

// Get returns a copy of the session, if present.
func (s *Store) Get(callID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if !ok {
		return Session{}, false
	}
	return sess.Clone(), true
}

// Snapshot returns a copy of every session, for the admin surface and the
// repositories.
func (s *Store) Snapshot() map[string]Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Clear drops every session and mirrors the empty table.
func (s *Store) Clear(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sessions)
	s.sessions = make(map[string]*Session)
	s.persistLocked(ctx)
	return n
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) snapshotLocked() map[string]Session {
	out := make(map[string]Session, len(s.sessions))
	for id, sess := range s.sessions {
		out[id] = sess.Clone()
	}
	return out
}

func (s *Store) persistLocked(ctx context.Context) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(ctx, s.snapshotLocked()); err != nil {
		s.log.Error("session snapshot save failed", "err", err)
	}
}
