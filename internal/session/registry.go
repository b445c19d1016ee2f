package session

import (
	"log/slog"
	"sync"
	"time"
)

// Registry is the sole owner of live sessions. Cross-call isolation
// comes from keyed lookup; the mutex only guards the map itself, never
// an I/O wait.
type Registry struct {
	log   *slog.Logger
	clock func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		log:      logger.With(slog.String("component", "sessions")),
		clock:    time.Now,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for callID, creating it when absent.
// The second result reports whether a new session was created.
func (r *Registry) GetOrCreate(callID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[callID]; ok {
		return s, false
	}
	s := &Session{CallID: callID, CreatedAt: r.clock()}
	r.sessions[callID] = s
	r.log.Info("session created", slog.String("call_id", callID))
	return s, true
}

func (r *Registry) Get(callID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// Remove tears down the session for callID and returns it, or nil if
// none existed. All per-call state is dropped so long-running processes
// do not accumulate stale calls.
func (r *Registry) Remove(callID string) *Session {
	r.mu.Lock()
	s, ok := r.sessions[callID]
	if ok {
		delete(r.sessions, callID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	s.clear()
	r.log.Info("session removed", slog.String("call_id", callID))
	return s
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep applies the silence rule to every live session at now. Commit
// callbacks run in their own goroutines so a slow turn on one call never
// stalls detection for the others.
func (r *Registry) Sweep(now time.Time, threshold time.Duration) {
	r.mu.Lock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()

	for _, s := range snapshot {
		text, commit, ok := s.takeCommit(now, threshold)
		if !ok {
			continue
		}
		r.log.Debug("utterance committed", slog.String("call_id", s.CallID), slog.Int("chars", len(text)))
		go commit(text)
	}
}
