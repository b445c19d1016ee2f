// Package session owns all live per-call state: the registry mapping
// call ids to sessions and the silence-based turn detector that decides
// when a caller has finished speaking.
package session

import (
	"sync"
	"time"

	"github.com/voxline-ai/voxline-core/internal/dialog"
	"github.com/voxline-ai/voxline-core/internal/stt"
)

// Session is the complete live state for one in-progress call. Lifecycle
// fields are mutated only through the registry and the methods below;
// the relay reads Policy and STT but never touches the turn bookkeeping
// directly.
type Session struct {
	CallID    string
	CreatedAt time.Time

	mu         sync.Mutex
	streamID   string
	lastSpeech time.Time
	partial    string
	inFlight   bool
	policy     *dialog.Policy
	sttClient  stt.Client
	onCommit   func(text string)
}

// Bind attaches the per-call collaborators once the media leg has
// started. Called exactly once per session, before any audio flows.
func (s *Session) Bind(streamID string, policy *dialog.Policy, client stt.Client, onCommit func(text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamID = streamID
	s.policy = policy
	s.sttClient = client
	s.onCommit = onCommit
}

func (s *Session) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

func (s *Session) Policy() *dialog.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

func (s *Session) STT() stt.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sttClient
}

// NoteSpeech records transcription activity. A non-empty text replaces
// the buffered partial; an empty one still refreshes the last-speech
// timestamp so ongoing noise defers the silence commit.
func (s *Session) NoteSpeech(text string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSpeech = now
	if text != "" {
		s.partial = text
	}
}

// TryBeginTurn marks the session busy. It reports false when a turn is
// already being processed, in which case the caller must drop the new
// utterance rather than queue it.
func (s *Session) TryBeginTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

func (s *Session) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
}

// takeCommit applies the silence rule at a sweep instant. When the
// session has been quiet past the threshold it clears the speech
// bookkeeping and returns the buffered utterance together with the
// commit callback to invoke; an empty buffer clears silently.
func (s *Session) takeCommit(now time.Time, threshold time.Duration) (string, func(string), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSpeech.IsZero() || now.Sub(s.lastSpeech) <= threshold {
		return "", nil, false
	}
	s.lastSpeech = time.Time{}
	if s.partial == "" {
		return "", nil, false
	}
	text := s.partial
	s.partial = ""
	return text, s.onCommit, s.onCommit != nil
}

// clear drops every reference the session holds so teardown cannot leak
// callbacks or clients across many calls.
func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSpeech = time.Time{}
	s.partial = ""
	s.onCommit = nil
	s.policy = nil
	s.sttClient = nil
}
