package session

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGetOrCreateIsSingletonPerCall(t *testing.T) {
	r := NewRegistry(newLogger())
	a, created := r.GetOrCreate("CA1")
	if !created {
		t.Fatal("expected first lookup to create")
	}
	b, created := r.GetOrCreate("CA1")
	if created {
		t.Fatal("expected second lookup to reuse")
	}
	if a != b {
		t.Fatal("expected the same session instance")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", r.Len())
	}
}

func TestRemoveClearsAllState(t *testing.T) {
	r := NewRegistry(newLogger())
	s, _ := r.GetOrCreate("CA1")
	s.Bind("MS1", nil, nil, func(string) {})
	s.NoteSpeech("hello", time.Now())

	removed := r.Remove("CA1")
	if removed != s {
		t.Fatal("expected removed session returned")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
	if _, ok := r.Get("CA1"); ok {
		t.Fatal("session still resolvable after removal")
	}

	// A sweep after removal must not fire the old callback.
	r.Sweep(time.Now().Add(time.Hour), time.Millisecond)
	if removed.onCommit != nil || removed.partial != "" {
		t.Fatal("removed session retained state")
	}

	if r.Remove("CA1") != nil {
		t.Fatal("removing twice should return nil")
	}
}

func TestSweepCommitsBufferedPartialExactlyOnce(t *testing.T) {
	r := NewRegistry(newLogger())
	s, _ := r.GetOrCreate("CA1")

	var mu sync.Mutex
	var commits []string
	done := make(chan struct{}, 4)
	s.Bind("MS1", nil, nil, func(text string) {
		mu.Lock()
		commits = append(commits, text)
		mu.Unlock()
		done <- struct{}{}
	})

	base := time.Now()
	s.NoteSpeech("I run a small shop", base)

	// Inside the threshold: nothing fires.
	r.Sweep(base.Add(500*time.Millisecond), 800*time.Millisecond)
	// Past the threshold: exactly one commit.
	r.Sweep(base.Add(900*time.Millisecond), 800*time.Millisecond)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("commit callback never fired")
	}
	// A further sweep with no new speech fires nothing.
	r.Sweep(base.Add(2*time.Second), 800*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(commits) != 1 || commits[0] != "I run a small shop" {
		t.Fatalf("unexpected commits: %v", commits)
	}
}

func TestSweepClearsStaleTimestampWithoutFiringOnEmptyBuffer(t *testing.T) {
	r := NewRegistry(newLogger())
	s, _ := r.GetOrCreate("CA1")
	fired := false
	s.Bind("MS1", nil, nil, func(string) { fired = true })

	base := time.Now()
	s.NoteSpeech("", base) // activity but nothing transcribed

	r.Sweep(base.Add(time.Second), 800*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if fired {
		t.Fatal("empty buffer must not produce a turn")
	}
	s.mu.Lock()
	stale := !s.lastSpeech.IsZero()
	s.mu.Unlock()
	if stale {
		t.Fatal("stale timestamp not cleared")
	}
}

func TestTryBeginTurnDropsOverlap(t *testing.T) {
	r := NewRegistry(newLogger())
	s, _ := r.GetOrCreate("CA1")

	if !s.TryBeginTurn() {
		t.Fatal("first turn should begin")
	}
	if s.TryBeginTurn() {
		t.Fatal("overlapping turn must be rejected")
	}
	s.EndTurn()
	if !s.TryBeginTurn() {
		t.Fatal("turn should begin again after EndTurn")
	}
}

func TestConcurrentCallsAreIsolated(t *testing.T) {
	r := NewRegistry(newLogger())
	const calls = 8

	var wg sync.WaitGroup
	commits := make([]string, calls)
	base := time.Now()
	for i := 0; i < calls; i++ {
		i := i
		s, _ := r.GetOrCreate(callID(i))
		wg.Add(1)
		s.Bind("MS", nil, nil, func(text string) {
			commits[i] = text
			wg.Done()
		})
		s.NoteSpeech("utterance-"+callID(i), base)
	}

	r.Sweep(base.Add(time.Second), 800*time.Millisecond)
	waitGroup(t, &wg)

	for i := 0; i < calls; i++ {
		want := "utterance-" + callID(i)
		if commits[i] != want {
			t.Fatalf("call %d got %q, want %q", i, commits[i], want)
		}
	}
}

func callID(i int) string {
	return string(rune('A' + i))
}

func waitGroup(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for commits")
	}
}
