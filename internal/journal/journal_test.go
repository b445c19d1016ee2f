package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxline-ai/voxline-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.JournalConfig{RetentionMode: "ephemeral"}
	j, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	if err := j.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	// Writes must be silent no-ops.
	if err := j.AppendLine(ctx, "CA1", "user", "hello", time.Time{}); err != nil {
		t.Fatalf("ephemeral append: %v", err)
	}
}

func TestRecordAndQueryCall(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{Path: filepath.Join(tmp, "calls.db"), RetentionMode: "session"}
	j, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	ctx := context.Background()
	callID := "CA123"
	if err := j.CallStarted(ctx, callID, "MZ123", time.Time{}); err != nil {
		t.Fatalf("call started: %v", err)
	}
	if err := j.AppendLine(ctx, callID, "agent", "Hi, this is Alex", time.Time{}); err != nil {
		t.Fatalf("append line: %v", err)
	}
	if err := j.AppendLine(ctx, callID, "user", "tell me more", time.Time{}); err != nil {
		t.Fatalf("append line: %v", err)
	}
	if err := j.CallEnded(ctx, callID, "interested", true, time.Time{}); err != nil {
		t.Fatalf("call ended: %v", err)
	}

	call, err := j.GetCall(ctx, callID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if call.Status != "interested" || !call.Finished {
		t.Fatalf("call = %+v, want interested/finished", call)
	}
	if call.StreamID != "MZ123" {
		t.Fatalf("stream id = %q", call.StreamID)
	}

	lines, err := j.ListTranscript(ctx, callID, 10)
	if err != nil {
		t.Fatalf("list transcript: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Role != "agent" || lines[1].Text != "tell me more" {
		t.Fatalf("unexpected transcript order: %+v", lines)
	}
	if lines[0].ID == "" || lines[0].ID == lines[1].ID {
		t.Fatalf("line ids not unique: %q %q", lines[0].ID, lines[1].ID)
	}
}

func TestPruneByDaysAndCalls(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{Path: filepath.Join(tmp, "calls.db"), RetentionMode: "persistent", RetentionDays: 1, MaxCalls: 1}
	j, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	ctx := context.Background()
	j.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := j.CallStarted(ctx, "CA-old", "MZ-old", time.Time{}); err != nil {
		t.Fatalf("call started: %v", err)
	}
	if err := j.AppendLine(ctx, "CA-old", "user", "hello", time.Time{}); err != nil {
		t.Fatalf("append line: %v", err)
	}

	j.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := j.CallStarted(ctx, "CA-new", "MZ-new", time.Time{}); err != nil {
		t.Fatalf("call started: %v", err)
	}
	if err := j.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	lines, err := j.ListTranscript(ctx, "CA-old", 10)
	if err != nil {
		t.Fatalf("list transcript: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected old call transcript pruned")
	}
	if _, err := j.GetCall(ctx, "CA-new"); err != nil {
		t.Fatalf("new call should survive prune: %v", err)
	}
}
