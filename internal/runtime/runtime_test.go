package runtime

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxline-ai/voxline-core/internal/bus"
	"github.com/voxline-ai/voxline-core/internal/config"
)

func newTestRuntime(cfg config.Config) *Runtime {
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBuildGeneratorModes(t *testing.T) {
	cfg := config.Default()
	for _, mode := range []string{"mock", "openrouter", "ollama"} {
		cfg.LLM.Mode = mode
		if _, err := newTestRuntime(cfg).buildGenerator(); err != nil {
			t.Fatalf("mode %q: %v", mode, err)
		}
	}
	cfg.LLM.Mode = "nope"
	if _, err := newTestRuntime(cfg).buildGenerator(); err == nil {
		t.Fatal("expected error for unknown llm mode")
	}
}

func TestBuildSynthesizerModes(t *testing.T) {
	cfg := config.Default()
	cfg.TTS.Command = "say --voice test"
	for _, mode := range []string{"mock", "elevenlabs", "exec"} {
		cfg.TTS.Mode = mode
		if _, err := newTestRuntime(cfg).buildSynthesizer(); err != nil {
			t.Fatalf("mode %q: %v", mode, err)
		}
	}
	cfg.TTS.Mode = "nope"
	if _, err := newTestRuntime(cfg).buildSynthesizer(); err == nil {
		t.Fatal("expected error for unknown tts mode")
	}
}

func TestBuildSTTDialerModes(t *testing.T) {
	cfg := config.Default()
	cfg.STT.Mode = "mock"
	dial, err := newTestRuntime(cfg).buildSTTDialer()
	if err != nil {
		t.Fatalf("mock dialer: %v", err)
	}
	client, err := dial("CA1")
	if err != nil {
		t.Fatalf("mock dial: %v", err)
	}
	defer client.Close()

	cfg.STT.Mode = "nope"
	if _, err := newTestRuntime(cfg).buildSTTDialer(); err == nil {
		t.Fatal("expected error for unknown stt mode")
	}
}

func readyStatus(rt *Runtime) int {
	rec := httptest.NewRecorder()
	rt.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return rec.Code
}

func TestReadinessTracksBusHealth(t *testing.T) {
	rt := newTestRuntime(config.Default())

	if readyStatus(rt) != http.StatusServiceUnavailable {
		t.Fatal("expected not ready before startup")
	}

	// Started without a bus: ready.
	rt.ready.Store(true)
	if readyStatus(rt) != http.StatusOK {
		t.Fatal("expected ready without a bus")
	}

	// Started with a bus that is not connected: not ready.
	rt.bus = &bus.Client{}
	if readyStatus(rt) != http.StatusServiceUnavailable {
		t.Fatal("expected not ready with an unhealthy bus")
	}
}

func TestBuildControllerWithoutCredentials(t *testing.T) {
	cfg := config.Default()
	rt := newTestRuntime(cfg)
	if rt.buildController() == nil {
		t.Fatal("expected no-op controller without credentials")
	}
}
