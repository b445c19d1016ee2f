package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxline-ai/voxline-core/internal/bus"
	"github.com/voxline-ai/voxline-core/internal/callctl"
	"github.com/voxline-ai/voxline-core/internal/config"
	"github.com/voxline-ai/voxline-core/internal/dialog"
	"github.com/voxline-ai/voxline-core/internal/journal"
	"github.com/voxline-ai/voxline-core/internal/llm"
	"github.com/voxline-ai/voxline-core/internal/natsserver"
	"github.com/voxline-ai/voxline-core/internal/relay"
	"github.com/voxline-ai/voxline-core/internal/session"
	"github.com/voxline-ai/voxline-core/internal/stt"
	"github.com/voxline-ai/voxline-core/internal/tts"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	bus         *bus.Client
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	// The bus is best effort: calls still run without it, they just
	// leave no events behind.
	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		r.logger.Warn("event bus unavailable, lifecycle events disabled", slog.String("error", err.Error()))
		busClient = nil
	}
	defer busClient.Close()
	r.bus = busClient
	publisher := bus.NewPublisher(busClient, r.logger)

	jnl, err := journal.Open(ctx, r.cfg.Journal, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open call journal: %w", err)
	}
	defer jnl.Close()

	recorder, err := journal.NewRecorder(busClient, jnl, r.logger)
	if err != nil {
		return fmt.Errorf("failed to attach journal recorder: %w", err)
	}
	defer recorder.Close()

	generator, err := r.buildGenerator()
	if err != nil {
		return err
	}
	synth, err := r.buildSynthesizer()
	if err != nil {
		return err
	}
	dialSTT, err := r.buildSTTDialer()
	if err != nil {
		return err
	}

	registry := session.NewRegistry(r.logger)
	detector := session.NewDetector(registry, r.cfg.Turn)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		detector.Run(ctx)
	}()

	handler := relay.NewHandler(r.cfg.Telephony, relay.Options{
		Registry: registry,
		DialSTT:  dialSTT,
		NewPolicy: func(callID string) *dialog.Policy {
			return dialog.NewPolicy(callID, generator, r.cfg.Dialog, r.logger)
		},
		Synth:  synth,
		Calls:  r.buildController(),
		Events: publisher,
	}, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	mux.Handle(r.cfg.Telephony.StreamPath, handler)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("stream_path", r.cfg.Telephony.StreamPath),
		slog.String("stt_mode", r.cfg.STT.Mode),
		slog.String("llm_mode", r.cfg.LLM.Mode),
		slog.String("tts_mode", r.cfg.TTS.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildGenerator() (llm.Generator, error) {
	switch r.cfg.LLM.Mode {
	case "mock":
		return llm.NewMockGenerator(), nil
	case "openrouter":
		return llm.NewOpenRouterGenerator(r.cfg.LLM), nil
	case "ollama":
		return llm.NewOllamaGenerator(r.cfg.LLM), nil
	default:
		return nil, fmt.Errorf("unknown llm mode %q", r.cfg.LLM.Mode)
	}
}

func (r *Runtime) buildSynthesizer() (tts.Synthesizer, error) {
	switch r.cfg.TTS.Mode {
	case "mock":
		return tts.NewMockSynth(r.cfg.TTS.SampleRate), nil
	case "elevenlabs":
		return tts.NewElevenLabsSynth(r.cfg.TTS), nil
	case "exec":
		return tts.NewExecSynth(r.cfg.TTS)
	default:
		return nil, fmt.Errorf("unknown tts mode %q", r.cfg.TTS.Mode)
	}
}

func (r *Runtime) buildSTTDialer() (relay.STTDialer, error) {
	switch r.cfg.STT.Mode {
	case "mock":
		return func(string) (stt.Client, error) {
			return stt.NewMockClient(), nil
		}, nil
	case "elevenlabs":
		return func(callID string) (stt.Client, error) {
			return stt.DialElevenLabs(callID, r.cfg.STT, r.logger)
		}, nil
	default:
		return nil, fmt.Errorf("unknown stt mode %q", r.cfg.STT.Mode)
	}
}

func (r *Runtime) buildController() relay.Controller {
	if r.cfg.Telephony.AccountSID == "" || r.cfg.Telephony.AuthToken == "" {
		r.logger.Info("no telephony credentials, hangup control disabled")
		return callctl.NopController{}
	}
	return callctl.NewTwilioController(r.cfg.Telephony, r.logger)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	// A runtime that came up without a bus stays ready; one that had a
	// bus and lost it does not.
	if r.ready.Load() && (r.bus == nil || r.bus.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
