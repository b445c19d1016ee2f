package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Telephony.FrameBytes != 160 {
		t.Fatalf("expected 160-byte frames, got %d", cfg.Telephony.FrameBytes)
	}
	if cfg.STT.FlushBytes != 800 {
		t.Fatalf("expected 800-byte flush, got %d", cfg.STT.FlushBytes)
	}
	if cfg.Turn.SilenceThresholdMS != 800 || cfg.Turn.SweepIntervalMS != 300 {
		t.Fatalf("unexpected turn defaults: %+v", cfg.Turn)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXLINE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VOXLINE_BUS_USERNAME", "alice")
	t.Setenv("VOXLINE_BUS_PASSWORD", "secret")
	t.Setenv("VOXLINE_BUS_TLS_INSECURE", "true")
	t.Setenv("VOXLINE_TELEPHONY_STREAM_PATH", "/ws/outbound")
	t.Setenv("VOXLINE_TELEPHONY_END_CALL_DELAY_MS", "5000")
	t.Setenv("VOXLINE_STT_MODE", "elevenlabs")
	t.Setenv("VOXLINE_STT_API_KEY", "xi-key")
	t.Setenv("VOXLINE_STT_FLUSH_BYTES", "1600")
	t.Setenv("VOXLINE_LLM_MODE", "openrouter")
	t.Setenv("VOXLINE_LLM_API_KEY", "or-key")
	t.Setenv("VOXLINE_TTS_MODE", "elevenlabs")
	t.Setenv("VOXLINE_TTS_API_KEY", "xi-key")
	t.Setenv("VOXLINE_TTS_VOICE_ID", "voice-1")
	t.Setenv("VOXLINE_TURN_SILENCE_THRESHOLD_MS", "1200")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Telephony.StreamPath != "/ws/outbound" {
		t.Fatalf("expected stream path override, got %q", cfg.Telephony.StreamPath)
	}
	if cfg.Telephony.EndCallDelayMS != 5000 {
		t.Fatalf("expected end call delay override, got %d", cfg.Telephony.EndCallDelayMS)
	}
	if cfg.STT.Mode != "elevenlabs" || cfg.STT.APIKey != "xi-key" {
		t.Fatalf("expected stt overrides, got %+v", cfg.STT)
	}
	if cfg.STT.FlushBytes != 1600 {
		t.Fatalf("expected flush bytes override, got %d", cfg.STT.FlushBytes)
	}
	if cfg.LLM.Mode != "openrouter" || cfg.LLM.APIKey != "or-key" {
		t.Fatalf("expected llm overrides, got %+v", cfg.LLM)
	}
	if cfg.TTS.VoiceID != "voice-1" {
		t.Fatalf("expected tts voice override, got %q", cfg.TTS.VoiceID)
	}
	if cfg.Turn.SilenceThresholdMS != 1200 {
		t.Fatalf("expected silence threshold override, got %d", cfg.Turn.SilenceThresholdMS)
	}
}

func TestValidateRejectsBadModes(t *testing.T) {
	t.Setenv("VOXLINE_STT_MODE", "whisper")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown stt mode")
	}
}

func TestValidateRejectsTightSilenceThreshold(t *testing.T) {
	t.Setenv("VOXLINE_TURN_SILENCE_THRESHOLD_MS", "200")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when silence threshold <= sweep interval")
	}
}
