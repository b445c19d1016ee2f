package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxline-ai/voxline-core/internal/config"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1/text-to-speech"

type elevenLabsSynth struct {
	cfg     config.TTSConfig
	baseURL string
	client  *http.Client
}

// NewElevenLabsSynth builds a Synthesizer backed by the ElevenLabs
// text-to-speech API, requesting raw PCM at the telephony sample rate so
// no resampling is needed before companding.
func NewElevenLabsSynth(cfg config.TTSConfig) Synthesizer {
	return newElevenLabsSynth(cfg, elevenLabsBaseURL)
}

func newElevenLabsSynth(cfg config.TTSConfig, baseURL string) Synthesizer {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &elevenLabsSynth{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type synthRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id,omitempty"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (s *elevenLabsSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload := synthRequest{
		Text:    text,
		ModelID: s.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       s.cfg.Stability,
			SimilarityBoost: s.cfg.SimilarityBoost,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s?output_format=pcm_%d", s.baseURL, s.cfg.VoiceID, s.cfg.SampleRate)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("xi-api-key", s.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/pcm")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("elevenlabs returned status %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return io.ReadAll(resp.Body)
}
