package tts

import (
	"context"
	"time"
)

type mockSynth struct {
	sampleRate int
	msPerChar  int
}

// NewMockSynth produces silence sized roughly to the utterance, which
// keeps frame pacing and hangup scheduling observable in tests.
func NewMockSynth(sampleRate int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, msPerChar: 50}
}

func (m *mockSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	samples := m.sampleRate * len(text) * m.msPerChar / 1000
	if samples == 0 {
		samples = m.sampleRate / 10
	}
	return make([]byte, samples*2), nil
}
