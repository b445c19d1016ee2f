package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
	"github.com/voxline-ai/voxline-core/internal/config"
)

type execSynth struct {
	cmd        []string
	sampleRate int
	mu         sync.Mutex
}

// NewExecSynth wraps a local command as a Synthesizer. The utterance is
// written to stdin and raw PCM is read from stdout. Used for offline
// development with engines like piper.
func NewExecSynth(cfg config.TTSConfig) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args, sampleRate: cfg.SampleRate}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	args = append(args, fmt.Sprintf("--sample-rate=%d", e.sampleRate))
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader([]byte(text))

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tts command failed: %w", err)
	}
	return out.Bytes(), nil
}
