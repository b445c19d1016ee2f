package tts

import "context"

// Synthesizer converts an utterance into 16-bit little-endian linear
// PCM at the configured telephony sample rate. Implementations are
// stateless request/response wrappers and safe for concurrent use
// unless documented otherwise.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
