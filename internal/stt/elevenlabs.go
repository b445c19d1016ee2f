package stt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voxline-ai/voxline-core/internal/config"
)

type elevenLabsClient struct {
	callID  string
	cfg     config.STTConfig
	log     *slog.Logger
	conn    *websocket.Conn
	results chan Result
	done    chan struct{}

	mu     sync.Mutex
	ready  bool
	buffer []byte
	closed bool
}

type outboundMessage struct {
	Type        string `json:"type"`
	AudioFormat string `json:"audio_format,omitempty"`
	SampleRate  int    `json:"sample_rate,omitempty"`
	AudioBase64 string `json:"audio_base_64,omitempty"`
}

type inboundMessage struct {
	Type        string `json:"type"`
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
	Error       string `json:"error"`
}

func (m inboundMessage) kind() string {
	if m.Type != "" {
		return m.Type
	}
	return m.MessageType
}

// DialElevenLabs opens the per-call streaming transcription connection.
// The session is configured with the telephony-native encoding so
// inbound frames are forwarded without a transcoding hop.
func DialElevenLabs(callID string, cfg config.STTConfig, logger *slog.Logger) (Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(cfg.DialTimeoutMS) * time.Millisecond,
	}
	header := http.Header{}
	header.Set("xi-api-key", cfg.APIKey)

	conn, _, err := dialer.Dial(cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial transcription service: %w", err)
	}

	c := &elevenLabsClient{
		callID:  callID,
		cfg:     cfg,
		log:     logger.With(slog.String("component", "stt"), slog.String("call_id", callID)),
		conn:    conn,
		results: make(chan Result, 16),
		done:    make(chan struct{}),
	}

	init := outboundMessage{
		Type:        "start_session",
		AudioFormat: cfg.Encoding,
		SampleRate:  cfg.SampleRate,
	}
	if err := conn.WriteJSON(init); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send session init: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// SendAudio accumulates telephony-codec bytes and flushes a fixed-size
// chunk (~100ms) once enough has gathered. Audio arriving before the
// service acknowledged the session is dropped, not queued, so a stalled
// init cannot grow the buffer without bound.
func (c *elevenLabsClient) SendAudio(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.ready {
		return
	}
	c.buffer = append(c.buffer, p...)
	for len(c.buffer) >= c.cfg.FlushBytes {
		chunk := c.buffer[:c.cfg.FlushBytes]
		c.buffer = c.buffer[c.cfg.FlushBytes:]
		msg := outboundMessage{
			Type:        "audio",
			AudioBase64: base64.StdEncoding.EncodeToString(chunk),
		}
		if err := c.conn.WriteJSON(msg); err != nil {
			c.log.Warn("audio flush failed", slog.String("error", err.Error()))
			return
		}
	}
}

func (c *elevenLabsClient) Results() <-chan Result {
	return c.results
}

func (c *elevenLabsClient) readLoop() {
	defer close(c.results)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// Teardown closes the socket out from under us; anything else
			// is a transport error. Either way the call's transcription is
			// over and the relay observes the closed channel.
			select {
			case <-c.done:
			default:
				c.log.Warn("transcription read failed", slog.String("error", err.Error()))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("malformed transcription message dropped", slog.String("error", err.Error()))
			continue
		}

		switch msg.kind() {
		case "session_started":
			c.mu.Lock()
			c.ready = true
			c.mu.Unlock()
			c.log.Info("transcription session started")
		case "partial_transcript", "partialTranscript":
			c.emit(Result{Kind: KindPartial, Text: msg.Text})
		case "committed_transcript", "final_transcript":
			c.emit(Result{Kind: KindCommitted, Text: msg.Text})
		case "error", "capacity_exceeded":
			// Non-fatal: the call keeps running, silence just means the
			// caller has nothing more to say.
			c.log.Warn("transcription service event", slog.String("kind", msg.kind()), slog.String("detail", msg.Error))
		default:
			c.log.Debug("unhandled transcription event", slog.String("kind", msg.kind()))
		}
	}
}

func (c *elevenLabsClient) emit(r Result) {
	select {
	case c.results <- r:
	case <-c.done:
	}
}

// Close force-terminates the connection without a close handshake so the
// remote session is released immediately.
func (c *elevenLabsClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	return c.conn.Close()
}
