// Package relay bridges a telephony media leg to the speech pipeline:
// inbound codec frames feed the transcription client, committed turns
// run through the dialogue policy, and synthesized replies are paced
// back onto the leg as fixed-size frames.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxline-ai/voxline-core/internal/audio"
	"github.com/voxline-ai/voxline-core/internal/config"
	"github.com/voxline-ai/voxline-core/internal/dialog"
	"github.com/voxline-ai/voxline-core/internal/protocol"
	"github.com/voxline-ai/voxline-core/internal/session"
	"github.com/voxline-ai/voxline-core/internal/stt"
	"github.com/voxline-ai/voxline-core/internal/tts"
)

const turnTimeout = 30 * time.Second

// STTDialer opens the per-call transcription connection.
type STTDialer func(callID string) (stt.Client, error)

// PolicyFactory builds the per-call dialogue policy.
type PolicyFactory func(callID string) *dialog.Policy

// Controller ends a live call through the telephony control plane.
type Controller interface {
	EndCall(ctx context.Context, callID string) error
}

// Events receives call lifecycle and transcript notifications. The
// relay never persists anything itself; collaborators that care about
// records subscribe to these.
type Events interface {
	CallStarted(callID, streamID string)
	Transcript(callID, role, text string)
	CallEnded(callID, status string, finished bool)
}

// Options carries the relay's collaborators.
type Options struct {
	Registry  *session.Registry
	DialSTT   STTDialer
	NewPolicy PolicyFactory
	Synth     tts.Synthesizer
	Calls     Controller
	Events    Events
}

// Handler serves one websocket telephony leg per connection.
type Handler struct {
	cfg      config.TelephonyConfig
	log      *slog.Logger
	opts     Options
	endDelay time.Duration
	upgrader websocket.Upgrader
	tracer   trace.Tracer

	turns        metric.Int64Counter
	turnsDropped metric.Int64Counter
	activeCalls  metric.Int64UpDownCounter
}

func NewHandler(cfg config.TelephonyConfig, opts Options, logger *slog.Logger) *Handler {
	meter := otel.Meter("voxline-core/relay")
	turns, _ := meter.Int64Counter("voxline.relay.turns")
	dropped, _ := meter.Int64Counter("voxline.relay.turns_dropped")
	active, _ := meter.Int64UpDownCounter("voxline.relay.active_calls")

	return &Handler{
		cfg:      cfg,
		log:      logger.With(slog.String("component", "relay")),
		opts:     opts,
		endDelay: time.Duration(cfg.EndCallDelayMS) * time.Millisecond,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		tracer:       otel.Tracer("voxline-core/relay"),
		turns:        turns,
		turnsDropped: dropped,
		activeCalls:  active,
	}
}

type legState int

const (
	legIdle legState = iota
	legStarted
	legStopped
)

// leg is the per-connection state machine over telephony events.
type leg struct {
	h    *Handler
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	state     legState
	callID    string
	streamSid string
	ended     bool
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slogError(err))
		return
	}
	l := &leg{
		h:      h,
		conn:   conn,
		log:    h.log,
		callID: r.URL.Query().Get("callSid"),
	}
	h.log.Info("media leg connected")
	l.serve()
}

func (l *leg) serve() {
	defer l.teardown()
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.log.Info("media leg disconnected", slogError(err))
			return
		}
		var msg protocol.StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed frames are dropped; the leg keeps running.
			l.log.Warn("malformed leg frame dropped", slogError(err))
			continue
		}
		switch msg.Event {
		case protocol.EventStart:
			if err := l.handleStart(msg); err != nil {
				l.log.Error("leg start failed", slogError(err))
				return
			}
		case protocol.EventMedia:
			l.handleMedia(msg)
		case protocol.EventStop:
			return
		default:
			l.log.Debug("unhandled leg event", slog.String("event", msg.Event))
		}
	}
}

func (l *leg) handleStart(msg protocol.StreamMessage) error {
	l.mu.Lock()
	if l.state != legIdle {
		l.mu.Unlock()
		l.log.Warn("duplicate start event rejected")
		return nil
	}
	if msg.Start != nil {
		l.streamSid = msg.Start.StreamSid
		if l.callID == "" {
			l.callID = msg.Start.CallSid
		}
	}
	if l.callID == "" {
		// No id from the control plane or the leg itself; mint one so the
		// session is still addressable for the duration of the stream.
		l.callID = "anon-" + uuid.NewString()
	}
	l.state = legStarted
	callID, streamSid := l.callID, l.streamSid
	l.mu.Unlock()

	l.log = l.h.log.With(slog.String("call_id", callID), slog.String("stream_sid", streamSid))

	sess, created := l.h.opts.Registry.GetOrCreate(callID)
	if !created {
		// Another leg already owns this call. Rejecting here keeps the
		// live session's collaborators bound to exactly one socket.
		l.log.Warn("call already has a live leg, rejecting start")
		l.abandonStart()
		return fmt.Errorf("call %s already has a live leg", callID)
	}

	client, err := l.h.opts.DialSTT(callID)
	if err != nil {
		l.h.opts.Registry.Remove(callID)
		l.abandonStart()
		return err
	}

	policy := l.h.opts.NewPolicy(callID)
	sess.Bind(streamSid, policy, client, l.processTurn)
	go l.consumeTranscripts(client)

	l.h.activeCalls.Add(context.Background(), 1)
	l.h.opts.Events.CallStarted(callID, streamSid)
	l.log.Info("media leg started")

	// Agent speaks first: run the scripted greeting turn.
	go l.processTurn("")
	return nil
}

// abandonStart rewinds a failed start so teardown treats the leg as
// never begun: no gauge decrement, no call.ended, no registry removal.
func (l *leg) abandonStart() {
	l.mu.Lock()
	l.state = legIdle
	l.mu.Unlock()
}

func (l *leg) handleMedia(msg protocol.StreamMessage) {
	l.mu.Lock()
	state, callID := l.state, l.callID
	l.mu.Unlock()
	if state != legStarted {
		l.log.Debug("media before start dropped")
		return
	}
	if msg.Media == nil {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
	if err != nil {
		l.log.Warn("undecodable media payload dropped", slogError(err))
		return
	}
	sess, ok := l.h.opts.Registry.Get(callID)
	if !ok {
		return
	}
	if client := sess.STT(); client != nil {
		client.SendAudio(raw)
	}
}

// consumeTranscripts feeds transcription events into the session's turn
// bookkeeping. Committed events from the provider carry no special
// authority; they refresh the buffer exactly like partials and the
// silence detector decides the actual turn boundary.
func (l *leg) consumeTranscripts(client stt.Client) {
	for result := range client.Results() {
		l.mu.Lock()
		callID := l.callID
		l.mu.Unlock()
		sess, ok := l.h.opts.Registry.Get(callID)
		if !ok {
			return
		}
		sess.NoteSpeech(result.Text, time.Now())
	}
}

// processTurn runs one committed utterance (or the greeting trigger when
// text is empty) through policy, synthesis, and the outbound leg. It is
// the session's commit callback.
func (l *leg) processTurn(text string) {
	l.mu.Lock()
	callID, streamSid := l.callID, l.streamSid
	l.mu.Unlock()

	sess, ok := l.h.opts.Registry.Get(callID)
	if !ok {
		// The call was torn down after the commit fired; discard.
		return
	}
	if !sess.TryBeginTurn() {
		l.h.turnsDropped.Add(context.Background(), 1)
		l.log.Info("utterance dropped, turn already in flight")
		return
	}
	defer sess.EndTurn()

	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()
	ctx, span := l.h.tracer.Start(ctx, "relay.turn",
		trace.WithAttributes(attribute.String("call.id", callID)))
	defer span.End()
	l.h.turns.Add(ctx, 1)

	policy := sess.Policy()
	if policy == nil {
		return
	}
	if text != "" {
		l.h.opts.Events.Transcript(callID, "user", text)
	}

	reply, err := policy.Reply(ctx, text)
	if err != nil {
		// Per-turn failure: the call stays up and the next utterance may
		// recover.
		span.RecordError(err)
		l.log.Warn("reply generation failed", slogError(err))
		return
	}
	if reply == "" {
		return
	}
	l.h.opts.Events.Transcript(callID, "agent", reply)

	pcm, err := l.h.opts.Synth.Synthesize(ctx, reply)
	if err != nil {
		span.RecordError(err)
		l.log.Warn("speech synthesis failed", slogError(err))
		return
	}

	// The session may have been torn down while we waited on synthesis;
	// a stale result must not reach the leg.
	if _, ok := l.h.opts.Registry.Get(callID); !ok {
		l.log.Info("discarding synthesis result for ended call")
		return
	}

	if err := l.writeAudio(streamSid, audio.MuLawEncode(pcm)); err != nil {
		l.log.Warn("leg write failed", slogError(err))
		return
	}

	if policy.Finished() {
		l.finishCall(callID, policy)
	}
}

// writeAudio splits the codec bytes into fixed-size (~20ms) frames and
// writes them in order.
func (l *leg) writeAudio(streamSid string, mulaw []byte) error {
	frameBytes := l.h.cfg.FrameBytes
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	for off := 0; off < len(mulaw); off += frameBytes {
		end := off + frameBytes
		if end > len(mulaw) {
			end = len(mulaw)
		}
		frame := protocol.StreamMessage{
			Event:     protocol.EventMedia,
			StreamSid: streamSid,
			Media: &protocol.MediaPayload{
				Payload: base64.StdEncoding.EncodeToString(mulaw[off:end]),
			},
		}
		if err := l.conn.WriteJSON(frame); err != nil {
			return err
		}
	}
	return nil
}

// finishCall reports the outcome and schedules the hangup far enough
// out for the farewell audio to finish playing.
func (l *leg) finishCall(callID string, policy *dialog.Policy) {
	l.mu.Lock()
	if l.ended {
		l.mu.Unlock()
		return
	}
	l.ended = true
	l.mu.Unlock()

	status := string(policy.Status())
	l.h.opts.Events.CallEnded(callID, status, true)
	l.log.Info("conversation finished", slog.String("status", status))

	time.AfterFunc(l.h.endDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := l.h.opts.Calls.EndCall(ctx, callID); err != nil {
			l.log.Warn("hangup failed", slogError(err))
		}
	})
}

// teardown runs on stop or disconnect. It is the only cancellation
// path: the transcription connection is closed immediately and nothing
// in flight for this call is waited on.
func (l *leg) teardown() {
	l.mu.Lock()
	if l.state == legStopped {
		l.mu.Unlock()
		return
	}
	started := l.state == legStarted
	l.state = legStopped
	callID := l.callID
	ended := l.ended
	l.mu.Unlock()

	defer l.conn.Close()
	if !started {
		return
	}

	var status dialog.Status = dialog.StatusUnsure
	if sess, ok := l.h.opts.Registry.Get(callID); ok {
		if policy := sess.Policy(); policy != nil {
			status = policy.Status()
		}
		if client := sess.STT(); client != nil {
			_ = client.Close()
		}
		l.h.opts.Registry.Remove(callID)
	}

	l.h.activeCalls.Add(context.Background(), -1)
	if !ended {
		l.h.opts.Events.CallEnded(callID, string(status), false)
	}
	l.log.Info("media leg torn down")
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
