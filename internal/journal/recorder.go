package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/voxline-ai/voxline-core/internal/bus"
	"github.com/voxline-ai/voxline-core/internal/protocol"
)

// Recorder subscribes to call lifecycle subjects on the bus and writes
// them into the journal. It is the only consumer the journal needs in
// process; external tooling can subscribe to the same subjects.
type Recorder struct {
	journal *Journal
	log     *slog.Logger
	subs    []*nats.Subscription
}

// NewRecorder wires the journal to the bus. A nil client (bus disabled)
// yields an inert recorder.
func NewRecorder(client *bus.Client, j *Journal, logger *slog.Logger) (*Recorder, error) {
	r := &Recorder{journal: j, log: logger.With(slog.String("component", "journal"))}
	if client == nil || client.Conn() == nil {
		return r, nil
	}

	conn := client.Conn()
	started, err := conn.Subscribe(protocol.SubjectCallStarted, r.onCallStarted)
	if err != nil {
		return nil, err
	}
	r.subs = append(r.subs, started)

	transcript, err := conn.Subscribe(protocol.SubjectCallTranscript, r.onTranscript)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.subs = append(r.subs, transcript)

	ended, err := conn.Subscribe(protocol.SubjectCallEnded, r.onCallEnded)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.subs = append(r.subs, ended)

	return r, nil
}

// Close drains the subscriptions.
func (r *Recorder) Close() {
	for _, sub := range r.subs {
		_ = sub.Unsubscribe()
	}
	r.subs = nil
}

func (r *Recorder) onCallStarted(msg *nats.Msg) {
	var evt protocol.CallStarted
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		r.log.Warn("bad call.started payload", slog.String("error", err.Error()))
		return
	}
	ctx, cancel := r.writeContext()
	defer cancel()
	if err := r.journal.CallStarted(ctx, evt.CallID, evt.StreamID, evt.Timestamp); err != nil {
		r.log.Warn("record call start failed", slog.String("error", err.Error()))
	}
}

func (r *Recorder) onTranscript(msg *nats.Msg) {
	var evt protocol.TranscriptLine
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		r.log.Warn("bad call.transcript payload", slog.String("error", err.Error()))
		return
	}
	ctx, cancel := r.writeContext()
	defer cancel()
	if err := r.journal.AppendLine(ctx, evt.CallID, evt.Role, evt.Text, evt.Timestamp); err != nil {
		r.log.Warn("record transcript failed", slog.String("error", err.Error()))
	}
}

func (r *Recorder) onCallEnded(msg *nats.Msg) {
	var evt protocol.CallEnded
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		r.log.Warn("bad call.ended payload", slog.String("error", err.Error()))
		return
	}
	ctx, cancel := r.writeContext()
	defer cancel()
	if err := r.journal.CallEnded(ctx, evt.CallID, evt.Status, evt.Finished, evt.Timestamp); err != nil {
		r.log.Warn("record call end failed", slog.String("error", err.Error()))
	}
}

func (r *Recorder) writeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
