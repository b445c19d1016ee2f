package bus

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/voxline-ai/voxline-core/internal/protocol"
)

// Publisher fans call lifecycle and transcript events out on the bus.
// External collaborators (persistence, dashboards, follow-up messaging)
// subscribe to these subjects; the voice pipeline itself never blocks on
// them. A nil Publisher is valid and publishes nothing.
type Publisher struct {
	client *Client
	log    *slog.Logger
}

func NewPublisher(client *Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		log:    logger.With(slog.String("component", "events")),
	}
}

func (p *Publisher) CallStarted(callID, streamID string) {
	p.publish(protocol.SubjectCallStarted, protocol.CallStarted{
		CallID:    callID,
		StreamID:  streamID,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) Transcript(callID, role, text string) {
	p.publish(protocol.SubjectCallTranscript, protocol.TranscriptLine{
		CallID:    callID,
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) CallEnded(callID, status string, finished bool) {
	p.publish(protocol.SubjectCallEnded, protocol.CallEnded{
		CallID:    callID,
		Status:    status,
		Finished:  finished,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, payload interface{}) {
	if p == nil || p.client == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Warn("failed to marshal event", slog.String("subject", subject), slog.String("error", err.Error()))
		return
	}
	if err := p.client.Conn().Publish(subject, data); err != nil {
		p.log.Warn("failed to publish event", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
