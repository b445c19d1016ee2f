package protocol

import "time"

// StreamMessage is one JSON frame on the telephony media leg, in either
// direction, discriminated by Event.
type StreamMessage struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
}

// StartPayload accompanies the "start" event and binds the media leg to
// its call.
type StartPayload struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid"`
}

// MediaPayload carries base64-encoded telephony-codec audio.
type MediaPayload struct {
	Payload string `json:"payload"`
}

const (
	EventStart = "start"
	EventMedia = "media"
	EventStop  = "stop"
)

// CallStarted is published when a media leg comes up.
type CallStarted struct {
	CallID    string    `json:"call_id"`
	StreamID  string    `json:"stream_id"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptLine is one committed conversational turn, user or agent.
type TranscriptLine struct {
	CallID    string    `json:"call_id"`
	Role      string    `json:"role"` // user, agent
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CallEnded reports the outcome of a finished or disconnected call.
type CallEnded struct {
	CallID    string    `json:"call_id"`
	Status    string    `json:"status"` // unsure, interested, not_interested
	Finished  bool      `json:"finished"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectCallStarted    = "call.started"
	SubjectCallTranscript = "call.transcript"
	SubjectCallEnded      = "call.ended"
)
