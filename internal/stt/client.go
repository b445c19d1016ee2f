// Package stt streams call audio to a remote transcription service and
// surfaces its transcript events.
package stt

// Kind classifies inbound transcript events. Committed events come from
// the provider's own endpointing and are informational only; the turn
// detector is the authoritative turn boundary.
type Kind string

const (
	KindPartial   Kind = "partial"
	KindCommitted Kind = "committed"
)

// Result is one transcript event for the call this client serves.
type Result struct {
	Kind Kind
	Text string
}

// Client is a per-call transcription connection. SendAudio never
// blocks on the network round trip; results arrive asynchronously on
// Results until the connection dies, after which the channel is closed.
// Close tears the connection down immediately.
type Client interface {
	SendAudio(p []byte)
	Results() <-chan Result
	Close() error
}
