// Package dialog holds the per-call conversation state machine: it
// tracks history, classifies caller intent, and decides when the call
// is over.
package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/voxline-ai/voxline-core/internal/config"
	"github.com/voxline-ai/voxline-core/internal/llm"
)

// State of a policy. Greeting lasts until the scripted opening line has
// been produced; Finished is terminal.
type State string

const (
	StateGreeting State = "greeting"
	StateActive   State = "active"
	StateFinished State = "finished"
)

// Status is the running classification of the callee, sticky once it
// leaves Unsure.
type Status string

const (
	StatusUnsure        Status = "unsure"
	StatusInterested    Status = "interested"
	StatusNotInterested Status = "not_interested"
)

// Policy drives one call's conversation. All methods are safe for
// concurrent use, though the session layer serializes turns anyway.
type Policy struct {
	callID string
	gen    llm.Generator
	cfg    config.DialogConfig
	log    *slog.Logger

	mu      sync.Mutex
	history []llm.Message
	state   State
	status  Status
}

func NewPolicy(callID string, gen llm.Generator, cfg config.DialogConfig, logger *slog.Logger) *Policy {
	return &Policy{
		callID: callID,
		gen:    gen,
		cfg:    cfg,
		log:    logger.With(slog.String("component", "dialog"), slog.String("call_id", callID)),
		history: []llm.Message{
			{Role: "system", Content: systemPrompt(cfg)},
		},
		state:  StateGreeting,
		status: StatusUnsure,
	}
}

func systemPrompt(cfg config.DialogConfig) string {
	return strings.TrimSpace(fmt.Sprintf(`
You are %s from %s. You are on a PHONE CALL.
STRICT RULES:
- First turn: Greet them, briefly say why you called (%s branding), and ask if they are interested. This MUST be within 3-4 sentences.
- If they are INTERESTED: Say "Great, we will connect you on your email address." and stop.
- If they are NOT INTERESTED: Say "Thanks for talking with us." and stop.
- Never exceed 20 words per response after the greeting.
- Use simple, punchy sentences.
- Speak like a human, not a brochure.`, cfg.AgentName, cfg.Company, cfg.Company))
}

func greetingPrompt(cfg config.DialogConfig) string {
	return fmt.Sprintf("Greet the user as %s from %s, explain you're calling about helping them sell more, and ask if they would be interested in hearing more. Keep it to 3-4 sentences max.", cfg.AgentName, cfg.Company)
}

func classificationPrompt(userText string) string {
	return strings.TrimSpace(fmt.Sprintf(`
Analyze the seller's response: "%s"
Classify into ONE category based on the intent:
- INTERESTED: Positive feedback, agreement, "yes", "go ahead", "tell me more", or general curiosity.
- NOT_INTERESTED: Explicit "No", "not interested", "stop", "busy", "don't call", or "no thanks". Includes repeating "no" like "no, no".
- UNSURE: Confused, neutral, or if the language is not English and intent is unclear.
- GOODBYE: Hanging up, saying "bye", or "have a nice day".

Return ONLY the category word.`, userText))
}

// Reply produces the next agent utterance for a committed user turn. An
// empty userText is the greeting trigger used when the media leg first
// comes up. Once the policy is finished it returns "" for every
// subsequent call and leaves history untouched.
func (p *Policy) Reply(ctx context.Context, userText string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateFinished {
		return "", nil
	}

	if userText == "" {
		return p.greetLocked(ctx)
	}

	// Any real utterance moves the conversation past the greeting, even
	// when the scripted greeting turn itself never went out.
	if p.state == StateGreeting {
		p.state = StateActive
	}

	intent := p.classifyLocked(ctx, userText)

	if p.status == StatusInterested {
		p.state = StateFinished
		return p.cfg.ClosingLine, nil
	}
	if p.status == StatusNotInterested || strings.Contains(intent, "GOODBYE") {
		p.state = StateFinished
		return p.cfg.FarewellLine, nil
	}

	p.history = append(p.history, llm.Message{Role: "user", Content: userText})
	reply, err := p.gen.Generate(ctx, p.history)
	if err != nil {
		// Drop the user turn again so a failed generation leaves no trace
		// and the next utterance starts from a consistent history.
		p.history = p.history[:len(p.history)-1]
		return "", fmt.Errorf("generate reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	p.history = append(p.history, llm.Message{Role: "assistant", Content: reply})
	return reply, nil
}

func (p *Policy) greetLocked(ctx context.Context) (string, error) {
	p.history = append(p.history, llm.Message{Role: "user", Content: greetingPrompt(p.cfg)})
	reply, err := p.gen.Generate(ctx, p.history)
	if err != nil {
		p.history = p.history[:len(p.history)-1]
		return "", fmt.Errorf("generate greeting: %w", err)
	}
	reply = strings.TrimSpace(reply)
	p.history = append(p.history, llm.Message{Role: "assistant", Content: reply})
	p.state = StateActive
	return reply, nil
}

// classifyLocked runs the auxiliary intent classification. It never
// fails: any service error degrades to UNSURE.
func (p *Policy) classifyLocked(ctx context.Context, userText string) string {
	prompt := []llm.Message{{Role: "user", Content: classificationPrompt(userText)}}
	raw, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		p.log.Warn("intent classification failed", slog.String("error", err.Error()))
		return "UNSURE"
	}
	intent := strings.ToUpper(strings.TrimSpace(raw))

	if strings.Contains(intent, "INTERESTED") && !strings.Contains(intent, "NOT") {
		p.status = StatusInterested
	}
	if strings.Contains(intent, "NOT_INTERESTED") {
		p.status = StatusNotInterested
	}
	p.log.Info("intent classified", slog.String("intent", intent), slog.String("status", string(p.status)))
	return intent
}

func (p *Policy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Policy) Finished() bool {
	return p.State() == StateFinished
}

func (p *Policy) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// History returns a copy of the conversation so far, system prompt
// included.
func (p *Policy) History() []llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Message, len(p.history))
	copy(out, p.history)
	return out
}
