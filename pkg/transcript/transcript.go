// Package transcript records the turns of one call and hands the finished
// transcript to a downstream sink exactly once.
package transcript

import (
	"context"
	"time"
)

// Roles of a turn.
const (
	RoleAI     = "AI"
	RoleCaller = "Caller"
)

// EscalatedMarker is appended as an AI turn when the call ends on escalation.
const EscalatedMarker = "Escalated case"

// Finalize reasons.
const (
	ReasonGoodbye    = "goodbye"
	ReasonEndCall    = "end_call"
	ReasonEscalation = "escalation"
	ReasonStreamStop = "stream_stop"
	ReasonCallEnd    = "call_end"
)

type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Handoff is what a sink receives when a transcript is finalized.
type Handoff struct {
	CallID   string
	StreamID string
	Reason   string
	Turns    []Turn
	EndedAt  time.Time
}

// Escalated reports whether the call ended on an escalation.
func (h Handoff) Escalated() bool {
	if h.Reason == ReasonEscalation {
		return true
	}
	for _, t := range h.Turns {
		if t.Role == RoleAI && t.Text == EscalatedMarker {
			return true
		}
	}
	return false
}

// Sink consumes finalized transcripts.
type Sink interface {
	Deliver(ctx context.Context, h Handoff) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, h Handoff) error

func (f SinkFunc) Deliver(ctx context.Context, h Handoff) error { return f(ctx, h) }
