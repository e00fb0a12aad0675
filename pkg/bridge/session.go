package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/reliefline/pkg/realtime"
)

// DefaultInstructions is the assistant persona of the relief line.
const DefaultInstructions = `You are the Emergency Relief Bot. Your job is to gather critical details quickly while keeping the user calm. Follow these steps exactly, keeping all responses short, clear, and reassuring:

Ask the user what the emergency is.

Confirm their response briefly, then ask for the location and confirm that as well properly.

If medical, ask about the person's condition. If fire, ask about people in danger. If crime, ask about the suspect.

Confirm each response before moving on. Escalate immediately if severe, (otherwise take in information properly) by saying Escalating Now and hangup.

Once help is on the way, reassure the user and end the conversation unless they need more assistance.

Maintain a composed, natural tone. Keep all responses efficient. Say goodbye once all information is collected.`

// DefaultGreeting is the instruction that makes the assistant speak first.
const DefaultGreeting = "Greet the user with 'Hello there! I am an Emergency Relief Bot. How can I help you today?'"

// SessionOptions configures the AI leg of a call.
type SessionOptions struct {
	Voice                   string
	Instructions            string
	Greeting                string
	AudioFormat             string
	TurnDetection           string
	Temperature             float64
	Modalities              []string
	InputTranscriptionModel string
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Voice:         "alloy",
		Instructions:  DefaultInstructions,
		Greeting:      DefaultGreeting,
		AudioFormat:   realtime.AudioFormatG711ULaw,
		TurnDetection: "server_vad",
		Temperature:   0.8,
		Modalities:    []string{"text", "audio"},
	}
}

func (o SessionOptions) withDefaults() SessionOptions {
	d := DefaultSessionOptions()
	if o.Voice == "" {
		o.Voice = d.Voice
	}
	if o.Instructions == "" {
		o.Instructions = d.Instructions
	}
	if o.Greeting == "" {
		o.Greeting = d.Greeting
	}
	if o.AudioFormat == "" {
		o.AudioFormat = d.AudioFormat
	}
	if o.TurnDetection == "" {
		o.TurnDetection = d.TurnDetection
	}
	if o.Temperature == 0 {
		o.Temperature = d.Temperature
	}
	if len(o.Modalities) == 0 {
		o.Modalities = d.Modalities
	}
	return o
}

// SessionConfig renders the session.update body. Input and output share one
// audio format: the bridge never transcodes.
func (o SessionOptions) SessionConfig() realtime.SessionConfig {
	o = o.withDefaults()
	cfg := realtime.SessionConfig{
		Modalities:        o.Modalities,
		Instructions:      strings.TrimSpace(o.Instructions),
		Voice:             o.Voice,
		InputAudioFormat:  o.AudioFormat,
		OutputAudioFormat: o.AudioFormat,
		TurnDetection:     &realtime.TurnDetection{Type: o.TurnDetection},
		Temperature:       o.Temperature,
	}
	if o.InputTranscriptionModel != "" {
		cfg.InputAudioTranscription = &realtime.TranscriptionConfig{Model: o.InputTranscriptionModel}
	}
	return cfg
}

// InitSession configures the AI leg and asks it to speak first. The AI emits
// no audio until response.create, so the order is fixed.
func InitSession(ctx context.Context, ai AIChannel, opts SessionOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts = opts.withDefaults()
	steps := []realtime.ClientEvent{
		realtime.NewSessionUpdate(opts.SessionConfig()),
		realtime.NewUserText(opts.Greeting),
		realtime.NewResponseCreate(),
	}
	for _, ev := range steps {
		if err := ai.Send(ev); err != nil {
			return fmt.Errorf("init session %s: %w", ev.EventType(), err)
		}
	}
	return nil
}
