package transcript

import "strings"

// Termination is the outcome of scanning one AI utterance for call-ending phrases.
type Termination int

const (
	TerminationNone Termination = iota
	TerminationGoodbye
	TerminationEndCall
	TerminationEscalation
)

func (t Termination) String() string {
	switch t {
	case TerminationGoodbye:
		return ReasonGoodbye
	case TerminationEndCall:
		return ReasonEndCall
	case TerminationEscalation:
		return ReasonEscalation
	default:
		return "none"
	}
}

// Ends reports whether the call transcript should be finalized.
func (t Termination) Ends() bool { return t != TerminationNone }

// Classify matches the AI's own wording against the phrases the assistant is
// instructed to use when it wraps up. Escalation wins over the others.
func Classify(text string) Termination {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "escalating now"):
		return TerminationEscalation
	case strings.Contains(lower, "end this call"):
		return TerminationEndCall
	case strings.Contains(lower, "goodbye"):
		return TerminationGoodbye
	default:
		return TerminationNone
	}
}
