// Package ticket turns a finished call transcript into a stored relief ticket.
package ticket

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/reliefline/pkg/transcript"
)

const StatusPending = "pending"

// Fields are the values the classifier extracts from a transcript.
type Fields struct {
	Name            string   `json:"name" mapstructure:"name"`
	Priority        string   `json:"priority" mapstructure:"priority"`
	Summary         string   `json:"summary" mapstructure:"summary"`
	ServicesNeeded  []string `json:"services_needed" mapstructure:"services_needed"`
	LifeThreatening string   `json:"life_threatening" mapstructure:"life_threatening"`
	TicketType      string   `json:"ticket_type" mapstructure:"ticket_type"`
	SmokeVisibility string   `json:"smoke_visibility" mapstructure:"smoke_visibility"`
	FireVisibility  string   `json:"fire_visibility" mapstructure:"fire_visibility"`
	BreathingIssue  string   `json:"breathing_issue" mapstructure:"breathing_issue"`
	Location        string   `json:"location" mapstructure:"location"`
	HelpForWhom     string   `json:"help_for_whom" mapstructure:"help_for_whom"`
}

// Ticket is one stored record. Classified is false when the classifier
// failed and only the transcript was kept.
type Ticket struct {
	ID         string            `json:"ticket_id"`
	CallID     string            `json:"call_id"`
	StreamID   string            `json:"stream_id,omitempty"`
	CreatedAt  time.Time         `json:"datetime"`
	Status     string            `json:"status"`
	Reason     string            `json:"end_reason"`
	Escalated  bool              `json:"escalated"`
	Classified bool              `json:"classified"`
	Fields     Fields            `json:"fields"`
	Transcript []transcript.Turn `json:"transcript"`
}

// NewID returns "TICKET" followed by 32 hex characters.
func NewID() string {
	return "TICKET" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
