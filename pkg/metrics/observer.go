package metrics

import "time"

// Event names emitted by the bridge, the HTTP surface and the ticket sink.
const (
	EventCallStarted         = "call_started"
	EventCallEnded           = "call_ended"
	EventMediaIn             = "media_in"
	EventAudioOut            = "audio_out"
	EventMarkAck             = "mark_ack"
	EventMarkAckEmpty        = "mark_ack_empty"
	EventSpeechStopped       = "speech_stopped"
	EventInterruption        = "interruption"
	EventTruncateSent        = "truncate_sent"
	EventTranscriptFinalized = "transcript_finalized"
	EventTicketCreated       = "ticket_created"
	EventClassifyFailed      = "classify_failed"
	EventCallStatus          = "call_status"
	EventFrameDropped        = "frame_dropped"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

// NewEvent stamps an event with the current time.
func NewEvent(name string, value float64, tags map[string]string) MetricsEvent {
	return MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags}
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// OrNoop returns obs, or a NoopObserver when obs is nil.
func OrNoop(obs Observer) Observer {
	if obs == nil {
		return NoopObserver{}
	}
	return obs
}
