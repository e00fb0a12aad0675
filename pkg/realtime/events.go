// Package realtime is a minimal client for the OpenAI realtime websocket API.
// It covers the events a telephony bridge needs: session configuration,
// conversation seeding, audio append, truncation and the server events that
// carry audio, transcripts and voice-activity signals.
package realtime

import (
	"github.com/google/uuid"
)

// Client event types (sent from client to server).
const (
	EventTypeSessionUpdate            = "session.update"
	EventTypeInputAudioBufferAppend   = "input_audio_buffer.append"
	EventTypeConversationItemCreate   = "conversation.item.create"
	EventTypeConversationItemTruncate = "conversation.item.truncate"
	EventTypeResponseCreate           = "response.create"
	EventTypeResponseCancel           = "response.cancel"
)

// Server event types (sent from server to client).
const (
	EventTypeError                       = "error"
	EventTypeSessionCreated              = "session.created"
	EventTypeSessionUpdated              = "session.updated"
	EventTypeResponseDone                = "response.done"
	EventTypeResponseAudioDelta          = "response.audio.delta"
	EventTypeResponseAudioDone           = "response.audio.done"
	EventTypeInputAudioBufferSpeechStart = "input_audio_buffer.speech_started"
	EventTypeInputAudioBufferSpeechStop  = "input_audio_buffer.speech_stopped"
	EventTypeInputAudioBufferCommitted   = "input_audio_buffer.committed"
	EventTypeInputAudioTranscriptionDone = "conversation.item.input_audio_transcription.completed"
	EventTypeConversationItemTruncated   = "conversation.item.truncated"
	EventTypeRateLimitsUpdated           = "rate_limits.updated"
)

// Audio formats accepted by the realtime API.
const (
	AudioFormatPCM16    = "pcm16"
	AudioFormatG711ULaw = "g711_ulaw"
	AudioFormatG711ALaw = "g711_alaw"
)

// ClientEvent is anything that can be sent to the realtime API.
type ClientEvent interface {
	EventType() string
}

// SessionConfig is the session body of a session.update event.
type SessionConfig struct {
	Modalities              []string             `json:"modalities,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitempty"`
	Temperature             float64              `json:"temperature,omitempty"`
}

type TranscriptionConfig struct {
	Model string `json:"model"`
}

type TurnDetection struct {
	Type string `json:"type"`
}

type SessionUpdate struct {
	EventID string        `json:"event_id,omitempty"`
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

func (e SessionUpdate) EventType() string { return e.Type }

// NewSessionUpdate builds a session.update event.
func NewSessionUpdate(cfg SessionConfig) SessionUpdate {
	return SessionUpdate{EventID: newEventID(), Type: EventTypeSessionUpdate, Session: cfg}
}

// InputAudioAppend forwards base64 audio, untouched, into the input buffer.
type InputAudioAppend struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}

func (e InputAudioAppend) EventType() string { return e.Type }

func NewInputAudioAppend(payload string) InputAudioAppend {
	return InputAudioAppend{Type: EventTypeInputAudioBufferAppend, Audio: payload}
}

// ContentPart is one part of a conversation item, in either direction.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// Item is a conversation item.
type Item struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Status  string        `json:"status,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

type ConversationItemCreate struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
	Item    Item   `json:"item"`
}

func (e ConversationItemCreate) EventType() string { return e.Type }

// NewUserText builds a conversation.item.create carrying a user-role text message.
func NewUserText(text string) ConversationItemCreate {
	return ConversationItemCreate{
		EventID: newEventID(),
		Type:    EventTypeConversationItemCreate,
		Item: Item{
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

type ResponseCreate struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

func (e ResponseCreate) EventType() string { return e.Type }

func NewResponseCreate() ResponseCreate {
	return ResponseCreate{EventID: newEventID(), Type: EventTypeResponseCreate}
}

// ItemTruncate tells the server how much of an assistant item was actually heard.
type ItemTruncate struct {
	EventID      string `json:"event_id,omitempty"`
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int64  `json:"audio_end_ms"`
}

func (e ItemTruncate) EventType() string { return e.Type }

func NewItemTruncate(itemID string, contentIndex int, audioEndMs int64) ItemTruncate {
	if audioEndMs < 0 {
		audioEndMs = 0
	}
	return ItemTruncate{
		EventID:      newEventID(),
		Type:         EventTypeConversationItemTruncate,
		ItemID:       itemID,
		ContentIndex: contentIndex,
		AudioEndMs:   audioEndMs,
	}
}

// ServerEvent is a decoded server event. Only the fields the bridge reads are mapped.
type ServerEvent struct {
	Type         string    `json:"type"`
	EventID      string    `json:"event_id,omitempty"`
	ItemID       string    `json:"item_id,omitempty"`
	ResponseID   string    `json:"response_id,omitempty"`
	Delta        string    `json:"delta,omitempty"`
	Transcript   string    `json:"transcript,omitempty"`
	AudioStartMs int64     `json:"audio_start_ms,omitempty"`
	Response     *Response `json:"response,omitempty"`
	Error        *APIError `json:"error,omitempty"`

	Raw []byte `json:"-"`
}

// Response is the body of response.done.
type Response struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output []Item `json:"output"`
}

// FirstTranscript returns the transcript of the first content part of the first
// output item, the shape a spoken assistant turn takes.
func (r *Response) FirstTranscript() (string, bool) {
	if r == nil || len(r.Output) == 0 || len(r.Output[0].Content) == 0 {
		return "", false
	}
	t := r.Output[0].Content[0].Transcript
	return t, t != ""
}

// APIError is the payload of an error event.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	EventID string `json:"event_id"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func newEventID() string {
	return "evt_" + uuid.NewString()[:12]
}
