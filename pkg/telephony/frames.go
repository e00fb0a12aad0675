// Package telephony speaks the Twilio media-stream protocol: inbound and
// outbound websocket frames, the TwiML that opens a stream, webhook signature
// checks and outbound dialing.
package telephony

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Inbound event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
	EventDTMF      = "dtmf"
)

// Outbound event names.
const (
	EventClear = "clear"
)

// ResponsePartMark names every mark the bridge places after an audio chunk.
const ResponsePartMark = "responsePart"

// Frame is one inbound media-stream message.
type Frame struct {
	Event          string `json:"event"`
	SequenceNumber string `json:"sequenceNumber,omitempty"`
	StreamSID      string `json:"streamSid,omitempty"`
	Start          *Start `json:"start,omitempty"`
	Media          *Media `json:"media,omitempty"`
	Mark           *Mark  `json:"mark,omitempty"`
	Stop           *Stop  `json:"stop,omitempty"`
}

type Start struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	AccountSID       string            `json:"accountSid,omitempty"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type Media struct {
	Track     string    `json:"track,omitempty"`
	Chunk     string    `json:"chunk,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
	Payload   string    `json:"payload"`
}

type Mark struct {
	Name string `json:"name"`
}

type Stop struct {
	CallSID    string `json:"callSid,omitempty"`
	AccountSID string `json:"accountSid,omitempty"`
}

// Timestamp is a media timestamp in milliseconds since stream start.
// Twilio sends it as a decimal string; plain numbers are accepted too.
type Timestamp struct {
	Ms    int64
	Valid bool
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	if raw == "" {
		*t = Timestamp{}
		return nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return fmt.Errorf("telephony: invalid media timestamp %q", raw)
		}
		ms = int64(f)
	}
	*t = Timestamp{Ms: ms, Valid: true}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte(`""`), nil
	}
	return json.Marshal(strconv.FormatInt(t.Ms, 10))
}

// DecodeFrame parses one raw inbound message.
func DecodeFrame(msg []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("telephony: frame without event")
	}
	return f, nil
}

// OutboundFrame is one message sent back to Twilio on the stream.
type OutboundFrame struct {
	Event     string         `json:"event"`
	StreamSID string         `json:"streamSid"`
	Media     *OutboundMedia `json:"media,omitempty"`
	Mark      *Mark          `json:"mark,omitempty"`
}

type OutboundMedia struct {
	Payload string `json:"payload"`
}

// MediaFrame carries a base64 audio payload to the caller, unchanged.
func MediaFrame(streamSID, payload string) OutboundFrame {
	return OutboundFrame{Event: EventMedia, StreamSID: streamSID, Media: &OutboundMedia{Payload: payload}}
}

// MarkFrame asks Twilio to echo name back once playback reaches this point.
func MarkFrame(streamSID, name string) OutboundFrame {
	return OutboundFrame{Event: EventMark, StreamSID: streamSID, Mark: &Mark{Name: name}}
}

// ClearFrame discards audio buffered on Twilio's side.
func ClearFrame(streamSID string) OutboundFrame {
	return OutboundFrame{Event: EventClear, StreamSID: streamSID}
}
