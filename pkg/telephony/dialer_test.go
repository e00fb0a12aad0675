package telephony

import (
	"context"
	"errors"
	"testing"

	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type stubCreator struct {
	last *api.CreateCallParams
	sid  string
	err  error
}

func (s *stubCreator) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	s.last = params
	if s.err != nil {
		return nil, s.err
	}
	return &api.ApiV2010Call{Sid: &s.sid}, nil
}

func TestDialerDialUsesDefaults(t *testing.T) {
	stub := &stubCreator{sid: "CA123"}
	d := NewDialer(DialerConfig{
		AccountSID:         "AC1",
		AuthToken:          "token",
		PublicURL:          "https://relief.example.com/",
		StatusCallbackPath: "/status",
	})
	d.client = stub

	sid, err := d.Dial(context.Background(), "+100", "+200", "")
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	if sid != "CA123" {
		t.Fatalf("expected sid CA123, got %s", sid)
	}
	if stub.last == nil || stub.last.To == nil || *stub.last.To != "+100" {
		t.Fatalf("expected To param")
	}
	if stub.last.From == nil || *stub.last.From != "+200" {
		t.Fatalf("expected From param")
	}
	if stub.last.Url == nil || *stub.last.Url != "https://relief.example.com/incoming-call" {
		t.Fatalf("expected default voice url, got %v", stub.last.Url)
	}
	if stub.last.StatusCallback == nil || *stub.last.StatusCallback != "https://relief.example.com/status" {
		t.Fatalf("expected status callback url")
	}
}

func TestDialerDialUsesOverrideURL(t *testing.T) {
	stub := &stubCreator{sid: "CA999"}
	d := NewDialer(DialerConfig{AccountSID: "AC1", AuthToken: "token"})
	d.client = stub

	override := "https://override.example.com/voice"
	if _, err := d.Dial(context.Background(), "+100", "+200", override); err != nil {
		t.Fatalf("dial error: %v", err)
	}
	if stub.last == nil || stub.last.Url == nil || *stub.last.Url != override {
		t.Fatalf("expected override url")
	}
	if stub.last.StatusCallback != nil {
		t.Fatalf("expected no status callback without public url")
	}
}

func TestDialerDialErrors(t *testing.T) {
	d := NewDialer(DialerConfig{})
	if _, err := d.Dial(context.Background(), "+100", "+200", ""); err == nil {
		t.Fatalf("expected missing credentials error")
	}
	d = NewDialer(DialerConfig{AccountSID: "AC1", AuthToken: "token"})
	d.client = &stubCreator{err: errors.New("boom")}
	if _, err := d.Dial(context.Background(), "", "+200", ""); err == nil {
		t.Fatalf("expected to/from error")
	}
	if _, err := d.Dial(context.Background(), "+100", "+200", ""); err == nil {
		t.Fatalf("expected create call error")
	}
}

func TestNormalizeCallStatus(t *testing.T) {
	cases := map[string]string{
		"ringing":    "",
		"completed":  "completed",
		"Busy":       "busy",
		"no-answer":  "no_answer",
		"canceled":   "failed",
		"teleported": "unknown",
		" ":          "",
	}
	for in, want := range cases {
		if got := NormalizeCallStatus(in); got != want {
			t.Fatalf("NormalizeCallStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
