package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// DialerConfig holds the account credentials and public webhook location.
type DialerConfig struct {
	AccountSID         string
	AuthToken          string
	PublicURL          string
	ServerAddr         string
	VoicePath          string
	StatusCallbackPath string
}

func (c DialerConfig) withDefaults() DialerConfig {
	if c.ServerAddr == "" {
		c.ServerAddr = ":5050"
	}
	if c.VoicePath == "" {
		c.VoicePath = "/incoming-call"
	}
	return c
}

// Dialer places outbound calls through the Twilio REST API. The answered call
// fetches the voice webhook, which connects it to the bridge.
type Dialer struct {
	cfg    DialerConfig
	client callCreator
}

func NewDialer(cfg DialerConfig) *Dialer {
	return &Dialer{cfg: cfg.withDefaults()}
}

// Dial calls to from the number from. An empty url falls back to the
// configured voice webhook. It returns the call SID.
func (d *Dialer) Dial(ctx context.Context, to, from, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(to) == "" || strings.TrimSpace(from) == "" {
		return "", errors.New("to/from required")
	}
	if d.cfg.AccountSID == "" || d.cfg.AuthToken == "" {
		return "", errors.New("missing twilio credentials")
	}
	if url == "" {
		url = d.VoiceWebhookURL()
	}
	client := d.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: d.cfg.AccountSID,
			Password: d.cfg.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(url)
	if cb := d.statusCallbackURL(); cb != "" {
		params.SetStatusCallback(cb)
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}
	resp, err := client.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("twilio create call: %w", err)
	}
	if resp == nil || resp.Sid == nil {
		return "", errors.New("missing call sid")
	}
	return *resp.Sid, nil
}

// VoiceWebhookURL is the URL Twilio fetches when the call is answered.
func (d *Dialer) VoiceWebhookURL() string {
	return d.baseURL() + d.cfg.VoicePath
}

func (d *Dialer) statusCallbackURL() string {
	if d.cfg.StatusCallbackPath == "" || d.cfg.PublicURL == "" {
		return ""
	}
	return d.baseURL() + d.cfg.StatusCallbackPath
}

func (d *Dialer) baseURL() string {
	if d.cfg.PublicURL != "" {
		return "https://" + NormalizePublicURL(d.cfg.PublicURL)
	}
	addr := d.cfg.ServerAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// NormalizeCallStatus folds Twilio call statuses into a small set of values.
// In-flight statuses map to "".
func NormalizeCallStatus(raw string) string {
	r := strings.ToLower(strings.TrimSpace(raw))
	if r == "" {
		return ""
	}
	switch r {
	case "queued", "initiated", "ringing", "in-progress", "inprogress", "answered":
		return ""
	case "completed", "call_ended", "call-ended", "completed_by_user", "hangup":
		return "completed"
	case "busy":
		return "busy"
	case "no_answer", "noanswer", "no-answer":
		return "no_answer"
	case "failed", "error", "canceled", "cancelled", "transport_closed":
		return "failed"
	default:
		return "unknown"
	}
}
