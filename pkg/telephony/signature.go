package telephony

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	twilioclient "github.com/twilio/twilio-go/client"
)

const SignatureHeader = "X-Twilio-Signature"

// Validator checks Twilio webhook signatures.
type Validator struct {
	authToken string
	publicURL string
}

func NewValidator(authToken, publicURL string) *Validator {
	return &Validator{authToken: authToken, publicURL: publicURL}
}

// Enabled reports whether an auth token is configured. Without one every
// request is accepted.
func (v *Validator) Enabled() bool {
	return v != nil && v.authToken != ""
}

// ValidateRequest checks the signature header of r. POST bodies are read and
// restored so handlers can still parse the form.
func (v *Validator) ValidateRequest(r *http.Request) bool {
	if !v.Enabled() {
		return true
	}
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return false
	}
	validator := twilioclient.NewRequestValidator(v.authToken)
	url := v.RequestURL(r)
	if r.Method != http.MethodPost || r.Body == nil {
		return validator.Validate(url, map[string]string{}, signature)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return validator.ValidateBody(url, body, signature)
}

// RequestURL reconstructs the URL Twilio signed.
func (v *Validator) RequestURL(r *http.Request) string {
	if v.publicURL != "" {
		base := strings.TrimRight(v.publicURL, "/")
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			base = "https://" + base
		}
		return base + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
