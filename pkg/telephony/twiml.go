package telephony

import (
	"strings"
)

// ConnectTwiML renders the voice-webhook response that opens a bidirectional
// media stream to wsURL, optionally preceded by a spoken greeting.
func ConnectTwiML(wsURL, greeting string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Response>`)
	if g := strings.TrimSpace(greeting); g != "" {
		b.WriteString(`<Say>` + xmlEscape(g) + `</Say>`)
	}
	b.WriteString(`<Connect><Stream url="` + xmlEscape(wsURL) + `"/></Connect></Response>`)
	return b.String()
}

// StreamURL builds the wss URL of the media-stream endpoint. publicURL wins
// over the request host when set.
func StreamURL(publicURL, host, path string) string {
	if h := NormalizePublicURL(publicURL); h != "" {
		host = h
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "wss://" + host + path
}

// NormalizePublicURL strips the scheme and trailing slashes.
func NormalizePublicURL(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	return strings.TrimRight(v, "/")
}

func xmlEscape(in string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(in)
}
