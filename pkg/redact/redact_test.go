package redact

import (
	"strings"
	"testing"
)

func TestRedactDisabled(t *testing.T) {
	SetEnabled(false)
	in := "email a@b.com and phone +62 812 3456 7890"
	if got := Text(in); got != in {
		t.Fatalf("expected no redaction, got %q", got)
	}
}

func TestRedactEnabled(t *testing.T) {
	SetEnabled(true)
	in := "email a@b.com and phone +62 812 3456 7890"
	got := Text(in)
	if got == in {
		t.Fatalf("expected redaction")
	}
	if want := "[REDACTED_EMAIL]"; !strings.Contains(got, want) {
		t.Fatalf("expected %q in output", want)
	}
	if want := "[REDACTED_PHONE]"; !strings.Contains(got, want) {
		t.Fatalf("expected %q in output", want)
	}
}

func TestClip(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	got := Clip("call me at 415 555 0100 right now please", 20)
	if !strings.HasPrefix(got, "call me at [REDACTED") {
		t.Fatalf("expected redacted prefix, got %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected clipped suffix, got %q", got)
	}
	if Clip("short", 20) != "short" {
		t.Fatalf("expected short text untouched")
	}
}

func TestRedactCardBeforePhone(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	got := Text("card 4111 1111 1111 1111 on file")
	if !strings.Contains(got, "[REDACTED_CARD]") || strings.Contains(got, "[REDACTED_PHONE]") {
		t.Fatalf("expected card mask, got %q", got)
	}
	if !Enabled() {
		t.Fatalf("expected redaction enabled")
	}
}
