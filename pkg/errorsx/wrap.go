package errorsx

import (
	"errors"
	"fmt"
	"log/slog"
)

// Error tags an error with the reason it is logged and counted under.
type Error struct {
	Reason ReasonCode
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with reason. The innermost reason in a chain wins, so
// rewrapping at an outer layer keeps the original classification.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if Reason(err) != ReasonUnknown {
		return err
	}
	return &Error{Reason: reason, Err: err}
}

func Errorf(reason ReasonCode, format string, args ...any) error {
	return &Error{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// Reason returns the reason carried by err, or ReasonUnknown.
func Reason(err error) ReasonCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

// Attr is the reason_code log attribute for err.
func Attr(err error) slog.Attr {
	return slog.String("reason_code", string(Reason(err)))
}
