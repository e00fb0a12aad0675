// Package runner drives the process lifecycle: banner, start, drain on
// shutdown, stop.
package runner

import (
	"bytes"
	"context"
	"io"

	"github.com/dimiro1/banner"
)

type State int32

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks run around the running phase. OnStart failing aborts Run.
type Hooks struct {
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context)
}

// Drainer lets in-flight work finish before the process stops. ctx carries
// the drain deadline.
type Drainer interface {
	Drain(ctx context.Context) error
}

type DrainFunc func(ctx context.Context) error

func (f DrainFunc) Drain(ctx context.Context) error { return f(ctx) }

var Version = "dev"

// PrintBanner writes the startup banner for title to w.
func PrintBanner(w io.Writer, title string) {
	if w == nil {
		return
	}
	tpl := "{{ .Title \"" + title + "\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(w, true, false, bytes.NewBufferString(tpl))
}
