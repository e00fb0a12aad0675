package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrInvalidTransition = errors.New("runner: invalid state transition")

type Options struct {
	Drainer      Drainer
	Hooks        Hooks
	DrainTimeout time.Duration
	// Banner receives the startup banner; nil prints none.
	Banner io.Writer
	Title  string
	Logger *slog.Logger
}

// LifecycleRunner starts the hooks, blocks until its context ends or Stop is
// called, then drains within DrainTimeout and runs OnStop exactly once.
type LifecycleRunner struct {
	state    atomic.Int32
	opts     Options
	mu       sync.Mutex
	cancel   context.CancelFunc
	stopped  chan struct{}
	onceStop sync.Once
	stopErr  error
}

func NewLifecycleRunner(opts Options) *LifecycleRunner {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	if opts.Title == "" {
		opts.Title = "RELIEFLINE"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &LifecycleRunner{opts: opts, stopped: make(chan struct{})}
}

func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return ErrInvalidTransition
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	PrintBanner(r.opts.Banner, r.opts.Title)
	if r.opts.Hooks.OnStart != nil {
		if err := r.opts.Hooks.OnStart(runCtx); err != nil {
			r.opts.Logger.Error("runner_start_failed", "error", err.Error())
			_ = r.stop()
			return fmt.Errorf("start: %w", err)
		}
	}
	r.state.Store(int32(StateRunning))
	r.opts.Logger.Info("runner_running")
	<-runCtx.Done()
	return r.stop()
}

// Stop ends a running Run and waits for the drain to complete.
func (r *LifecycleRunner) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return r.stop()
	}
	cancel()
	<-r.stopped
	return r.stopErr
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) stop() error {
	r.onceStop.Do(func() {
		defer close(r.stopped)
		r.state.Store(int32(StateDraining))
		r.opts.Logger.Info("runner_draining", "timeout_ms", r.opts.DrainTimeout.Milliseconds())
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.DrainTimeout)
		defer cancel()
		if r.opts.Drainer != nil {
			if err := r.opts.Drainer.Drain(ctx); err != nil {
				r.stopErr = fmt.Errorf("drain: %w", err)
				r.opts.Logger.Warn("runner_drain_incomplete", "error", err.Error())
			}
		}
		if r.opts.Hooks.OnStop != nil {
			r.opts.Hooks.OnStop(ctx)
		}
		r.state.Store(int32(StateStopped))
		r.opts.Logger.Info("runner_stopped")
	})
	<-r.stopped
	return r.stopErr
}
