package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/reliefline/pkg/logging"
)

// AsyncSink delivers to inner on its own goroutine so the call never waits
// on classification or storage.
type AsyncSink struct {
	inner   Sink
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewAsyncSink wraps inner. Each delivery runs detached from the caller's
// cancellation, bounded by timeout when positive.
func NewAsyncSink(inner Sink, timeout time.Duration, logger *slog.Logger) *AsyncSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncSink{inner: inner, timeout: timeout, logger: logging.NewComponentLogger(logger, "transcript_sink")}
}

// Deliver always returns nil; failures are logged.
func (a *AsyncSink) Deliver(ctx context.Context, h Handoff) error {
	if a.inner == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("transcript_sink_panic", "call_id", h.CallID, "panic", r)
			}
		}()
		dctx := ctx
		if a.timeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, a.timeout)
			defer cancel()
		}
		if err := a.inner.Deliver(dctx, h); err != nil {
			a.logger.Error("transcript_delivery_failed", "call_id", h.CallID, "reason", h.Reason, "error", err.Error())
		}
	}()
	return nil
}

// Wait blocks until every pending delivery has returned.
func (a *AsyncSink) Wait() {
	a.wg.Wait()
}
