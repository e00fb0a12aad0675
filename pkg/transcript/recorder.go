package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/reliefline/pkg/logging"
)

// Recorder is the per-call turn buffer. All methods are safe for concurrent use.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	callID   string
	streamID string
	turns    []Turn
}

// NewRecorder returns an empty recorder. A nil sink discards transcripts.
func NewRecorder(callID string, sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sink:   sink,
		callID: callID,
		logger: logging.NewComponentLogger(logger, "transcript"),
		now:    time.Now,
	}
}

func (r *Recorder) SetStreamID(id string) {
	r.mu.Lock()
	r.streamID = id
	r.mu.Unlock()
}

func (r *Recorder) Append(t Turn) {
	r.mu.Lock()
	r.turns = append(r.turns, t)
	r.mu.Unlock()
}

// Snapshot returns a copy of the buffered turns.
func (r *Recorder) Snapshot() []Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Turn(nil), r.turns...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

// Finalize hands the buffered turns to the sink and clears the buffer. An
// empty buffer makes it a no-op, so calling it again after a successful
// finalize does nothing. It reports whether a handoff happened. Sink errors
// are logged, never returned.
func (r *Recorder) Finalize(ctx context.Context, reason string) bool {
	r.mu.Lock()
	if len(r.turns) == 0 {
		r.mu.Unlock()
		return false
	}
	h := Handoff{
		CallID:   r.callID,
		StreamID: r.streamID,
		Reason:   reason,
		Turns:    r.turns,
		EndedAt:  r.now(),
	}
	r.turns = nil
	r.mu.Unlock()

	r.logger.Info("transcript_finalized", "call_id", h.CallID, "stream_id", h.StreamID, "reason", reason, "turns", len(h.Turns))
	if r.sink == nil {
		return true
	}
	if err := r.sink.Deliver(ctx, h); err != nil {
		r.logger.Error("transcript_sink_failed", "call_id", h.CallID, "error", err.Error())
	}
	return true
}
