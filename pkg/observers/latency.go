package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/reliefline/pkg/metrics"
)

// LatencyObserver logs how long the caller waits for AI audio: once from
// call start to the greeting, then from each end of caller speech to the
// first audio chunk that follows it.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*latencyTrace
	log    *slog.Logger
}

type latencyTrace struct {
	started    time.Time
	greeted    bool
	speechStop time.Time
	streamID   string
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces: make(map[string]*latencyTrace),
		log:    log.With("component", "latency"),
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	callID := ev.Tags["call_id"]
	if callID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if ev.Name == metrics.EventCallEnded {
		delete(o.traces, callID)
		return
	}
	t := o.traces[callID]
	if t == nil {
		t = &latencyTrace{}
		o.traces[callID] = t
	}
	if sid := ev.Tags["stream_id"]; sid != "" {
		t.streamID = sid
	}
	switch ev.Name {
	case metrics.EventCallStarted:
		t.started = ev.Time
	case metrics.EventSpeechStopped:
		t.speechStop = ev.Time
	case metrics.EventAudioOut:
		switch {
		case !t.greeted:
			t.greeted = true
			o.logLatency(callID, t.streamID, "greeting", t.started, ev.Time)
		case !t.speechStop.IsZero():
			o.logLatency(callID, t.streamID, "turn", t.speechStop, ev.Time)
			t.speechStop = time.Time{}
		}
	}
}

// Pending is the number of calls being traced.
func (o *LatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.traces)
}

func (o *LatencyObserver) logLatency(callID, streamID, kind string, from, to time.Time) {
	o.log.Info("latency",
		"call_id", callID,
		"stream_id", streamID,
		"kind", kind,
		"first_audio_ms", durationMs(from, to),
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}

var _ metrics.Observer = (*LatencyObserver)(nil)
