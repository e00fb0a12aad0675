package observers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/reliefline/pkg/metrics"
	"github.com/harunnryd/reliefline/pkg/redact"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusObserverTracksCalls(t *testing.T) {
	p := NewPrometheusObserver(prometheus.NewRegistry())

	p.RecordEvent(metrics.NewEvent(metrics.EventCallStarted, 1, nil))
	p.RecordEvent(metrics.NewEvent(metrics.EventCallStarted, 1, nil))
	p.RecordEvent(metrics.NewEvent(metrics.EventCallEnded, 42, nil))
	p.RecordEvent(metrics.NewEvent(metrics.EventInterruption, 700, nil))
	p.RecordEvent(metrics.NewEvent(metrics.EventCallStatus, 1, map[string]string{"status": "completed"}))

	if got := testutil.ToFloat64(p.activeCalls); got != 1 {
		t.Fatalf("expected 1 active call, got %v", got)
	}
	if got := testutil.ToFloat64(p.events.WithLabelValues(metrics.EventCallStarted)); got != 2 {
		t.Fatalf("expected 2 call_started events, got %v", got)
	}
	if got := testutil.ToFloat64(p.callStatus.WithLabelValues("completed")); got != 1 {
		t.Fatalf("expected completed status counted, got %v", got)
	}

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "reliefline_call_duration_seconds") {
		t.Fatalf("expected call duration histogram in scrape output")
	}
}

func TestMultiObserverFansOut(t *testing.T) {
	a := metrics.NewMemoryObserver()
	b := metrics.NewMemoryObserver()
	m := NewMultiObserver(a, nil, b)
	m.RecordEvent(metrics.NewEvent(metrics.EventMarkAck, 1, nil))
	if a.Count(metrics.EventMarkAck) != 1 || b.Count(metrics.EventMarkAck) != 1 {
		t.Fatalf("expected event on both observers")
	}
}

func TestLoggerObserverWritesSortedTags(t *testing.T) {
	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	NewLoggerObserver(log).RecordEvent(metrics.NewEvent(metrics.EventMarkAck, 1, nil))
	if buf.Len() != 0 {
		t.Fatalf("expected debug events suppressed at info level, got %q", buf.String())
	}

	o := NewLeveledLoggerObserver(log, slog.LevelInfo)
	o.RecordEvent(metrics.NewEvent(metrics.EventInterruption, 700, map[string]string{"stream_id": "MZ1", "item_id": "item_1"}))
	line := buf.String()
	if !strings.Contains(line, "msg=metrics_event") || !strings.Contains(line, "event=interruption") {
		t.Fatalf("unexpected log line %q", line)
	}
	if strings.Index(line, "item_id=") > strings.Index(line, "stream_id=") {
		t.Fatalf("expected tags in key order, got %q", line)
	}
}

func callEvent(name string, at time.Time, callID, streamID string) metrics.MetricsEvent {
	tags := map[string]string{"call_id": callID}
	if streamID != "" {
		tags["stream_id"] = streamID
	}
	return metrics.MetricsEvent{Name: name, Time: at, Value: 1, Tags: tags}
}

func TestTimelineObserverWritesPerCallFile(t *testing.T) {
	redact.SetEnabled(true)
	t.Cleanup(func() { redact.SetEnabled(false) })
	dir := t.TempDir()
	o := NewTimelineObserver(dir)
	now := time.Now()

	o.RecordEvent(callEvent(metrics.EventCallStarted, now, "call/1", ""))
	ev := callEvent(metrics.EventInterruption, now.Add(time.Second), "call/1", "MZ1")
	ev.Tags["reason"] = "barge_in"
	ev.Fields = map[string]any{"note": "reach me at jane@example.com"}
	o.RecordEvent(ev)
	o.RecordEvent(callEvent(metrics.EventCallEnded, now.Add(2*time.Second), "call/1", "MZ1"))
	o.RecordEvent(metrics.NewEvent(metrics.EventCallStatus, 1, map[string]string{"status": "completed"}))

	raw, err := os.ReadFile(filepath.Join(dir, "call_1.jsonl"))
	if err != nil {
		t.Fatalf("read timeline: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 entries, got %d: %s", len(lines), raw)
	}
	var entry timelineEntry
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Event != metrics.EventInterruption || entry.CallID != "call/1" || entry.StreamID != "MZ1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Tags["reason"] != "barge_in" || entry.Tags["call_id"] != "" {
		t.Fatalf("unexpected tags %v", entry.Tags)
	}
	if note, _ := entry.Fields["note"].(string); strings.Contains(note, "jane@example.com") {
		t.Fatalf("expected email redacted, got %q", note)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("events without a call must not create files, got %d files", len(entries))
	}
	if len(o.files) != 0 {
		t.Fatalf("expected file closed on call end")
	}
	if err := o.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestLatencyObserverLogsGreetingAndTurn(t *testing.T) {
	var buf bytes.Buffer
	o := NewLatencyObserver(slog.New(slog.NewJSONHandler(&buf, nil)))
	start := time.Now()

	o.RecordEvent(callEvent(metrics.EventCallStarted, start, "c1", ""))
	o.RecordEvent(callEvent(metrics.EventAudioOut, start.Add(800*time.Millisecond), "c1", "MZ1"))
	o.RecordEvent(callEvent(metrics.EventAudioOut, start.Add(900*time.Millisecond), "c1", "MZ1"))
	o.RecordEvent(callEvent(metrics.EventSpeechStopped, start.Add(5*time.Second), "c1", "MZ1"))
	o.RecordEvent(callEvent(metrics.EventAudioOut, start.Add(5600*time.Millisecond), "c1", "MZ1"))
	o.RecordEvent(callEvent(metrics.EventAudioOut, start.Add(5700*time.Millisecond), "c1", "MZ1"))

	type line struct {
		Kind     string `json:"kind"`
		CallID   string `json:"call_id"`
		StreamID string `json:"stream_id"`
		Ms       int64  `json:"first_audio_ms"`
	}
	var got []line
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var l line
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			t.Fatalf("unmarshal %q: %v", raw, err)
		}
		got = append(got, l)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 latency lines, got %d: %s", len(got), buf.String())
	}
	if got[0].Kind != "greeting" || got[0].Ms != 800 || got[0].StreamID != "MZ1" {
		t.Fatalf("unexpected greeting line %+v", got[0])
	}
	if got[1].Kind != "turn" || got[1].Ms != 600 || got[1].CallID != "c1" {
		t.Fatalf("unexpected turn line %+v", got[1])
	}

	o.RecordEvent(callEvent(metrics.EventCallEnded, start.Add(time.Minute), "c1", "MZ1"))
	if o.Pending() != 0 {
		t.Fatalf("expected trace dropped on call end")
	}
}
