package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/reliefline/pkg/metrics"
	"github.com/harunnryd/reliefline/pkg/redact"
)

// TimelineObserver writes each call's events to <dir>/<call_id>.jsonl. A
// call's file is closed when its call_ended event arrives.
type TimelineObserver struct {
	dir   string
	mu    sync.Mutex
	files map[string]*os.File
}

func NewTimelineObserver(dir string) *TimelineObserver {
	return &TimelineObserver{dir: dir, files: make(map[string]*os.File)}
}

type timelineEntry struct {
	Time     time.Time         `json:"time"`
	Event    string            `json:"event"`
	Value    float64           `json:"value"`
	CallID   string            `json:"call_id,omitempty"`
	StreamID string            `json:"stream_id,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Fields   map[string]any    `json:"fields,omitempty"`
}

func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	callID := ev.Tags["call_id"]
	streamID := ev.Tags["stream_id"]
	id := callID
	if id == "" {
		id = streamID
	}
	id = sanitizeID(id)
	if id == "" || strings.TrimSpace(o.dir) == "" {
		return
	}
	entry := timelineEntry{
		Time:     ev.Time.UTC(),
		Event:    ev.Name,
		Value:    ev.Value,
		CallID:   callID,
		StreamID: streamID,
		Tags:     extraTags(ev.Tags),
		Fields:   redactFields(ev.Fields),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	f := o.fileLocked(id)
	if f == nil {
		return
	}
	_, _ = f.Write(append(line, '\n'))
	if ev.Name == metrics.EventCallEnded {
		_ = f.Close()
		delete(o.files, id)
	}
}

// Close closes the files of calls that have not ended.
func (o *TimelineObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var err error
	for _, f := range o.files {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	o.files = make(map[string]*os.File)
	return err
}

func (o *TimelineObserver) fileLocked(id string) *os.File {
	if f := o.files[id]; f != nil {
		return f
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(o.dir, id+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	o.files[id] = f
	return f
}

func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}

// extraTags drops the identity tags already lifted onto the entry.
func extraTags(in map[string]string) map[string]string {
	var out map[string]string
	for k, v := range in {
		if k == "call_id" || k == "stream_id" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(in))
		}
		out[k] = v
	}
	return out
}

func redactFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = redact.Text(s)
			continue
		}
		out[k] = v
	}
	return out
}

var _ metrics.Observer = (*TimelineObserver)(nil)
