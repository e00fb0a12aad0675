package reliefline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/reliefline/pkg/bridge"
	"github.com/harunnryd/reliefline/pkg/realtime"
	"github.com/harunnryd/reliefline/pkg/transcript"
)

type scriptedAI struct {
	events chan realtime.ServerEvent
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent []string
}

func newScriptedAI(t *testing.T, raw ...string) *scriptedAI {
	t.Helper()
	ai := &scriptedAI{events: make(chan realtime.ServerEvent, len(raw)), closed: make(chan struct{})}
	for _, msg := range raw {
		ev, err := realtime.Decode([]byte(msg))
		if err != nil {
			t.Fatalf("decode %s: %v", msg, err)
		}
		ai.events <- ev
	}
	return ai
}

func (a *scriptedAI) Recv() (realtime.ServerEvent, error) {
	select {
	case ev := <-a.events:
		return ev, nil
	case <-a.closed:
		return realtime.ServerEvent{}, io.EOF
	}
}

func (a *scriptedAI) Send(ev realtime.ClientEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, ev.EventType())
	return nil
}

func (a *scriptedAI) Close() error {
	a.once.Do(func() { close(a.closed) })
	return nil
}

func (a *scriptedAI) sentTypes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...)
}

func testConfig() Config {
	return Config{
		Server:        ServerConfig{Port: 5050, VoicePath: "/incoming-call", StreamPath: "/media-stream", StatusPath: "/status", DrainTimeoutMS: 2000},
		OpenAI:        OpenAIConfig{APIKey: "sk-test", AudioFormat: "g711_ulaw", Voice: "alloy", Temperature: 0.8},
		Ticket:        TicketConfig{InMemory: true, Classifier: VendorConfig{Provider: "none"}},
		Observability: ObservabilityConfig{MetricsEnabled: true, EventBuffer: 64},
	}
}

func TestAppBridgesCallIntoTicket(t *testing.T) {
	ai := newScriptedAI(t,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"item_0","transcript":"My house is flooding"}`,
		`{"type":"response.done","response":{"id":"resp_1","output":[{"id":"item_1","content":[{"type":"audio","transcript":"Help is on the way. Goodbye."}]}]}}`,
	)
	var dialed realtime.Config
	app, err := NewApp(AppOptions{
		Config: testConfig(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Banner: io.Discard,
		DialAI: func(ctx context.Context, cfg realtime.Config) (bridge.AIChannel, error) {
			dialed = cfg
			return ai, nil
		},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer app.Close()

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()
	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/media-stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"event":"start","start":{"streamSid":"MZ1","callSid":"CA1"}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for {
		tickets, err := app.Store().List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(tickets) == 1 {
			tk := tickets[0]
			if tk.Reason != transcript.ReasonGoodbye || tk.Classified || len(tk.Transcript) != 2 {
				t.Fatalf("unexpected ticket %+v", tk)
			}
			if tk.Transcript[0].Role != transcript.RoleCaller || tk.Transcript[1].Role != transcript.RoleAI {
				t.Fatalf("unexpected turn order %+v", tk.Transcript)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ticket never stored")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_ = client.Close()
	drainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := app.Drain(drainCtx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if dialed.APIKey != "sk-test" {
		t.Fatalf("unexpected realtime config %+v", dialed)
	}
	sent := ai.sentTypes()
	if len(sent) < 3 || sent[0] != realtime.EventTypeSessionUpdate || sent[2] != realtime.EventTypeResponseCreate {
		t.Fatalf("unexpected session init %v", sent)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", resp.StatusCode)
	}
}

func TestAppDialFailureEndsCall(t *testing.T) {
	app, err := NewApp(AppOptions{
		Config: testConfig(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Banner: io.Discard,
		DialAI: func(ctx context.Context, cfg realtime.Config) (bridge.AIChannel, error) {
			return nil, io.ErrUnexpectedEOF
		},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer app.Close()
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()
	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/media-stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Fatalf("expected the server to close the stream")
	}
}

func TestNewAppRejectsUnknownClassifier(t *testing.T) {
	cfg := testConfig()
	cfg.Ticket.Classifier.Provider = "mystery"
	if _, err := NewApp(AppOptions{Config: cfg, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}); err == nil {
		t.Fatalf("expected unknown classifier error")
	}
}

func TestAppWritesEventLogs(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Observability.TimelineDir = filepath.Join(dir, "timelines")
	cfg.Observability.JSONLPath = filepath.Join(dir, "events", "events.jsonl")
	cfg.Observability.Latency = true
	cfg.Observability.SampleEvery = 1

	ai := newScriptedAI(t,
		`{"type":"response.audio.delta","item_id":"item_1","delta":"AA=="}`,
		`{"type":"response.done","response":{"id":"resp_1","output":[{"id":"item_1","content":[{"type":"audio","transcript":"Stay safe. Goodbye."}]}]}}`,
	)
	app, err := NewApp(AppOptions{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Banner: io.Discard,
		DialAI: func(ctx context.Context, rc realtime.Config) (bridge.AIChannel, error) {
			return ai, nil
		},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()
	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/media-stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"event":"start","start":{"streamSid":"MZ1","callSid":"CA1"}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		tickets, _ := app.Store().List(context.Background())
		if len(tickets) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ticket never stored")
		}
		time.Sleep(10 * time.Millisecond)
	}
	_ = client.Close()
	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.Drain(drainCtx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	app.Close()

	events, err := os.ReadFile(cfg.Observability.JSONLPath)
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	for _, name := range []string{`"call_started"`, `"call_ended"`, `"MZ1"`} {
		if !strings.Contains(string(events), name) {
			t.Fatalf("event log missing %s: %s", name, events)
		}
	}
	files, err := filepath.Glob(filepath.Join(cfg.Observability.TimelineDir, "*.jsonl"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one call timeline, got %v (%v)", files, err)
	}
	timeline, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read timeline: %v", err)
	}
	if !strings.Contains(string(timeline), `"event":"call_ended"`) {
		t.Fatalf("timeline missing call end: %s", timeline)
	}
}
