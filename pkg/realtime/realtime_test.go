package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/reliefline/pkg/errorsx"
)

func TestItemTruncateEncoding(t *testing.T) {
	b, err := json.Marshal(NewItemTruncate("item42", 0, 700))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	_ = json.Unmarshal(b, &got)
	if got["type"] != EventTypeConversationItemTruncate {
		t.Fatalf("unexpected type %v", got["type"])
	}
	if got["item_id"] != "item42" || got["audio_end_ms"] != float64(700) {
		t.Fatalf("unexpected body %v", got)
	}
	if ci, ok := got["content_index"]; !ok || ci != float64(0) {
		t.Fatalf("expected content_index 0 to be encoded, got %v", got)
	}
	if NewItemTruncate("x", 0, -5).AudioEndMs != 0 {
		t.Fatalf("expected negative audio end clamped to 0")
	}
}

func TestUserTextShape(t *testing.T) {
	ev := NewUserText("Greet the user")
	if ev.Item.Role != "user" || ev.Item.Content[0].Type != "input_text" {
		t.Fatalf("unexpected item %+v", ev.Item)
	}
	if !strings.HasPrefix(ev.EventID, "evt_") {
		t.Fatalf("expected evt_ prefix, got %q", ev.EventID)
	}
}

func TestDecodeResponseDoneTranscript(t *testing.T) {
	raw := `{"type":"response.done","response":{"id":"resp_1","status":"completed","output":[{"id":"item_1","type":"message","role":"assistant","content":[{"type":"audio","transcript":"Goodbye and stay safe"}]}]}}`
	ev, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := ev.Response.FirstTranscript()
	if !ok || got != "Goodbye and stay safe" {
		t.Fatalf("unexpected transcript %q %v", got, ok)
	}

	empty := `{"type":"response.done","response":{"id":"resp_2","output":[]}}`
	ev, err = Decode([]byte(empty))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := ev.Response.FirstTranscript(); ok {
		t.Fatalf("expected no transcript for empty output")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not json")); !errorsx.HasReason(err, errorsx.ReasonRealtimeDecode) {
		t.Fatalf("expected decode reason, got %v", err)
	}
	if _, err := Decode([]byte(`{"delta":"abc"}`)); !errorsx.HasReason(err, errorsx.ReasonRealtimeDecode) {
		t.Fatalf("expected decode reason for missing type, got %v", err)
	}
}

func TestDialSendsHeadersAndRoundTrips(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization") + "|" + r.Header.Get("OpenAI-Beta") + "|" + r.URL.Query().Get("model")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var in map[string]any
		_ = json.Unmarshal(msg, &in)
		out, _ := json.Marshal(map[string]any{"type": "response.audio.delta", "item_id": "item_1", "delta": in["audio"]})
		_ = ws.WriteMessage(websocket.TextMessage, out)
		_, _, _ = ws.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), APIKey: "sk-test", Model: "gpt-test"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if got := <-gotAuth; got != "Bearer sk-test|realtime=v1|gpt-test" {
		t.Fatalf("unexpected handshake %q", got)
	}
	if err := conn.Send(NewInputAudioAppend("AAEC")); err != nil {
		t.Fatalf("send: %v", err)
	}
	ev, err := conn.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if ev.Type != EventTypeResponseAudioDelta || ev.Delta != "AAEC" || ev.ItemID != "item_1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestDialRequiresAPIKey(t *testing.T) {
	_, err := Dial(context.Background(), Config{})
	if !errorsx.HasReason(err, errorsx.ReasonRealtimeConnect) {
		t.Fatalf("expected connect reason, got %v", err)
	}
}
