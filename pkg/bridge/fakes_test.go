package bridge

import (
	"errors"
	"io"
	"sync"

	"github.com/harunnryd/reliefline/pkg/realtime"
	"github.com/harunnryd/reliefline/pkg/telephony"
)

var errClosed = errors.New("use of closed connection")

type telItem struct {
	frame telephony.Frame
	err   error
}

// fakeTelephony replays queued frames, then blocks until closed.
type fakeTelephony struct {
	in     chan telItem
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent []telephony.OutboundFrame
}

func newFakeTelephony(items ...telItem) *fakeTelephony {
	f := &fakeTelephony{in: make(chan telItem, len(items)+8), closed: make(chan struct{})}
	for _, it := range items {
		f.in <- it
	}
	return f
}

func (f *fakeTelephony) Recv() (telephony.Frame, error) {
	select {
	case it, ok := <-f.in:
		if !ok {
			return telephony.Frame{}, io.EOF
		}
		return it.frame, it.err
	case <-f.closed:
		return telephony.Frame{}, errClosed
	}
}

func (f *fakeTelephony) Send(fr telephony.OutboundFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeTelephony) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTelephony) sentEvents(event string) []telephony.OutboundFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []telephony.OutboundFrame
	for _, fr := range f.sent {
		if fr.Event == event {
			out = append(out, fr)
		}
	}
	return out
}

type aiItem struct {
	ev  realtime.ServerEvent
	err error
}

// fakeAI replays queued server events, then blocks until closed.
type fakeAI struct {
	in     chan aiItem
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent []realtime.ClientEvent
}

func newFakeAI(items ...aiItem) *fakeAI {
	f := &fakeAI{in: make(chan aiItem, len(items)+8), closed: make(chan struct{})}
	for _, it := range items {
		f.in <- it
	}
	return f
}

func (f *fakeAI) Recv() (realtime.ServerEvent, error) {
	select {
	case it, ok := <-f.in:
		if !ok {
			return realtime.ServerEvent{}, io.EOF
		}
		return it.ev, it.err
	case <-f.closed:
		return realtime.ServerEvent{}, errClosed
	}
}

func (f *fakeAI) Send(ev realtime.ClientEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeAI) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeAI) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, ev := range f.sent {
		out = append(out, ev.EventType())
	}
	return out
}

func (f *fakeAI) truncates() []realtime.ItemTruncate {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []realtime.ItemTruncate
	for _, ev := range f.sent {
		if tr, ok := ev.(realtime.ItemTruncate); ok {
			out = append(out, tr)
		}
	}
	return out
}

func mediaFrame(ts int64, payload string) telItem {
	return telItem{frame: telephony.Frame{
		Event: telephony.EventMedia,
		Media: &telephony.Media{Timestamp: telephony.Timestamp{Ms: ts, Valid: true}, Payload: payload},
	}}
}

func startFrame(streamSID string) telItem {
	return telItem{frame: telephony.Frame{
		Event: telephony.EventStart,
		Start: &telephony.Start{StreamSID: streamSID, CallSID: "CA" + streamSID},
	}}
}

func markFrame() telItem {
	return telItem{frame: telephony.Frame{Event: telephony.EventMark, Mark: &telephony.Mark{Name: telephony.ResponsePartMark}}}
}

func stopFrame() telItem {
	return telItem{frame: telephony.Frame{Event: telephony.EventStop, Stop: &telephony.Stop{}}}
}

func responseDone(text string) aiItem {
	return aiItem{ev: realtime.ServerEvent{
		Type: realtime.EventTypeResponseDone,
		Response: &realtime.Response{
			ID:     "resp_1",
			Output: []realtime.Item{{Type: "message", Role: "assistant", Content: []realtime.ContentPart{{Type: "audio", Transcript: text}}}},
		},
	}}
}

func audioDelta(itemID, payload string) aiItem {
	return aiItem{ev: realtime.ServerEvent{Type: realtime.EventTypeResponseAudioDelta, ItemID: itemID, Delta: payload}}
}

func speechStarted() aiItem {
	return aiItem{ev: realtime.ServerEvent{Type: realtime.EventTypeInputAudioBufferSpeechStart}}
}
