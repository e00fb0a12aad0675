package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver moves delivery to inner off the caller's goroutine. When the
// buffer is full the event is dropped and counted.
type AsyncObserver struct {
	inner   Observer
	events  chan MetricsEvent
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	done    chan struct{}
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncObserver{
		inner:  OrNoop(inner),
		events: make(chan MetricsEvent, buffer),
		done:   make(chan struct{}),
	}
	go a.deliver()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.events <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// Close rejects further events and returns once the buffered ones reached
// inner. It is safe to call more than once.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *AsyncObserver) deliver() {
	defer close(a.done)
	for ev := range a.events {
		a.inner.RecordEvent(ev)
	}
}
