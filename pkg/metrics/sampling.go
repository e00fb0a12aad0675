package metrics

import "sync/atomic"

// SamplingObserver thins out high-rate events: of the named events only one
// in every n reaches inner, counted per name. Other events pass through.
type SamplingObserver struct {
	inner    Observer
	every    uint64
	counters map[string]*atomic.Uint64
}

// NewSamplingObserver samples names at one in every n. n <= 0 drops the named
// events entirely.
func NewSamplingObserver(inner Observer, n int, names ...string) *SamplingObserver {
	counters := make(map[string]*atomic.Uint64, len(names))
	for _, name := range names {
		counters[name] = new(atomic.Uint64)
	}
	var every uint64
	if n > 0 {
		every = uint64(n)
	}
	return &SamplingObserver{inner: OrNoop(inner), every: every, counters: counters}
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	c, ok := s.counters[ev.Name]
	if !ok {
		s.inner.RecordEvent(ev)
		return
	}
	if s.every == 0 {
		return
	}
	if (c.Add(1)-1)%s.every == 0 {
		s.inner.RecordEvent(ev)
	}
}
