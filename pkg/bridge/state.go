package bridge

import "sync"

// State is the per-call connection state shared by the two pumps.
// The active response item and its start timestamp are always set and
// cleared together.
type State struct {
	mu sync.Mutex

	streamID      string
	callSID       string
	latestMediaMs int64
	activeItem    string
	responseStart int64
	hasStart      bool
	marks         MarkQueue
}

func NewState() *State {
	return &State{}
}

// Start begins a new stream segment: the stream id is recorded and the
// media clock, the active response and pending marks are reset.
func (s *State) Start(streamID, callSID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamID = streamID
	s.callSID = callSID
	s.latestMediaMs = 0
	s.activeItem = ""
	s.responseStart = 0
	s.hasStart = false
	s.marks.Clear()
}

func (s *State) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

func (s *State) CallSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callSID
}

// ObserveMedia advances the media clock to ms. The clock never moves
// backwards within a segment; a late frame leaves it unchanged.
func (s *State) ObserveMedia(ms int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ms > s.latestMediaMs {
		s.latestMediaMs = ms
	}
	return s.latestMediaMs
}

func (s *State) LatestMediaTimestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestMediaMs
}

// BeginAudio records that an audio chunk of itemID was forwarded. The first
// chunk of a response anchors its start at the current media clock. A chunk
// without an item id only keeps an already active response going.
func (s *State) BeginAudio(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if itemID != "" {
		s.activeItem = itemID
	}
	if s.activeItem != "" && !s.hasStart {
		s.responseStart = s.latestMediaMs
		s.hasStart = true
	}
}

// ActiveResponse returns the playing item and its start timestamp.
func (s *State) ActiveResponse() (itemID string, startMs int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeItem, s.responseStart, s.hasStart
}

// ResponseStart returns the start timestamp of the playing response.
func (s *State) ResponseStart() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responseStart, s.hasStart
}

func (s *State) PushMark(name string) {
	s.mu.Lock()
	s.marks.Push(name)
	s.mu.Unlock()
}

// AckMark pops the oldest pending mark. An ack on an empty queue returns false.
func (s *State) AckMark() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marks.Pop()
}

func (s *State) PendingMarks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marks.Len()
}

// interruption is what the interrupter needs to know about the playing response.
type interruption struct {
	streamID     string
	itemID       string
	elapsedMs    int64
	hasStart     bool
	pendingMarks int
}

func (s *State) snapshotInterruption() (interruption, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeItem == "" {
		return interruption{}, false
	}
	return interruption{
		streamID:     s.streamID,
		itemID:       s.activeItem,
		elapsedMs:    s.latestMediaMs - s.responseStart,
		hasStart:     s.hasStart,
		pendingMarks: s.marks.Len(),
	}, true
}

// resetResponse returns to the no-response-playing baseline.
func (s *State) resetResponse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks.Clear()
	s.activeItem = ""
	s.responseStart = 0
	s.hasStart = false
}
