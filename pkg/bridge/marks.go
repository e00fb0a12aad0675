package bridge

// MarkQueue is the FIFO of playback marks sent to telephony and not yet
// acknowledged. It is not safe for concurrent use; State guards it.
type MarkQueue struct {
	names []string
}

func (q *MarkQueue) Push(name string) {
	q.names = append(q.names, name)
}

// Pop removes the oldest mark. It reports false when the queue is empty.
func (q *MarkQueue) Pop() (string, bool) {
	if len(q.names) == 0 {
		return "", false
	}
	name := q.names[0]
	q.names[0] = ""
	q.names = q.names[1:]
	if len(q.names) == 0 {
		q.names = nil
	}
	return name, true
}

func (q *MarkQueue) Len() int { return len(q.names) }

func (q *MarkQueue) Clear() { q.names = nil }
