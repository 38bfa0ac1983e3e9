package arena

import "sync"

// Kind says what changed when a notification was published.
type Kind int

const (
	// BoardChanged follows every half-move.
	BoardChanged Kind = iota
	// GameFinished follows the end of a counted game.
	GameFinished
	// StatusChanged follows a change of match state or status text.
	StatusChanged
	// HumanToMove is published when the worker waits for SubmitMove.
	HumanToMove
)

func (k Kind) String() string {
	switch k {
	case BoardChanged:
		return "board"
	case GameFinished:
		return "game"
	case StatusChanged:
		return "status"
	case HumanToMove:
		return "human"
	default:
		return "unknown"
	}
}

// Notification carries the match state as it was when it was published.
type Notification struct {
	Kind     Kind
	Snapshot Snapshot
}

// Queue is a bounded FIFO of notifications. Push never blocks: when the
// queue is full the oldest entry is dropped, since every notification
// supersedes the ones before it.
type Queue struct {
	mu      sync.Mutex
	items   []Notification
	size    int
	dropped int
}

// NewQueue returns a queue holding at most size notifications.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{size: size}
}

// Push appends n, dropping the oldest entry when the queue is full.
func (q *Queue) Push(n Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == q.size {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, n)
}

// Drain removes and returns everything queued, oldest first. It returns nil
// when the queue is empty.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len is the number of queued notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped counts notifications discarded because the queue was full.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
