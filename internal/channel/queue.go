package channel

import (
	"sync"

	"github.com/gamevidea/relnet/internal/message"
)

// sendQueue holds committed messages until the session takes them for sending. Its mutex also
// guards the outgoing sequence counter of numbered channels, so numbering and queue order
// always agree.
type sendQueue struct {
	mu    sync.Mutex
	items []*message.Message
}

// Appends a committed message. Must be called with the queue locked.
func (q *sendQueue) push(msg *message.Message) {
	msg.Status = message.Queued
	q.items = append(q.items, msg)
}

// Removes and returns up to max messages in commit order. A negative max takes everything.
func (q *sendQueue) take(max int) []*message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if max == 0 || len(q.items) == 0 {
		return nil
	}

	if max < 0 || max > len(q.items) {
		max = len(q.items)
	}

	taken := make([]*message.Message, max)
	copy(taken, q.items)

	clear(q.items[:max])
	q.items = q.items[max:]
	if len(q.items) == 0 {
		q.items = nil
	}

	return taken
}

// Returns the number of queued messages.
func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
