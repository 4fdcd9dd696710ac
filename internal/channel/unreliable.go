package channel

import (
	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
)

// Unreliable delivers every message it receives immediately and in arrival order. Nothing is
// numbered, detected as lost or resent.
type Unreliable struct {
	queue sendQueue
}

func NewUnreliable() *Unreliable {
	return &Unreliable{}
}

// Returns the message as is.
func (c *Unreliable) Process(msg *message.Message) []*message.Message {
	return []*message.Message{msg}
}

// Clears the sequence and channel of the message and queues it.
func (c *Unreliable) Commit(msg *message.Message) error {
	c.queue.mu.Lock()
	defer c.queue.mu.Unlock()

	if msg.Status != message.Created {
		return ErrAlreadyCommitted
	}

	msg.Sequence = 0
	msg.Channel = 0
	msg.Delivery = protocol.Unreliable
	c.queue.push(msg)
	return nil
}

// Takes up to max queued messages for sending.
func (c *Unreliable) Take(max int) []*message.Message {
	return c.queue.take(max)
}
