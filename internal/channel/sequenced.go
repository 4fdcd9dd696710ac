package channel

import (
	"sync"

	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
)

// numbering hands out strictly increasing outgoing sequences starting at 1. It is not safe
// for concurrent use on its own; owners call it with their send queue locked.
type numbering struct {
	last int32
}

func (n *numbering) next() int32 {
	n.last++
	return n.last
}

// Sequenced delivers a message only if it is newer than every message delivered before it on
// the same channel. Older and duplicate messages are dropped and nothing is resent.
type Sequenced struct {
	index uint8
	out   numbering
	queue sendQueue

	mu        sync.Mutex
	watermark int32
}

func NewSequenced(index uint8) *Sequenced {
	return &Sequenced{index: index}
}

// Returns the channel index.
func (c *Sequenced) Index() uint8 {
	return c.index
}

// Returns the highest sequence delivered so far.
func (c *Sequenced) Watermark() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.watermark
}

// Delivers the message if its sequence is above the watermark and advances the watermark.
func (c *Sequenced) Process(msg *message.Message) []*message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.Sequence <= c.watermark {
		return nil
	}

	c.watermark = msg.Sequence
	return []*message.Message{msg}
}

// Numbers the message on this channel and queues it.
func (c *Sequenced) Commit(msg *message.Message) error {
	c.queue.mu.Lock()
	defer c.queue.mu.Unlock()

	if msg.Status != message.Created {
		return ErrAlreadyCommitted
	}

	msg.Sequence = c.out.next()
	msg.Channel = c.index
	msg.Delivery = protocol.Sequenced
	c.queue.push(msg)
	return nil
}

// Takes up to max queued messages for sending.
func (c *Sequenced) Take(max int) []*message.Message {
	return c.queue.take(max)
}
