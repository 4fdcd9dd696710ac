// Package channel implements the three delivery disciplines a session multiplexes over one
// UDP association: unreliable, sequenced and reliable.
package channel

import (
	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
)

// Channel is one delivery discipline of a session, identified by its delivery type and index.
// Exactly one of the variant pointers is set, selected by the delivery type.
type Channel struct {
	delivery protocol.DeliveryType

	unreliable *Unreliable
	sequenced  *Sequenced
	reliable   *Reliable
}

// Wraps an unreliable channel.
func FromUnreliable(c *Unreliable) *Channel {
	return &Channel{delivery: protocol.Unreliable, unreliable: c}
}

// Wraps a sequenced channel.
func FromSequenced(c *Sequenced) *Channel {
	return &Channel{delivery: protocol.Sequenced, sequenced: c}
}

// Wraps a reliable channel.
func FromReliable(c *Reliable) *Channel {
	return &Channel{delivery: protocol.Reliable, reliable: c}
}

// Returns the delivery type of the channel.
func (c *Channel) Delivery() protocol.DeliveryType {
	return c.delivery
}

// Returns the channel index. Unreliable and reliable channels always use index 0.
func (c *Channel) Index() uint8 {
	if c.delivery == protocol.Sequenced {
		return c.sequenced.Index()
	}

	return 0
}

// Returns the reliable variant, or nil if the channel is not reliable.
func (c *Channel) Reliable() *Reliable {
	return c.reliable
}

// Processes an incoming message and returns the messages ready for delivery, in delivery order.
func (c *Channel) Process(msg *message.Message) []*message.Message {
	switch c.delivery {
	case protocol.Sequenced:
		return c.sequenced.Process(msg)
	case protocol.Reliable:
		return c.reliable.Process(msg)
	default:
		return c.unreliable.Process(msg)
	}
}

// Assigns the channel's numbering to the message and queues it for sending.
func (c *Channel) Commit(msg *message.Message) error {
	switch c.delivery {
	case protocol.Sequenced:
		return c.sequenced.Commit(msg)
	case protocol.Reliable:
		return c.reliable.Commit(msg)
	default:
		return c.unreliable.Commit(msg)
	}
}

// Takes up to max queued messages for sending.
func (c *Channel) Take(max int) []*message.Message {
	switch c.delivery {
	case protocol.Sequenced:
		return c.sequenced.Take(max)
	case protocol.Reliable:
		return c.reliable.Take(max)
	default:
		return c.unreliable.Take(max)
	}
}
