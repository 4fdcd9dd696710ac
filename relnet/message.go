package relnet

import (
	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
)

// Message is an application message. Messages passed to Send must be created with NewMessage
// and cannot be sent twice; received messages carry the sender in Addr.
type Message = message.Message

// DeliveryType selects the guarantees a message is sent with.
type DeliveryType = protocol.DeliveryType

const (
	// No ordering, no retransmission. Bodies may not exceed the session MTU.
	Unreliable = protocol.Unreliable

	// Newer messages supersede older ones on the same channel, stale ones are dropped. Bodies
	// may not exceed the session MTU.
	Sequenced = protocol.Sequenced

	// Delivered exactly once and in order. Bodies larger than the MTU are fragmented.
	Reliable = protocol.Reliable
)

// Creates a message carrying body.
func NewMessage(body []byte) *Message {
	return message.New(body)
}
