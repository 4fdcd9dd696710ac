package message

import "github.com/gamevidea/relnet/internal/protocol"

// Creates an MTU probe whose body is size bytes long. Probes are sent unreliably with the
// don't-fragment flag set, so a probe larger than the path MTU is lost or refused locally
// instead of being fragmented.
func NewMTUExpandRequest(size int) *Message {
	msg := newControl(protocol.MTUExpandRequest, protocol.Unreliable, nil)
	msg.Body = make([]byte, size)
	msg.DontFragment = true
	return msg
}
