package message

import "github.com/gamevidea/relnet/internal/protocol"

// Creates the ConnectAck message a client opens a session with. It is sent reliably and
// carries the application handshake payload, which may be empty. The client becomes connected
// once the server confirms its delivery.
func NewConnectAck(handshake []byte) *Message {
	msg := newControl(protocol.ConnectAck, protocol.Reliable, nil)
	if len(handshake) > 0 {
		msg.Body = append([]byte(nil), handshake...)
	}

	return msg
}
