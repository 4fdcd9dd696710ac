package message

import "github.com/gamevidea/relnet/internal/protocol"

// Creates the FinAck message that starts a graceful close. It is sent reliably.
func NewFinAck() *Message {
	return newControl(protocol.FinAck, protocol.Reliable, nil)
}

// Creates the FinResp message that answers a FinAck. It is sent reliably, and the session
// sending it closes once its delivery is confirmed.
func NewFinResp() *Message {
	return newControl(protocol.FinResp, protocol.Reliable, nil)
}
