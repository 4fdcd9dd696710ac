package message

import (
	"github.com/gamevidea/binary/buffer"
	"github.com/gamevidea/binary/byteorder"
	"github.com/gamevidea/relnet/internal/protocol"
)

// ConnectionError is sent when a session is refused or aborted. The reason becomes the close
// cause of the receiving session.
type ConnectionError struct {
	Reason string
}

// Creates a connection error message carrying the reason. It is sent unreliably since the
// sender does not keep any state for the session afterwards.
func NewConnectionError(reason string) *Message {
	if len(reason) > 0xFFFF {
		reason = reason[:0xFFFF]
	}

	return newControl(protocol.ConnectionError, protocol.Unreliable, &ConnectionError{Reason: reason})
}

// Reads a connection error message from the buffer and returns an error if the operation
// has failed
func (pk *ConnectionError) Read(buf *buffer.Buffer) (err error) {
	length, err := buf.ReadUint16(byteorder.LittleEndian)
	if err != nil {
		return
	}

	if int(length) > buf.Remaining() {
		return buffer.ErrEndOfFile
	}

	reason := make([]byte, length)
	if err = buf.Read(reason); err != nil {
		return
	}

	pk.Reason = string(reason)
	return
}

// Writes a connection error message to the buffer and returns an error if the operation
// has failed
func (pk *ConnectionError) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteUint16(uint16(len(pk.Reason)), byteorder.LittleEndian); err != nil {
		return
	}

	err = buf.Write([]byte(pk.Reason))
	return
}

func (pk *ConnectionError) Size() int {
	return 2 + len(pk.Reason)
}
