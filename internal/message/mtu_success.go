package message

import (
	"github.com/gamevidea/binary/buffer"
	"github.com/gamevidea/binary/byteorder"
	"github.com/gamevidea/relnet/internal/protocol"
)

// MTUSuccess is sent in response to an MTUExpandRequest. It reports the body length of the
// probe that arrived.
type MTUSuccess struct {
	Length int32
}

// Creates an MTU success message reporting the received probe size. It is sent unreliably.
func NewMTUSuccess(size int) *Message {
	return newControl(protocol.MTUSuccess, protocol.Unreliable, &MTUSuccess{Length: int32(size)})
}

// Reads an MTU success message from the buffer and returns an error if the operation
// has failed
func (pk *MTUSuccess) Read(buf *buffer.Buffer) (err error) {
	length, err := buf.ReadUint32(byteorder.LittleEndian)
	pk.Length = int32(length)
	return
}

// Writes an MTU success message to the buffer and returns an error if the operation
// has failed
func (pk *MTUSuccess) Write(buf *buffer.Buffer) (err error) {
	err = buf.WriteUint32(uint32(pk.Length), byteorder.LittleEndian)
	return
}

func (pk *MTUSuccess) Size() int {
	return 4
}
