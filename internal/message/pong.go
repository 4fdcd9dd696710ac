package message

import (
	"time"

	"github.com/gamevidea/binary/buffer"
	"github.com/gamevidea/binary/byteorder"
	"github.com/gamevidea/relnet/internal/protocol"
)

// Pong is sent in response to a Ping. It echoes the ping's timestamp so the pinging side can
// compute the round trip with its own clock.
type Pong struct {
	Timestamp int64
}

// Creates a pong answering the provided ping. The pong is sent sequenced on the channel the
// ping arrived on.
func NewPong(ping *Message, pk *Ping) *Message {
	msg := newControl(protocol.Pong, protocol.Sequenced, &Pong{Timestamp: pk.Timestamp})
	msg.Channel = ping.Channel
	return msg
}

// Returns the round trip in milliseconds measured against now.
func (pk *Pong) RoundTrip(now time.Time) int {
	rtt := now.Sub(time.Unix(0, pk.Timestamp)).Milliseconds()
	if rtt < 0 {
		return 0
	}

	return int(rtt)
}

// Reads a pong message from the buffer and returns an error if the operation
// has failed
func (pk *Pong) Read(buf *buffer.Buffer) (err error) {
	pk.Timestamp, err = buf.ReadInt64(byteorder.LittleEndian)
	return
}

// Writes a pong message to the buffer and returns an error if the operation
// has failed
func (pk *Pong) Write(buf *buffer.Buffer) (err error) {
	err = buf.WriteInt64(pk.Timestamp, byteorder.LittleEndian)
	return
}

func (pk *Pong) Size() int {
	return 8
}
