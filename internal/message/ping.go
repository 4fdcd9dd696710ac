package message

import (
	"time"

	"github.com/gamevidea/binary/buffer"
	"github.com/gamevidea/binary/byteorder"
	"github.com/gamevidea/relnet/internal/protocol"
)

// Ping is sent periodically by a session to keep the connection alive and to measure the round
// trip. It carries the sender's clock at the time of sending.
type Ping struct {
	Timestamp int64
}

// Creates a ping message stamped with the provided time. Pings are sent sequenced on the
// reserved ping channel so a stale ping never overtakes a fresh one.
func NewPing(at time.Time) *Message {
	msg := newControl(protocol.Ping, protocol.Sequenced, &Ping{Timestamp: at.UnixNano()})
	msg.Channel = protocol.PING_CHANNEL
	return msg
}

// Returns the time the ping was sent at.
func (pk *Ping) Time() time.Time {
	return time.Unix(0, pk.Timestamp)
}

// Reads a ping message from the buffer and returns an error if the operation
// has failed
func (pk *Ping) Read(buf *buffer.Buffer) (err error) {
	pk.Timestamp, err = buf.ReadInt64(byteorder.LittleEndian)
	return
}

// Writes a ping message to the buffer and returns an error if the operation
// has failed
func (pk *Ping) Write(buf *buffer.Buffer) (err error) {
	err = buf.WriteInt64(pk.Timestamp, byteorder.LittleEndian)
	return
}

func (pk *Ping) Size() int {
	return 8
}
