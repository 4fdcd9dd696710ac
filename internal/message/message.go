package message

import (
	"fmt"
	"net"
	"time"

	"github.com/gamevidea/binary/buffer"
	"github.com/gamevidea/relnet/internal/protocol"
)

// Status tracks an outgoing message from creation until its delivery is confirmed.
type Status = uint8

const (
	Created Status = iota
	Queued
	Sent
	Confirmed
)

// Payload represents the typed body of a control packet. It is encoded into and decoded from
// the message body.
type Payload interface {
	Read(buf *buffer.Buffer) (err error)
	Write(buf *buffer.Buffer) (err error)
	Size() int
}

// Message is the unit of communication between two sessions. The same type is used for
// incoming and outgoing messages: Addr is only set on incoming ones, the send bookkeeping is
// only used on outgoing ones.
type Message struct {
	// Sequence is assigned by the channel upon commit. Zero means unassigned or unreliable.
	Sequence int32

	// Channel selects the sequenced sub-channel. Reliable fragments reuse it as fragment index.
	Channel uint8

	Delivery protocol.DeliveryType
	Type     protocol.PacketType
	Body     []byte

	Status       Status
	LastSent     time.Time
	SentTimes    int
	DontFragment bool

	Addr *net.UDPAddr
}

// Creates a user data message carrying the provided body. The delivery type is chosen when
// the message is sent.
func New(body []byte) *Message {
	return &Message{
		Type: protocol.UserData,
		Body: body,
	}
}

// Creates a control message of the provided type and delivery type carrying the encoded payload.
func newControl(t protocol.PacketType, d protocol.DeliveryType, p Payload) *Message {
	msg := &Message{
		Type:     t,
		Delivery: d,
	}

	if p != nil {
		body, err := Marshal(p)
		if err != nil {
			// Payload sizes are computed from the payload itself, so this only happens on a
			// broken Size implementation.
			panic(fmt.Sprintf("message: encode %v payload: %v", t, err))
		}
		msg.Body = body
	}

	return msg
}

// Returns the number of bytes in the message body.
func (m *Message) Len() int {
	return len(m.Body)
}

// Returns whether the message is the last fragment of a fragment chain.
func (m *Message) Terminator() bool {
	return m.Type == protocol.PartialMessage && m.Channel == protocol.FRAGMENT_TERMINATOR
}

// Decodes the message body into the provided payload.
func (m *Message) Decode(p Payload) error {
	return Unmarshal(m.Body, p)
}

func (m *Message) String() string {
	return fmt.Sprintf("Message[type=%v, delivery=%v, channel=%d, sequence=%d, len=%d, addr=%v]",
		m.Type, m.Delivery, m.Channel, m.Sequence, len(m.Body), m.Addr)
}

// Encodes a payload into a new byte slice sized for it.
func Marshal(p Payload) ([]byte, error) {
	buf := buffer.New(p.Size())
	if err := p.Write(buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decodes a payload from the provided body and returns an error if the body is too short.
func Unmarshal(body []byte, p Payload) error {
	if err := p.Read(buffer.From(body)); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return nil
}
