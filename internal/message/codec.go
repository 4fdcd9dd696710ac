package message

import (
	"fmt"
	"net"

	"github.com/gamevidea/binary/buffer"
	"github.com/gamevidea/binary/byteorder"
	"github.com/gamevidea/relnet/internal/protocol"
)

// Encodes the message into a datagram of exactly HEADER_SIZE + body length bytes. Returns an
// error if the body cannot be described by the 16-bit length field.
func Encode(m *Message) ([]byte, error) {
	if len(m.Body) > protocol.MAX_BODY_SIZE {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(m.Body))
	}

	buf := buffer.New(protocol.HEADER_SIZE + len(m.Body))

	if err := buf.WriteUint32(uint32(m.Sequence), byteorder.LittleEndian); err != nil {
		return nil, err
	}

	if err := buf.WriteUint8(m.Channel); err != nil {
		return nil, err
	}

	if err := buf.WriteUint8(protocol.ServiceByte(m.Delivery, m.Type)); err != nil {
		return nil, err
	}

	if err := buf.WriteUint16(uint16(len(m.Body)), byteorder.LittleEndian); err != nil {
		return nil, err
	}

	if len(m.Body) > 0 {
		if err := buf.Write(m.Body); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decodes a datagram received from addr. Returns ErrMalformedPacket if the datagram is shorter
// than the header, declares a body longer than the bytes that follow, or carries a delivery or
// packet type that does not exist.
func Decode(data []byte, addr *net.UDPAddr) (*Message, error) {
	if len(data) < protocol.HEADER_SIZE {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformedPacket, len(data))
	}

	return DecodeBuffer(buffer.From(data), addr)
}

// Decodes a datagram from the buffer. See Decode.
func DecodeBuffer(b *buffer.Buffer, addr *net.UDPAddr) (*Message, error) {
	if b.Remaining() < protocol.HEADER_SIZE {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformedPacket, b.Remaining())
	}

	sequence, err := b.ReadUint32(byteorder.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	channel, err := b.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	service, err := b.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	length, err := b.ReadUint16(byteorder.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	if int(length) > b.Remaining() {
		return nil, fmt.Errorf("%w: body length %d exceeds %d remaining bytes", ErrMalformedPacket, length, b.Remaining())
	}

	delivery, packetType := protocol.SplitServiceByte(service)
	if !delivery.Valid() || !packetType.Valid() {
		return nil, fmt.Errorf("%w: service byte %#x", ErrMalformedPacket, service)
	}

	body := make([]byte, length)
	if length > 0 {
		if err := b.Read(body); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
		}
	}

	return &Message{
		Sequence: int32(sequence),
		Channel:  channel,
		Delivery: delivery,
		Type:     packetType,
		Body:     body,
		Addr:     addr,
	}, nil
}
