package message

import (
	"bytes"
	"net"
	"testing"

	"github.com/gamevidea/relnet/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7777}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{"empty body", &Message{Sequence: 0, Channel: 0, Delivery: protocol.Unreliable, Type: protocol.UserData}},
		{"sequenced", &Message{Sequence: 42, Channel: 7, Delivery: protocol.Sequenced, Type: protocol.UserData, Body: []byte("hello")}},
		{"reliable fragment", &Message{Sequence: 1 << 30, Channel: 255, Delivery: protocol.Reliable, Type: protocol.PartialMessage, Body: bytes.Repeat([]byte{0xAB}, 600)}},
		{"negative sequence", &Message{Sequence: -5, Channel: 3, Delivery: protocol.Reliable, Type: protocol.FinAck}},
		{"largest body", &Message{Delivery: protocol.Reliable, Type: protocol.UserData, Body: bytes.Repeat([]byte{1}, protocol.MAX_BODY_SIZE)}},
		{"last packet type", &Message{Delivery: protocol.Unreliable, Type: protocol.MTUSuccess, Body: []byte{1, 2, 3, 4}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.Len(t, data, protocol.HEADER_SIZE+len(tt.msg.Body))

			decoded, err := Decode(data, testAddr)
			require.NoError(t, err)

			assert.Equal(t, tt.msg.Sequence, decoded.Sequence)
			assert.Equal(t, tt.msg.Channel, decoded.Channel)
			assert.Equal(t, tt.msg.Delivery, decoded.Delivery)
			assert.Equal(t, tt.msg.Type, decoded.Type)
			assert.Equal(t, len(tt.msg.Body), len(decoded.Body))
			assert.True(t, bytes.Equal(tt.msg.Body, decoded.Body))
			assert.Equal(t, testAddr, decoded.Addr)
		})
	}
}

func TestEncodeHeaderLayout(t *testing.T) {
	msg := &Message{
		Sequence: 0x01020304,
		Channel:  9,
		Delivery: protocol.Reliable,
		Type:     protocol.ConfirmDelivery,
		Body:     []byte{0xFF, 0xEE},
	}

	data, err := Encode(msg)
	require.NoError(t, err)

	expected := []byte{
		// sequence
		0x04, 0x03, 0x02, 0x01,
		// channel
		9,
		// service byte
		uint8(protocol.Reliable) | 4<<2,
		// body length
		0x02, 0x00,
		0xFF, 0xEE,
	}
	assert.Equal(t, expected, data)
}

func TestEncodeRejectsOversizedBody(t *testing.T) {
	_, err := Encode(&Message{Body: make([]byte, protocol.MAX_BODY_SIZE+1)})
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestDecodeMalformed(t *testing.T) {
	valid, err := Encode(&Message{Sequence: 1, Delivery: protocol.Reliable, Type: protocol.UserData, Body: []byte("abcdef")})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"shorter than header", valid[:protocol.HEADER_SIZE-1]},
		{"truncated body", valid[:len(valid)-1]},
		{"unknown delivery type", withServiceByte(valid, 3)},
		{"unknown packet type", withServiceByte(valid, uint8(protocol.Reliable)|15<<2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, testAddr)
			assert.ErrorIs(t, err, ErrMalformedPacket)
		})
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	data, err := Encode(&Message{Sequence: 3, Delivery: protocol.Sequenced, Type: protocol.UserData, Body: []byte("abc")})
	require.NoError(t, err)

	decoded, err := Decode(append(data, 0, 0, 0), testAddr)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), decoded.Body)
}

func TestDecodeCopiesBody(t *testing.T) {
	data, err := Encode(&Message{Delivery: protocol.Unreliable, Type: protocol.UserData, Body: []byte("abc")})
	require.NoError(t, err)

	decoded, err := Decode(data, testAddr)
	require.NoError(t, err)

	data[protocol.HEADER_SIZE] = 'z'
	assert.Equal(t, []byte("abc"), decoded.Body)
}

func TestServiceByte(t *testing.T) {
	for d := protocol.Unreliable; d <= protocol.Reliable; d++ {
		for p := protocol.UserData; p <= protocol.MTUSuccess; p++ {
			gotD, gotP := protocol.SplitServiceByte(protocol.ServiceByte(d, p))
			assert.Equal(t, d, gotD)
			assert.Equal(t, p, gotP)
		}
	}
}

func withServiceByte(data []byte, service uint8) []byte {
	out := append([]byte(nil), data...)
	out[5] = service
	return out
}
