package message

import (
	"github.com/gamevidea/binary/buffer"
	"github.com/gamevidea/binary/byteorder"
	"github.com/gamevidea/relnet/internal/protocol"
)

// ConfirmDelivery acknowledges one or more reliable messages by naming their sequences. It is
// prefixed with the count of sequences that follow.
type ConfirmDelivery struct {
	Sequences []int32
}

// Creates a delivery confirmation for the provided sequences. Confirmations are sent
// unreliably: a lost one is repaired by the retransmission it fails to prevent.
func NewConfirmDelivery(sequences []int32) *Message {
	return newControl(protocol.ConfirmDelivery, protocol.Unreliable, &ConfirmDelivery{Sequences: sequences})
}

// Returns how many sequences fit in a single confirmation of at most mtu bytes.
func ConfirmCapacity(mtu int) int {
	capacity := (mtu - 4) / 4
	if capacity < 1 {
		return 1
	}

	return capacity
}

// Reads a delivery confirmation from the buffer and returns an error if the operation
// has failed
func (pk *ConfirmDelivery) Read(buf *buffer.Buffer) (err error) {
	count, err := buf.ReadUint32(byteorder.LittleEndian)
	if err != nil {
		return
	}

	if int64(count)*4 > int64(buf.Remaining()) {
		return buffer.ErrEndOfFile
	}

	pk.Sequences = make([]int32, 0, count)

	for i := uint32(0); i < count; i++ {
		seq, err := buf.ReadUint32(byteorder.LittleEndian)
		if err != nil {
			return err
		}

		pk.Sequences = append(pk.Sequences, int32(seq))
	}

	return
}

// Writes a delivery confirmation to the buffer and returns an error if the operation
// has failed
func (pk *ConfirmDelivery) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteUint32(uint32(len(pk.Sequences)), byteorder.LittleEndian); err != nil {
		return
	}

	for _, seq := range pk.Sequences {
		if err = buf.WriteUint32(uint32(seq), byteorder.LittleEndian); err != nil {
			return
		}
	}

	return
}

func (pk *ConfirmDelivery) Size() int {
	return 4 + 4*len(pk.Sequences)
}
