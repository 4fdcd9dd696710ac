package channel

import (
	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
)

// Receipt tells what a reorder window did with a received message.
type Receipt = uint8

const (
	// The message was new and is buffered or delivered.
	Accepted Receipt = iota
	// The message was delivered or buffered before.
	Duplicate
	// The message is too far ahead of the watermark and was dropped.
	Rejected
)

// ReorderWindow buffers reliable messages until every sequence before them has arrived, then
// releases the contiguous run. Fragment chains are only released whole.
type ReorderWindow struct {
	Delivered int32
	Pending   map[int32]*message.Message
}

func CreateReorderWindow() *ReorderWindow {
	return &ReorderWindow{
		Delivered: 0,
		Pending:   map[int32]*message.Message{},
	}
}

// Receives a message and returns the contiguous run that became deliverable because of it,
// in sequence order. The run never ends in an unfinished fragment chain: such a tail stays
// buffered and the watermark stops right before the chain's first fragment.
func (w *ReorderWindow) Receive(msg *message.Message) (Receipt, []*message.Message) {
	seq := msg.Sequence

	if seq <= w.Delivered {
		return Duplicate, nil
	}

	if _, ok := w.Pending[seq]; ok {
		return Duplicate, nil
	}

	if seq-w.Delivered > protocol.RELIABLE_WINDOW {
		return Rejected, nil
	}

	w.Pending[seq] = msg

	run := make([]*message.Message, 0, 1)
	for next := w.Delivered + 1; ; next++ {
		m, ok := w.Pending[next]
		if !ok {
			break
		}

		run = append(run, m)
	}

	if n := len(run); n > 0 && run[n-1].Type == protocol.PartialMessage && !run[n-1].Terminator() {
		cut := n
		for cut > 0 {
			cut--
			if m := run[cut]; m.Type == protocol.PartialMessage && m.Channel == 0 {
				break
			}
		}

		run = run[:cut]
	}

	if len(run) == 0 {
		return Accepted, nil
	}

	for _, m := range run {
		delete(w.Pending, m.Sequence)
	}

	w.Delivered = run[len(run)-1].Sequence
	return Accepted, run
}

// Returns the number of buffered messages.
func (w *ReorderWindow) Len() int {
	return len(w.Pending)
}
