package channel

import (
	"slices"
	"sync"
	"time"

	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
)

// Reliable delivers every message exactly once and in sequence order. On top of the sequenced
// numbering it buffers out of order arrivals, reassembles fragment chains, collects the
// sequences it owes the remote a confirmation for and keeps every sent message until the
// remote confirms it.
type Reliable struct {
	out   numbering
	queue sendQueue

	windowMu sync.Mutex
	window   *ReorderWindow

	awaitingMu sync.Mutex
	awaiting   map[int32]*message.Message

	confirmMu sync.Mutex
	confirms  map[int32]struct{}
}

func NewReliable() *Reliable {
	return &Reliable{
		window:   CreateReorderWindow(),
		awaiting: map[int32]*message.Message{},
		confirms: map[int32]struct{}{},
	}
}

// Receives a reliable message and returns the messages that became deliverable, with fragment
// chains merged. New and duplicate messages are recorded for confirmation: a duplicate means
// the remote never saw the previous confirmation. Messages too far ahead of the watermark are
// dropped without confirmation so the remote resends them later.
func (c *Reliable) Process(msg *message.Message) []*message.Message {
	c.windowMu.Lock()
	receipt, run := c.window.Receive(msg)
	c.windowMu.Unlock()

	if receipt != Rejected && msg.Type != protocol.ConfirmDelivery {
		c.confirmMu.Lock()
		c.confirms[msg.Sequence] = struct{}{}
		c.confirmMu.Unlock()
	}

	if len(run) == 0 {
		return nil
	}

	return Merge(run)
}

// Returns the last delivered sequence and the number of buffered messages.
func (c *Reliable) WindowState() (int32, int) {
	c.windowMu.Lock()
	defer c.windowMu.Unlock()

	return c.window.Delivered, c.window.Len()
}

// Numbers the message and queues it. Fragments keep their fragment index in the channel
// field, every other reliable message is sent on channel 0.
func (c *Reliable) Commit(msg *message.Message) error {
	return c.CommitChain([]*message.Message{msg})
}

// Numbers and queues the messages as one uninterrupted run of sequences, which is what the
// receiving side needs to reassemble a fragment chain. Either every message is committed or
// none is.
func (c *Reliable) CommitChain(msgs []*message.Message) error {
	c.queue.mu.Lock()
	defer c.queue.mu.Unlock()

	for _, msg := range msgs {
		if msg.Status != message.Created {
			return ErrAlreadyCommitted
		}
	}

	for _, msg := range msgs {
		msg.Sequence = c.out.next()
		msg.Delivery = protocol.Reliable
		if msg.Type != protocol.PartialMessage {
			msg.Channel = 0
		}

		c.queue.push(msg)
	}

	return nil
}

// Takes up to max queued messages for their first send.
func (c *Reliable) Take(max int) []*message.Message {
	return c.queue.take(max)
}

// Returns the number of messages queued for their first send.
func (c *Reliable) Queued() int {
	return c.queue.len()
}

// Stores a sent message until its delivery is confirmed.
func (c *Reliable) AddAwaiting(msg *message.Message) error {
	c.awaitingMu.Lock()
	defer c.awaitingMu.Unlock()

	if _, ok := c.awaiting[msg.Sequence]; ok {
		return ErrAlreadyAwaiting
	}

	c.awaiting[msg.Sequence] = msg
	return nil
}

// Returns the number of messages awaiting confirmation.
func (c *Reliable) Awaiting() int {
	c.awaitingMu.Lock()
	defer c.awaitingMu.Unlock()

	return len(c.awaiting)
}

// Removes the message with the sequence from the awaiting map and marks it confirmed. Returns
// nil if no such message awaits, which makes repeated confirmations harmless.
func (c *Reliable) Confirm(seq int32) *message.Message {
	c.awaitingMu.Lock()
	defer c.awaitingMu.Unlock()

	msg, ok := c.awaiting[seq]
	if !ok {
		return nil
	}

	delete(c.awaiting, seq)
	msg.Status = message.Confirmed
	return msg
}

// Returns the awaiting messages that were never sent or were last sent more than timeout ago,
// lowest sequence first.
func (c *Reliable) Due(now time.Time, timeout time.Duration) []*message.Message {
	c.awaitingMu.Lock()
	defer c.awaitingMu.Unlock()

	var due []*message.Message
	for _, msg := range c.awaiting {
		if msg.LastSent.IsZero() || now.Sub(msg.LastSent) > timeout {
			due = append(due, msg)
		}
	}

	slices.SortFunc(due, func(a, b *message.Message) int {
		return int(a.Sequence) - int(b.Sequence)
	})

	return due
}

// Returns the number of sequences that still have to be confirmed to the remote.
func (c *Reliable) PendingConfirms() int {
	c.confirmMu.Lock()
	defer c.confirmMu.Unlock()

	return len(c.confirms)
}

// Drains the pending confirmations into as many ConfirmDelivery messages as needed so none of
// them exceeds mtu bytes of body. Sequences are confirmed in ascending order.
func (c *Reliable) Confirmations(mtu int) []*message.Message {
	c.confirmMu.Lock()
	if len(c.confirms) == 0 {
		c.confirmMu.Unlock()
		return nil
	}

	sequences := make([]int32, 0, len(c.confirms))
	for seq := range c.confirms {
		sequences = append(sequences, seq)
	}
	clear(c.confirms)
	c.confirmMu.Unlock()

	slices.Sort(sequences)

	capacity := message.ConfirmCapacity(mtu)
	batches := make([]*message.Message, 0, (len(sequences)+capacity-1)/capacity)

	for start := 0; start < len(sequences); start += capacity {
		end := min(start+capacity, len(sequences))
		batches = append(batches, message.NewConfirmDelivery(sequences[start:end]))
	}

	return batches
}
