package channel

import (
	"fmt"

	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
)

// Splits the message into PartialMessage fragments of at most mtu bytes if its body is larger
// than mtu. Fragments carry their index in the channel field, and the last one carries
// FRAGMENT_TERMINATOR instead. A message that fits is returned unchanged.
func Split(msg *message.Message, mtu int) ([]*message.Message, error) {
	if mtu <= 0 {
		return nil, fmt.Errorf("invalid mtu %d", mtu)
	}

	if len(msg.Body) <= mtu {
		return []*message.Message{msg}, nil
	}

	count := len(msg.Body) / mtu
	if len(msg.Body)%mtu != 0 {
		count += 1
	}

	if count > protocol.MAX_FRAGMENT_COUNT {
		return nil, fmt.Errorf("%w: %d bytes needs %d fragments of %d bytes, at most %d allowed",
			ErrMessageTooLarge, len(msg.Body), count, mtu, protocol.MAX_FRAGMENT_COUNT)
	}

	fragments := make([]*message.Message, count)

	for i := 0; i < count; i++ {
		start := i * mtu
		end := min(start+mtu, len(msg.Body))

		index := uint8(i)
		if i == count-1 {
			index = protocol.FRAGMENT_TERMINATOR
		}

		fragments[i] = &message.Message{
			Type:     protocol.PartialMessage,
			Delivery: protocol.Reliable,
			Channel:  index,
			Body:     msg.Body[start:end],
		}
	}

	return fragments, nil
}

// Merges every complete fragment chain in the run into one reliable UserData message carrying
// the terminator's sequence. Other messages pass through in place.
func Merge(run []*message.Message) []*message.Message {
	merged := make([]*message.Message, 0, len(run))
	var chain []*message.Message

	for _, msg := range run {
		if msg.Type != protocol.PartialMessage {
			merged = append(merged, msg)
			continue
		}

		chain = append(chain, msg)
		if !msg.Terminator() {
			continue
		}

		size := 0
		for _, fragment := range chain {
			size += len(fragment.Body)
		}

		body := make([]byte, 0, size)
		for _, fragment := range chain {
			body = append(body, fragment.Body...)
		}

		merged = append(merged, &message.Message{
			Sequence: msg.Sequence,
			Delivery: protocol.Reliable,
			Type:     protocol.UserData,
			Body:     body,
			Addr:     msg.Addr,
		})
		chain = nil
	}

	return merged
}
