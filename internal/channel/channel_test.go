package channel

import (
	"testing"

	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnreliableCommitResetsNumbering(t *testing.T) {
	ch := FromUnreliable(NewUnreliable())

	msg := &message.Message{Sequence: 9, Channel: 4, Type: protocol.UserData, Body: []byte("x")}
	require.NoError(t, ch.Commit(msg))

	assert.Equal(t, int32(0), msg.Sequence)
	assert.Equal(t, uint8(0), msg.Channel)
	assert.Equal(t, protocol.Unreliable, msg.Delivery)
	assert.Equal(t, message.Queued, msg.Status)

	assert.ErrorIs(t, ch.Commit(msg), ErrAlreadyCommitted)

	taken := ch.Take(10)
	require.Len(t, taken, 1)
	assert.Same(t, msg, taken[0])
	assert.Empty(t, ch.Take(10))
}

func TestUnreliableDeliversEverything(t *testing.T) {
	ch := FromUnreliable(NewUnreliable())

	for i := 0; i < 3; i++ {
		out := ch.Process(&message.Message{Type: protocol.UserData})
		assert.Len(t, out, 1)
	}
}

func TestSequencedNumbering(t *testing.T) {
	ch := FromSequenced(NewSequenced(12))
	assert.Equal(t, uint8(12), ch.Index())

	var last int32
	for i := 0; i < 5; i++ {
		msg := message.New([]byte{byte(i)})
		require.NoError(t, ch.Commit(msg))
		assert.Greater(t, msg.Sequence, last)
		assert.Equal(t, uint8(12), msg.Channel)
		assert.Equal(t, protocol.Sequenced, msg.Delivery)
		last = msg.Sequence
	}

	assert.Len(t, ch.Take(3), 3)
	assert.Len(t, ch.Take(-1), 2)
}

func TestSequencedDropsStaleMessages(t *testing.T) {
	seq := NewSequenced(0)
	ch := FromSequenced(seq)

	feed := []int32{1, 3, 2, 3, 5, 4, 6}
	var delivered []int32
	for _, s := range feed {
		for _, m := range ch.Process(&message.Message{Sequence: s, Type: protocol.UserData}) {
			delivered = append(delivered, m.Sequence)
		}
	}

	assert.Equal(t, []int32{1, 3, 5, 6}, delivered)
	assert.Equal(t, int32(6), seq.Watermark())
}

func TestQueueTake(t *testing.T) {
	q := &sendQueue{}
	q.mu.Lock()
	for i := 0; i < 5; i++ {
		q.push(&message.Message{Sequence: int32(i)})
	}
	q.mu.Unlock()

	assert.Nil(t, q.take(0))
	assert.Equal(t, 5, q.len())

	first := q.take(2)
	require.Len(t, first, 2)
	assert.Equal(t, int32(0), first[0].Sequence)
	assert.Equal(t, int32(1), first[1].Sequence)

	rest := q.take(-1)
	require.Len(t, rest, 3)
	assert.Equal(t, int32(4), rest[2].Sequence)
	assert.Equal(t, 0, q.len())
}
