package ircd

import (
	"testing"

	"github.com/horgh/ircrelay/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageQueueOverflowDropsOldest(t *testing.T) {
	q := NewMessageQueue(2)
	q.Push(wire.Message{Content: "a"})
	q.Push(wire.Message{Content: "b"})
	q.Push(wire.Message{Content: "c"})

	assert.Equal(t, uint64(1), q.Dropped())

	msgs := q.Drain()
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[0].Content)
	assert.Equal(t, "c", msgs[1].Content)
}

func TestMessageQueueHighPriorityEvictsOldestNormal(t *testing.T) {
	q := NewMessageQueue(3)
	q.Push(wire.Message{Content: "ping", Priority: wire.PriorityHigh})
	q.Push(wire.Message{Content: "a"})
	q.Push(wire.Message{Content: "b"})

	q.Push(wire.Message{Content: "error", Priority: wire.PriorityHigh})

	msgs := q.Drain()
	require.Len(t, msgs, 3)
	// "a" (the oldest Normal) went, not the High "ping" at the head.
	assert.Equal(t, "ping", msgs[0].Content)
	assert.Equal(t, "b", msgs[1].Content)
	assert.Equal(t, "error", msgs[2].Content)
}

func TestMessageQueueAllHighFallsBackToOldest(t *testing.T) {
	q := NewMessageQueue(2)
	q.Push(wire.Message{Content: "p1", Priority: wire.PriorityHigh})
	q.Push(wire.Message{Content: "p2", Priority: wire.PriorityHigh})
	q.Push(wire.Message{Content: "p3", Priority: wire.PriorityHigh})

	msgs := q.Drain()
	require.Len(t, msgs, 2)
	assert.Equal(t, "p2", msgs[0].Content)
	assert.Equal(t, "p3", msgs[1].Content)
}

func TestBroadcastQueueKeepsRecipientSnapshot(t *testing.T) {
	q := NewBroadcastQueue(2)
	q.Push(Broadcast{Msg: wire.Message{Content: "hi"}, Recipients: []string{"bob"}})

	bs := q.Drain()
	require.Len(t, bs, 1)
	assert.Equal(t, []string{"bob"}, bs[0].Recipients)
	assert.Equal(t, 0, q.Len())
}
