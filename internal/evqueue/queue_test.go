package evqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(3)
	q.Push(Event{Kind: System, SubKind: Timer})
	q.Push(Event{Kind: System, SubKind: Exit})

	e, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, Timer, e.SubKind)

	e, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, Exit, e.SubKind)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	q := NewQueue(2)
	q.Push(Event{DataInt: 1})
	q.Push(Event{DataInt: 2})
	q.Push(Event{DataInt: 3})

	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, 2, q.Len())

	e, _ := q.Pop()
	assert.Equal(t, 2, e.DataInt)
	e, _ = q.Pop()
	assert.Equal(t, 3, e.DataInt)
}

func TestDispatcherRoutesBySubKind(t *testing.T) {
	q := NewQueue(8)
	d := NewDispatcher(q)

	var gotConnect, gotBase bool
	d.On(Network, ClientConnect, func(Event) { gotConnect = true })
	d.OnKind(Network, func(Event) { gotBase = true })

	q.Push(Event{Kind: Network, SubKind: ClientConnect})
	q.Push(Event{Kind: Network, SubKind: PeerClose})

	n := d.Drain()
	assert.Equal(t, 2, n)
	assert.True(t, gotConnect)
	assert.True(t, gotBase)
}
