package ircd

import "github.com/horgh/ircrelay/internal/wire"

// MessageQueue is the bounded, per-user outbound queue. It is built the
// same way as internal/evqueue.Queue (fixed ring buffer, oldest dropped
// on overflow), kept as a separate type because it holds wire.Message
// rather than evqueue.Event and because callers never need evqueue's
// (Kind, SubKind) dispatch machinery here -- just FIFO push and drain.
type MessageQueue struct {
	buf     []wire.Message
	head    int
	size    int
	dropped uint64
}

// NewMessageQueue creates a MessageQueue with the given fixed capacity.
func NewMessageQueue(capacity int) *MessageQueue {
	return &MessageQueue{buf: make([]wire.Message, capacity)}
}

// Push enqueues a message. A full queue drops the oldest entry (never the
// newest) to make room; a PriorityHigh arrival instead drops the oldest
// PriorityNormal entry, if there is one, so PING and ERROR traffic
// survives a congested queue.
func (q *MessageQueue) Push(m wire.Message) {
	if len(q.buf) == 0 {
		return
	}

	if q.size == len(q.buf) {
		q.evictOne(m.Priority)
	}

	tail := (q.head + q.size) % len(q.buf)
	q.buf[tail] = m
	q.size++
}

func (q *MessageQueue) evictOne(p wire.Priority) {
	if p == wire.PriorityHigh {
		for i := 0; i < q.size; i++ {
			if q.buf[(q.head+i)%len(q.buf)].Priority != wire.PriorityNormal {
				continue
			}
			for j := i; j < q.size-1; j++ {
				q.buf[(q.head+j)%len(q.buf)] = q.buf[(q.head+j+1)%len(q.buf)]
			}
			q.size--
			q.dropped++
			return
		}
	}

	q.head = (q.head + 1) % len(q.buf)
	q.size--
	q.dropped++
}

// Drain removes and returns every message currently queued, in FIFO
// order, leaving the queue empty.
func (q *MessageQueue) Drain() []wire.Message {
	if q.size == 0 {
		return nil
	}

	out := make([]wire.Message, 0, q.size)
	for q.size > 0 {
		out = append(out, q.buf[q.head])
		q.head = (q.head + 1) % len(q.buf)
		q.size--
	}
	return out
}

// Len returns the number of messages currently queued.
func (q *MessageQueue) Len() int {
	return q.size
}

// Dropped returns the running count of messages dropped due to overflow.
func (q *MessageQueue) Dropped() uint64 {
	return q.dropped
}

// Broadcast pairs one queued channel message with the membership snapshot
// taken at enqueue time. Fan-out at flush delivers to exactly these
// recipients, so a user who joins after the enqueue never receives the
// message retrospectively and a PRIVMSG never echoes to its sender.
type Broadcast struct {
	Msg        wire.Message
	Recipients []string // canonical nicks
}

// BroadcastQueue is the bounded per-channel outbound queue: the same ring
// semantics as MessageQueue, holding Broadcast entries.
type BroadcastQueue struct {
	buf     []Broadcast
	head    int
	size    int
	dropped uint64
}

// NewBroadcastQueue creates a BroadcastQueue with the given fixed
// capacity.
func NewBroadcastQueue(capacity int) *BroadcastQueue {
	return &BroadcastQueue{buf: make([]Broadcast, capacity)}
}

// Push enqueues a broadcast, dropping the oldest entry if the queue is
// full. PriorityHigh arrivals evict the oldest PriorityNormal entry
// first, as MessageQueue.Push does.
func (q *BroadcastQueue) Push(b Broadcast) {
	if len(q.buf) == 0 {
		return
	}

	if q.size == len(q.buf) {
		q.evictOne(b.Msg.Priority)
	}

	tail := (q.head + q.size) % len(q.buf)
	q.buf[tail] = b
	q.size++
}

func (q *BroadcastQueue) evictOne(p wire.Priority) {
	if p == wire.PriorityHigh {
		for i := 0; i < q.size; i++ {
			if q.buf[(q.head+i)%len(q.buf)].Msg.Priority != wire.PriorityNormal {
				continue
			}
			for j := i; j < q.size-1; j++ {
				q.buf[(q.head+j)%len(q.buf)] = q.buf[(q.head+j+1)%len(q.buf)]
			}
			q.size--
			q.dropped++
			return
		}
	}

	q.head = (q.head + 1) % len(q.buf)
	q.size--
	q.dropped++
}

// Drain removes and returns every broadcast currently queued, in FIFO
// order, leaving the queue empty.
func (q *BroadcastQueue) Drain() []Broadcast {
	if q.size == 0 {
		return nil
	}

	out := make([]Broadcast, 0, q.size)
	for q.size > 0 {
		out = append(out, q.buf[q.head])
		q.head = (q.head + 1) % len(q.buf)
		q.size--
	}
	return out
}

// Len returns the number of broadcasts currently queued.
func (q *BroadcastQueue) Len() int {
	return q.size
}

// Dropped returns the running count of broadcasts dropped due to
// overflow.
func (q *BroadcastQueue) Dropped() uint64 {
	return q.dropped
}
