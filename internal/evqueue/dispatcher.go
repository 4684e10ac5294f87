package evqueue

// Handler processes one Event. Dispatch is strictly single-threaded on
// the goroutine that owns the Dispatcher's Queue.
type Handler func(Event)

type handlerKey struct {
	kind    Kind
	subKind SubKind
}

// Dispatcher drains a Queue and routes each Event to the handler
// registered for its (Kind, SubKind), falling back to a per-Kind base
// handler if one was registered and no specific handler matches.
type Dispatcher struct {
	queue    *Queue
	handlers map[handlerKey]Handler
	base     map[Kind]Handler
}

// NewDispatcher creates a Dispatcher draining the given Queue.
func NewDispatcher(q *Queue) *Dispatcher {
	return &Dispatcher{
		queue:    q,
		handlers: make(map[handlerKey]Handler),
		base:     make(map[Kind]Handler),
	}
}

// On registers a handler for a specific (kind, subKind) pair. Registering
// again for the same pair replaces the previous handler.
func (d *Dispatcher) On(kind Kind, subKind SubKind, h Handler) {
	d.handlers[handlerKey{kind, subKind}] = h
}

// OnKind registers a fallback handler invoked when no specific (kind,
// subKind) handler is registered for an event of this Kind.
func (d *Dispatcher) OnKind(kind Kind, h Handler) {
	d.base[kind] = h
}

// Drain dispatches every event currently queued, returning the count
// handled. It does not block: events pushed to the queue by a handler
// invoked during this Drain are themselves drained within the same call.
func (d *Dispatcher) Drain() int {
	n := 0
	for {
		e, ok := d.queue.Pop()
		if !ok {
			return n
		}
		d.dispatch(e)
		n++
	}
}

func (d *Dispatcher) dispatch(e Event) {
	if h, ok := d.handlers[handlerKey{e.Kind, e.SubKind}]; ok {
		h(e)
		return
	}
	if h, ok := d.base[e.Kind]; ok {
		h(e)
	}
}
