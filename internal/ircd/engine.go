package ircd

import (
	"github.com/horgh/ircrelay/internal/statemachine"
	"github.com/horgh/ircrelay/internal/wire"
)

// Engine holds the session state and configuration shared by both server
// main-loop variants (server.go's single-threaded core and
// threaded.go's reader-pool/writer-thread core). Neither loop owns
// handler logic; they only differ in how bytes get in and out.
type Engine struct {
	Session *Session

	ServerName  string
	Version     string
	CreatedDate string

	clients map[int]*Client // by fd

	// fdQueues holds replies addressed to a Client that has no User yet:
	// pre-registration errors and the welcome never touch Session, so
	// they queue by fd instead of by nickname.
	fdQueues map[int]*MessageQueue
	readyFds map[int]struct{}

	queueCapacity int
}

// NewEngine creates an Engine around a fresh Session.
func NewEngine(serverName, version, createdDate string, userCap, queueCapacity int) *Engine {
	return &Engine{
		Session:       NewSession(userCap, queueCapacity),
		ServerName:    serverName,
		Version:       version,
		CreatedDate:   createdDate,
		clients:       make(map[int]*Client),
		fdQueues:      make(map[int]*MessageQueue),
		readyFds:      make(map[int]struct{}),
		queueCapacity: queueCapacity,
	}
}

// AddClient registers a newly accepted Client with the engine.
func (e *Engine) AddClient(c *Client) {
	e.clients[c.Fd] = c
	e.fdQueues[c.Fd] = NewMessageQueue(e.queueCapacity)
}

// Client looks up a Client by fd.
func (e *Engine) Client(fd int) (*Client, bool) {
	c, ok := e.clients[fd]
	return c, ok
}

// RemoveClient drops bookkeeping for fd once its connection has fully
// torn down. It does not touch Session state; callers (QUIT/disconnect
// handling) must have already called Session.LeaveAll/UnregisterUser.
func (e *Engine) RemoveClient(fd int) {
	delete(e.clients, fd)
	delete(e.fdQueues, fd)
	delete(e.readyFds, fd)
}

// ClientForUser returns the Client backing a User, via the User's
// connection back-reference.
func (e *Engine) ClientForUser(u *User) (*Client, bool) {
	return e.Client(u.ClientID)
}

// Clients returns every live Client, in no particular order. The slice is
// a copy: callers (the idle check, teardown) may remove clients while
// iterating it.
func (e *Engine) Clients() []*Client {
	out := make([]*Client, 0, len(e.clients))
	for _, c := range e.clients {
		out = append(out, c)
	}
	return out
}

// replyLine builds a Line from this engine's server name as prefix and
// enqueues it to c: to its fd queue if c has no User yet, otherwise to
// its User's OutQueue via the Session (so WHOIS/TOPIC/etc. replies for a
// registered client flow through the same ready-list machinery as
// broadcasts).
func (e *Engine) replyLine(c *Client, l wire.Line) {
	l.Prefix = e.ServerName
	msg, err := l.ToMessage(wire.Response, wire.PriorityNormal)
	if err != nil {
		return
	}

	if c.IsRegistered() {
		e.Session.EnqueueUser(c.RegisteredNick(), msg)
		return
	}

	q, ok := e.fdQueues[c.Fd]
	if !ok {
		return
	}
	q.Push(msg)
	e.readyFds[c.Fd] = struct{}{}
}

// numeric sends a numeric reply to c. The target parameter (nick, or "*"
// before one is known) is prepended automatically, so handlers never
// build the leading display-nick param themselves.
func (e *Engine) numeric(c *Client, code string, params ...string) {
	target := c.Nickname
	if target == "" {
		target = "*"
	}

	body := []string{target}
	trailing := ""
	hasTrailing := len(params) > 0
	if hasTrailing {
		body = append(body, params[:len(params)-1]...)
		trailing = params[len(params)-1]
	}

	e.replyLine(c, wire.Line{
		Command:           code,
		Body:              body,
		Trailing:          trailing,
		HasTrailing:       hasTrailing,
		TrailingHasSpaces: true,
	})
}

// TakeReadyFdMessages drains every fd queue with pending messages,
// returning them grouped by fd. Used by the flush step alongside
// Session.TakeReadyUsers/TakeReadyChannels.
func (e *Engine) TakeReadyFdMessages() map[int][]wire.Message {
	out := make(map[int][]wire.Message, len(e.readyFds))
	for fd := range e.readyFds {
		if q, ok := e.fdQueues[fd]; ok {
			out[fd] = q.Drain()
		}
	}
	e.readyFds = make(map[int]struct{})
	return out
}

// Flush drains every outbound queue, shared by both main-loop variants:
// first the fd queues (replies to unregistered clients), then each ready
// user's queue, then each ready channel's broadcasts -- each entry fanned
// out to the membership snapshot taken at its enqueue. onWriteError is
// invoked with the failing Client; the caller tears the connection down.
func (e *Engine) Flush(onWriteError func(*Client)) {
	for fd, msgs := range e.TakeReadyFdMessages() {
		c, ok := e.Client(fd)
		if !ok {
			continue
		}
		for _, m := range msgs {
			if err := c.Conn.WriteLine(m.Line()); err != nil {
				onWriteError(c)
				break
			}
		}
	}

	for _, u := range e.Session.TakeReadyUsers() {
		c, ok := e.ClientForUser(u)
		if !ok {
			continue
		}
		for _, m := range u.OutQueue.Drain() {
			if err := c.Conn.WriteLine(m.Line()); err != nil {
				onWriteError(c)
				break
			}
		}
	}

	for _, ch := range e.Session.TakeReadyChannels() {
		for _, b := range ch.OutQueue.Drain() {
			for _, nick := range b.Recipients {
				u, ok := e.Session.LookupUser(nick)
				if !ok {
					continue
				}
				c, ok := e.ClientForUser(u)
				if !ok {
					continue
				}
				if err := c.Conn.WriteLine(b.Msg.Line()); err != nil {
					onWriteError(c)
				}
			}
		}
	}
}

// Transition advances c's state using the server-role table, ignoring the
// request (and leaving c's state unchanged) if it is not permitted.
func (e *Engine) Transition(c *Client, to statemachine.State) {
	if next, err := statemachine.ServerTable().Transition(c.State, to); err == nil {
		c.State = next
	}
}
