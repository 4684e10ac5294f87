// ThreadedServer (this file) implements the optional worker-pool server
// variant: reader goroutines own the accepted connections' read sides,
// and a dedicated writer goroutine registers connections, runs handlers,
// and owns flushing.
package ircd

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/horgh/ircrelay/internal/statemachine"
	"github.com/horgh/ircrelay/internal/wire"
)

// clientMsg pairs a Client with one parsed frame, the unit of handoff
// from a reader goroutine to the writer goroutine.
type clientMsg struct {
	client *Client
	line   string
}

// ThreadedServer runs reader goroutines plus one writer goroutine, all
// driving the same Engine. Session access is serialized onto the writer
// goroutine's single command-processing loop: sole ownership of all
// mutable state on one goroutine, with readers communicating over
// channels, is simpler and deadlock-free compared to a lock hierarchy.
type ThreadedServer struct {
	Engine *Engine

	ln net.Listener

	workers int

	messages chan clientMsg
	connects chan *threadedClient
	closes   chan *Client

	quit chan struct{}
	wg   sync.WaitGroup

	tickInterval time.Duration
	waitTime     time.Duration
}

// threadedClient bundles a newly accepted net.Conn with the id assigned
// to it, for handoff from the accept goroutine to the registration step
// on the writer goroutine.
type threadedClient struct {
	conn net.Conn
	id   uint64
}

// NewThreadedServer builds a ThreadedServer bound to the given address.
func NewThreadedServer(cfg ServerConfig, workers int) (*ThreadedServer, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.ListenHost, cfg.ListenPort))
	if err != nil {
		return nil, err
	}

	return &ThreadedServer{
		Engine:       NewEngine(cfg.ServerName, cfg.Version, cfg.CreatedDate, cfg.UserCap, cfg.QueueCapacity),
		ln:           ln,
		workers:      workers,
		messages:     make(chan clientMsg, 1024),
		connects:     make(chan *threadedClient, 64),
		closes:       make(chan *Client, 64),
		quit:         make(chan struct{}),
		tickInterval: time.Second,
		waitTime:     cfg.WaitTime,
	}, nil
}

// Addr reports the listener's bound address, for callers that asked for
// port 0.
func (t *ThreadedServer) Addr() net.Addr {
	return t.ln.Addr()
}

// Run starts the accept loop, the writer goroutine, and blocks until
// Stop is called. Accept errors are logged and accepting continues; they
// do not end Run. After Stop, Run also waits for every reader goroutine,
// each of which returns once its connection's read fails.
func (t *ThreadedServer) Run() error {
	t.wg.Add(1)
	go t.acceptLoop()

	t.wg.Add(1)
	go t.tickLoop()

	t.writerLoop() // the calling goroutine IS the writer thread
	t.wg.Wait()
	return nil
}

// Stop requests a clean shutdown: the accept loop and ticker exit, and
// the writer loop drains one more time before returning.
func (t *ThreadedServer) Stop() {
	close(t.quit)
	_ = t.ln.Close()
}

// acceptLoop owns the listening socket: it performs accept(2) and hands
// the connection off to the writer goroutine for registration.
func (t *ThreadedServer) acceptLoop() {
	defer t.wg.Done()

	var nextID uint64
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			select {
			case <-t.quit:
				return
			default:
				log.Printf("accept: %s", err)
				continue
			}
		}

		nextID++
		tc := &threadedClient{conn: conn, id: nextID}

		select {
		case t.connects <- tc:
		case <-t.quit:
			_ = conn.Close()
			return
		}
	}
}

// tickLoop wakes the writer loop periodically over the messages channel,
// using the zero clientMsg as a tick sentinel the writer can distinguish
// from a real message.
func (t *ThreadedServer) tickLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case t.messages <- clientMsg{}: // zero value is the tick sentinel
			case <-t.quit:
				return
			}
		case <-t.quit:
			return
		}
	}
}

// readerLoop is one per connection rather than one per configured
// worker: Go's scheduler already multiplexes goroutines onto OS threads,
// so there is nothing for a hand-rolled fd-partitioning layer to add.
func (t *ThreadedServer) readerLoop(c *Client, conn net.Conn) {
	defer t.wg.Done()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			select {
			case t.closes <- c:
			case <-t.quit:
			}
			return
		}

		frames, ferr := c.Framer.Feed(buf[:n])
		for _, frame := range frames {
			select {
			case t.messages <- clientMsg{client: c, line: frame}:
			case <-t.quit:
				return
			}
		}
		if ferr != nil {
			log.Printf("client %d: %s", c.Fd, ferr)
		}
	}
}

// writerLoop is the dedicated writer goroutine: it owns queue-side
// operations, registers new connections, unregisters closed ones, runs
// the handler for each inbound message, and flushes outbound queues
// every iteration. Running handlers here too (rather than on the reader
// goroutines) is what gives Session single-writer semantics without an
// explicit mutex.
func (t *ThreadedServer) writerLoop() {
	for {
		select {
		case tc := <-t.connects:
			t.register(tc)

		case c := <-t.closes:
			t.teardown(c, "Connection closed")
			t.flush()

		case m := <-t.messages:
			if m.client == nil {
				// Tick sentinel from tickLoop.
				t.checkIdle()
			} else {
				m.client.LastActivity = time.Now()
				m.client.PingSent = false
				t.Engine.HandleLine(m.client, m.line)
				if m.client.State == statemachine.Disconnected {
					t.teardown(m.client, "Client quit")
				}
			}
			t.flush()

		case <-t.quit:
			t.flush()
			return
		}
	}
}

func (t *ThreadedServer) register(tc *threadedClient) {
	host, _, _ := net.SplitHostPort(tc.conn.RemoteAddr().String())

	c := NewClient(int(tc.id), host, IdentifierIP, 0, &netConnWriter{conn: tc.conn})
	t.Engine.AddClient(c)

	t.wg.Add(1)
	go t.readerLoop(c, tc.conn)
}

func (t *ThreadedServer) teardown(c *Client, reason string) {
	if c.IsRegistered() {
		u, ok := t.Engine.Session.LookupUser(c.RegisteredNick())
		if ok {
			quitMsg, _ := wire.Line{
				Prefix:      u.NickUhost(),
				Command:     "QUIT",
				Trailing:    reason,
				HasTrailing: true,
			}.ToMessage(wire.Relay, wire.PriorityNormal)
			t.Engine.Session.LeaveAll(u, quitMsg)
			t.Engine.Session.UnregisterUser(u.Nickname)
		}
	}

	_ = c.Conn.Close()
	t.Engine.RemoveClient(c.Fd)
}

// checkIdle mirrors Server.checkIdleClients: registration-incomplete
// clients idle past waitTime are closed, idle registered ones get a
// keepalive PING, and an unanswered PING closes the connection. It runs
// on the writer goroutine, which is the only goroutine that reads
// LastActivity/PingSent, so no locking is needed.
func (t *ThreadedServer) checkIdle() {
	now := time.Now()
	for _, c := range t.Engine.Clients() {
		idle := now.Sub(c.LastActivity)

		if !c.IsRegistered() {
			if idle >= t.waitTime {
				t.teardown(c, "Registration timeout")
			}
			continue
		}

		if c.PingSent {
			if idle >= 2*t.waitTime {
				t.teardown(c, "Ping timeout")
			}
			continue
		}

		if idle >= t.waitTime {
			ping, err := wire.Line{
				Command:           "PING",
				Trailing:          t.Engine.ServerName,
				HasTrailing:       true,
				TrailingHasSpaces: true,
			}.ToMessage(wire.Ping, wire.PriorityHigh)
			if err != nil {
				continue
			}
			t.Engine.Session.EnqueueUser(c.RegisteredNick(), ping)
			c.PingSent = true
		}
	}
}

// flush mirrors Server.flush: the writer goroutine is the only place
// that ever calls it, so no
// additional locking is required despite queues conceptually being
// "shared" with the reader goroutines (readers only ever push frames
// onto t.messages, never touch a User/Channel queue directly).
func (t *ThreadedServer) flush() {
	t.Engine.Flush(func(c *Client) {
		t.teardown(c, "Write error")
	})
}
