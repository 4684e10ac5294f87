// Server (this file) implements the single-threaded TCP main loop, built
// directly on internal/pollset, internal/fdreg, and internal/evqueue.
// One tick of Server.Run is: poll over {listener, self-pipe, clients},
// accept, read and frame, dispatch events, flush outbound queues.
package ircd

import (
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/horgh/ircrelay/internal/evqueue"
	"github.com/horgh/ircrelay/internal/fdreg"
	"github.com/horgh/ircrelay/internal/pollset"
	"github.com/horgh/ircrelay/internal/statemachine"
	"github.com/horgh/ircrelay/internal/wire"
	"github.com/pkg/errors"
)

// Server is the single-threaded, non-blocking core.
type Server struct {
	Engine *Engine

	ln       net.Listener
	listenFd int

	poll     *pollset.PollSet
	fds      *fdreg.Registry
	queue    *evqueue.Queue
	dispatch *evqueue.Dispatcher
	self     *pollset.SelfPipe

	waitTime time.Duration
	idleWait time.Duration

	lastTick      time.Time
	exitRequested bool
}

// ServerConfig carries what NewServer needs to bind and size the core.
type ServerConfig struct {
	ListenHost    string
	ListenPort    string
	ServerName    string
	Version       string
	CreatedDate   string
	UserCap       int
	WaitTime      time.Duration
	QueueCapacity int
	FdCapacity    int
}

// NewServer builds a Server bound to the given listening address, with
// its epoll instance, fd registry, event queue/dispatcher, and self-pipe
// all created.
func NewServer(cfg ServerConfig) (*Server, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.ListenHost, cfg.ListenPort))
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return nil, errors.New("listener is not a TCP listener")
	}
	listenFd, err := pollset.Fd(tcpLn)
	if err != nil {
		_ = ln.Close()
		return nil, errors.Wrap(err, "getting listener fd")
	}

	ps, err := pollset.New()
	if err != nil {
		_ = ln.Close()
		return nil, err
	}

	self, err := pollset.NewSelfPipe()
	if err != nil {
		_ = ln.Close()
		return nil, err
	}

	fds := fdreg.New(cfg.FdCapacity)
	if _, err := fds.Assign(listenFd, nil); err != nil {
		return nil, errors.Wrap(err, "assigning listener slot")
	}
	if _, err := fds.Assign(self.ReadFd(), nil); err != nil {
		return nil, errors.Wrap(err, "assigning self-pipe slot")
	}

	if err := ps.SetPollFd(listenFd); err != nil {
		return nil, err
	}
	if err := ps.SetPollFd(self.ReadFd()); err != nil {
		return nil, err
	}

	q := evqueue.NewQueue(1024)

	s := &Server{
		Engine:   NewEngine(cfg.ServerName, cfg.Version, cfg.CreatedDate, cfg.UserCap, cfg.QueueCapacity),
		ln:       ln,
		listenFd: listenFd,
		poll:     ps,
		fds:      fds,
		queue:    q,
		dispatch: evqueue.NewDispatcher(q),
		self:     self,
		waitTime: cfg.WaitTime,
		idleWait: cfg.WaitTime,
		lastTick: time.Now(),
	}

	s.registerHandlers()
	return s, nil
}

// registerHandlers wires the dispatcher's per-(kind,subkind) handlers.
func (s *Server) registerHandlers() {
	s.dispatch.On(evqueue.Network, evqueue.ClientConnect, func(e evqueue.Event) {
		if c, ok := s.Engine.Client(e.DataInt); ok {
			log.Printf("Client connected from %s:%d (fd %d)", c.Identifier, c.Port, c.Fd)
		}
	})
	s.dispatch.On(evqueue.Network, evqueue.ClientMsg, s.onClientMsg)
	s.dispatch.On(evqueue.Network, evqueue.PeerClose, s.onPeerClose)
	s.dispatch.On(evqueue.System, evqueue.Timer, func(evqueue.Event) { s.checkIdleClients() })
	s.dispatch.On(evqueue.System, evqueue.Exit, func(evqueue.Event) { s.exitRequested = true })
}

// Addr reports the listener's bound address, for callers that asked for
// port 0.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Run executes the main loop until System.Exit fires or an
// unrecoverable poll error occurs. It closes all fds before returning.
func (s *Server) Run() error {
	defer s.teardown()

	// Signals reach the poll loop through the self-pipe: the runtime's
	// signal goroutine only ever writes a short token into the pipe, and
	// all interpretation happens in drainSelfPipe on the loop goroutine.
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			s.self.Notify(pollset.TokenSigint)
		}
	}()

	for {
		ready, err := s.poll.Wait(1000)
		if err != nil {
			return err
		}

		for _, r := range ready {
			switch r.Fd {
			case s.listenFd:
				s.acceptOne()
			case s.self.ReadFd():
				s.drainSelfPipe()
			default:
				s.readClient(r.Fd, r.Error)
			}
		}

		if time.Since(s.lastTick) >= time.Second {
			s.queue.Push(evqueue.Event{Kind: evqueue.System, SubKind: evqueue.Timer})
			s.lastTick = time.Now()
		}

		s.dispatch.Drain()
		s.flush()

		if s.exitRequested {
			return nil
		}
	}
}

func (s *Server) acceptOne() {
	conn, err := s.ln.Accept()
	if err != nil {
		log.Printf("accept: %s", err)
		return
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return
	}

	fd, err := pollset.Fd(tcpConn)
	if err != nil {
		log.Printf("client fd: %s", err)
		_ = conn.Close()
		return
	}

	host, portStr, _ := net.SplitHostPort(conn.RemoteAddr().String())
	port, _ := strconv.Atoi(portStr)

	c := NewClient(fd, host, IdentifierIP, port, &netConnWriter{conn: conn})

	if _, err := s.fds.Assign(fd, c); err != nil {
		log.Printf("fd table full, rejecting connection: %s", err)
		_ = conn.Close()
		return
	}
	if err := s.poll.SetPollFd(fd); err != nil {
		log.Printf("poll add: %s", err)
		_ = s.fds.Remove(fd)
		_ = conn.Close()
		return
	}

	s.Engine.AddClient(c)

	s.queue.Push(evqueue.Event{Kind: evqueue.Network, SubKind: evqueue.ClientConnect, DataInt: fd})
}

func (s *Server) readClient(fd int, hadError bool) {
	c, ok := s.Engine.Client(fd)
	if !ok {
		return
	}

	if hadError {
		s.teardownClient(c, "Connection reset")
		return
	}

	buf := make([]byte, 4096)
	n, readOK, err := pollset.Read(fd, buf)
	if err != nil {
		s.teardownClient(c, "Read error")
		return
	}
	if !readOK {
		return
	}
	if n == 0 {
		s.teardownClient(c, "EOF")
		return
	}

	c.LastActivity = time.Now()
	c.PingSent = false

	frames, ferr := c.Framer.Feed(buf[:n])
	for _, frame := range frames {
		// "fd|frame", keeping Event.Data a single string field rather
		// than using both DataInt and DataStr at once.
		s.queue.Push(evqueue.Event{
			Kind:     evqueue.Network,
			SubKind:  evqueue.ClientMsg,
			DataKind: evqueue.DataString,
			DataStr:  strconv.Itoa(fd) + "|" + frame,
		})
	}
	if ferr != nil {
		log.Printf("client %d: %s", fd, ferr)
	}
}

func (s *Server) onClientMsg(e evqueue.Event) {
	idx := strings.IndexByte(e.DataStr, '|')
	if idx == -1 {
		return
	}
	fd, err := strconv.Atoi(e.DataStr[:idx])
	if err != nil {
		return
	}

	c, ok := s.Engine.Client(fd)
	if !ok {
		return
	}
	s.Engine.HandleLine(c, e.DataStr[idx+1:])

	// QUIT (and a handler-forced disconnect) leaves the client in the
	// Disconnected state with its Session side already cleaned up; the
	// socket teardown happens here, on the loop.
	if c.State == statemachine.Disconnected {
		s.teardownClient(c, "Client quit")
	}
}

func (s *Server) onPeerClose(e evqueue.Event) {
	c, ok := s.Engine.Client(e.DataInt)
	if !ok {
		return
	}
	s.teardownClient(c, "Connection closed")
}

// checkIdleClients closes registration-incomplete clients idle past
// waitTime and PINGs idle registered ones, closing those whose PING goes
// unanswered for another waitTime.
func (s *Server) checkIdleClients() {
	now := time.Now()
	for _, c := range s.Engine.Clients() {
		idle := now.Sub(c.LastActivity)

		if !c.IsRegistered() {
			if idle >= s.waitTime {
				s.teardownClient(c, "Registration timeout")
			}
			continue
		}

		if c.PingSent {
			if idle >= 2*s.idleWait {
				s.teardownClient(c, "Ping timeout")
			}
			continue
		}

		if idle >= s.idleWait {
			ping, err := wire.Line{
				Command:           "PING",
				Trailing:          s.Engine.ServerName,
				HasTrailing:       true,
				TrailingHasSpaces: true,
			}.ToMessage(wire.Ping, wire.PriorityHigh)
			if err != nil {
				continue
			}
			s.Engine.Session.EnqueueUser(c.RegisteredNick(), ping)
			c.PingSent = true
		}
	}
}

func (s *Server) teardownClient(c *Client, reason string) {
	if c.IsRegistered() {
		u, _ := s.Engine.Session.LookupUser(c.RegisteredNick())
		quitMsg, _ := wire.Line{
			Prefix:      u.NickUhost(),
			Command:     "QUIT",
			Trailing:    reason,
			HasTrailing: true,
		}.ToMessage(wire.Relay, wire.PriorityNormal)
		s.Engine.Session.LeaveAll(u, quitMsg)
		s.Engine.Session.UnregisterUser(u.Nickname)
	}

	_ = s.poll.UnsetPollFd(c.Fd)
	_ = s.fds.Remove(c.Fd)
	_ = c.Conn.Close()
	s.Engine.RemoveClient(c.Fd)
}

// flush drains every outbound queue for this tick, tearing down any
// connection whose write fails.
func (s *Server) flush() {
	s.Engine.Flush(func(c *Client) {
		s.teardownClient(c, "Write error")
	})
}

func (s *Server) drainSelfPipe() {
	tokens, err := s.self.Drain()
	if err != nil {
		log.Printf("self-pipe: %s", err)
	}
	for _, tok := range tokens {
		switch tok {
		case pollset.TokenSigint:
			s.queue.Push(evqueue.Event{Kind: evqueue.System, SubKind: evqueue.Exit})
		case pollset.TokenAlarm:
			s.queue.Push(evqueue.Event{Kind: evqueue.System, SubKind: evqueue.Timer})
		case pollset.TokenWinch:
			s.queue.Push(evqueue.Event{Kind: evqueue.UI, SubKind: evqueue.WinResize})
		}
	}
}

// teardown closes every client connection, the listener, the epoll
// instance, and the self-pipe.
func (s *Server) teardown() {
	for _, c := range s.Engine.Clients() {
		_ = c.Conn.Close()
		s.Engine.RemoveClient(c.Fd)
	}
	_ = s.poll.Close()
	_ = s.self.Close()
	_ = s.ln.Close()
}

// netConnWriter adapts a net.Conn to ClientConn, appending CRLF if a
// caller handed it a bare line.
type netConnWriter struct {
	conn net.Conn
}

func (w *netConnWriter) WriteLine(line string) error {
	if len(line) < 2 || line[len(line)-2:] != wire.CRLF {
		line += wire.CRLF
	}
	_, err := w.conn.Write([]byte(line))
	return err
}

func (w *netConnWriter) Close() error {
	return w.conn.Close()
}
