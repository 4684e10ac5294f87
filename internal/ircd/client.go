package ircd

import (
	"time"

	"github.com/horgh/ircrelay/internal/statemachine"
	"github.com/horgh/ircrelay/internal/wire"
)

// IdentifierKind distinguishes a Client's Identifier as a resolved
// hostname from a bare IP literal, the fallback when reverse lookup
// isn't available.
type IdentifierKind int

// Recognised identifier kinds.
const (
	IdentifierHostname IdentifierKind = iota
	IdentifierIP
)

// ClientConn is the minimum a Client needs from its underlying
// connection to write a line and tear down. The single-threaded core
// (server.go) and the threaded variant (threaded.go) both supply
// netConnWriter (server.go) over the accepted net.Conn, so handlers.go and
// Client never need to know which I/O model is active.
type ClientConn interface {
	WriteLine(line string) error
	Close() error
}

// Client is the per-connection record: one per accepted connection,
// created on accept and destroyed on disconnect. It is mutated only by
// the I/O layer and the command handlers operating on its Fd.
type Client struct {
	Fd int

	Nickname       string
	Identifier     string
	IdentifierKind IdentifierKind
	Port           int

	Framer wire.Framer
	State  statemachine.State

	Conn ClientConn

	// LastActivity is the time bytes last arrived from this connection.
	// The System.Timer tick compares it against the configured wait time
	// to close registration-incomplete clients and PING idle registered
	// ones. PingSent records that a keepalive PING is outstanding; a
	// read clears it.
	LastActivity time.Time
	PingSent     bool

	// registeredNick is the nickname key under which a User exists for
	// this Client, once registration completes. Empty before that.
	registeredNick string
}

// NewClient creates a Client in the Connected state: a Client only
// exists once accept(2) has already produced a live socket, so the
// Disconnected state never applies on the server side.
func NewClient(fd int, identifier string, kind IdentifierKind, port int, conn ClientConn) *Client {
	return &Client{
		Fd:             fd,
		Identifier:     identifier,
		IdentifierKind: kind,
		Port:           port,
		Conn:           conn,
		State:          statemachine.Connected,
		LastActivity:   time.Now(),
	}
}

// IsRegistered reports whether this Client has a completed User
// registration.
func (c *Client) IsRegistered() bool {
	return c.registeredNick != ""
}

// SetRegisteredNick records the nickname this Client's User is
// registered under, or clears it (empty string) on QUIT/disconnect.
func (c *Client) SetRegisteredNick(nick string) {
	c.registeredNick = nick
}

// RegisteredNick returns the nickname this Client's User is registered
// under, or "" if none.
func (c *Client) RegisteredNick() string {
	return c.registeredNick
}
