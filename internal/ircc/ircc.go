// Package ircc implements the terminal client's session/state-machine
// half. The windowing/rendering side lives behind the UI interface
// ("give me one input line" / "display this formatted line"); this
// package only drives the client-role state machine, parses
// locally-typed commands via internal/command, and frames/unframes the
// wire protocol via internal/wire.
package ircc

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/horgh/ircrelay/internal/command"
	"github.com/horgh/ircrelay/internal/statemachine"
	"github.com/horgh/ircrelay/internal/wire"
)

// UI is the minimal surface this package needs from a terminal front
// end: read one line the user typed, and display one already-formatted
// line. Nothing here assumes a particular rendering technology.
type UI interface {
	ReadLine() (string, error)
	Display(line string)
}

// Client drives one terminal session: local command parsing, the
// client-role state machine, and the socket to the server. It owns
// nothing the UI needs to know about beyond the UI interface above.
type Client struct {
	ui UI

	nick string
	user string

	address string
	port    string

	conn net.Conn

	state statemachine.State
}

// New creates a Client in the Disconnected state, with address/port
// defaulted from configuration; the "address" and "port" pre-connect
// commands override these.
func New(ui UI, address, port, nick string) *Client {
	return &Client{
		ui:      ui,
		address: address,
		port:    port,
		nick:    nick,
		user:    nick,
		state:   statemachine.Disconnected,
	}
}

// Run reads lines from the UI until it returns an error (EOF, closed
// input) or the user issues "quit", dispatching each to handleInput.
func (c *Client) Run() error {
	for {
		line, err := c.ui.ReadLine()
		if err != nil {
			c.disconnect()
			return err
		}

		if !c.handleInput(line) {
			return nil
		}
	}
}

// handleInput parses and dispatches one input line. It returns false if
// the session should end (a successful "quit").
func (c *Client) handleInput(line string) bool {
	cmd, ok := command.Parse(line)
	if !ok {
		return true
	}

	name := strings.ToLower(cmd.Name)

	if !statemachine.ClientTable().Allows(c.state, name) {
		c.ui.Display(fmt.Sprintf("* %s is not available in state %s", name, c.state))
		return true
	}

	switch name {
	case "help":
		c.helpCommand()
	case "connect":
		c.connectCommand()
	case "disconnect":
		c.disconnectCommand()
	case "address":
		c.addressCommand(cmd)
	case "port":
		c.portCommand(cmd)
	case "nick":
		c.nickCommand(cmd)
	case "user":
		c.userCommand(cmd)
	case "join":
		c.joinCommand(cmd)
	case "part":
		c.partCommand(cmd)
	case "privmsg", "msg":
		c.privmsgCommand(cmd)
	case "whois":
		c.whoisCommand(cmd)
	case "quit":
		c.quitCommand(cmd)
		return false
	default:
		c.ui.Display(fmt.Sprintf("* Unknown command: %s", cmd.Name))
	}

	return true
}

// helpCommand lists the commands admissible from the current state,
// read directly off the same table Allows checks against -- so help
// never drifts out of sync with what is actually permitted.
func (c *Client) helpCommand() {
	allowed := statemachine.ClientTable().AllowedCommands(c.state)
	c.ui.Display(fmt.Sprintf("* Available commands: %s", strings.Join(allowed, ", ")))
}

// addressCommand sets the server address to dial on the next "connect".
func (c *Client) addressCommand(cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) == 0 {
		c.ui.Display(fmt.Sprintf("* Address: %s", c.address))
		return
	}
	c.address = args[0]
	c.ui.Display(fmt.Sprintf("* Address set to %s", c.address))
}

// portCommand sets the server port to dial on the next "connect".
func (c *Client) portCommand(cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) == 0 {
		c.ui.Display(fmt.Sprintf("* Port: %s", c.port))
		return
	}
	c.port = args[0]
	c.ui.Display(fmt.Sprintf("* Port set to %s", c.port))
}

// connectCommand dials the configured address/port and transitions
// Disconnected -> Connected.
func (c *Client) connectCommand() {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(c.address, c.port), 10*time.Second)
	if err != nil {
		c.ui.Display(fmt.Sprintf("* Connect failed: %s", err))
		return
	}

	c.conn = conn
	if next, err := statemachine.ClientTable().Transition(c.state, statemachine.Connected); err == nil {
		c.state = next
	}

	c.ui.Display(fmt.Sprintf("* Connected to %s", conn.RemoteAddr()))

	go c.readLoop(conn)
}

// disconnectCommand tears down the socket and transitions back to
// Disconnected, matching the server-side QUIT teardown shape but driven
// locally instead of by a server-sent message.
func (c *Client) disconnectCommand() {
	c.disconnect()
}

func (c *Client) disconnect() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if next, err := statemachine.ClientTable().Transition(c.state, statemachine.Disconnected); err == nil {
		c.state = next
	}
}

// nickCommand records the nickname locally (for StartRegistration ->
// Registered's USER to reference) and, once connected, sends a wire
// NICK.
func (c *Client) nickCommand(cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) == 0 {
		c.ui.Display("* Usage: nick <nickname>")
		return
	}
	c.nick = args[0]

	if c.conn == nil {
		return
	}
	c.sendLine(wire.Line{Command: "NICK", Body: []string{c.nick}})

	// Sending the nickname is what starts registration (Connected ->
	// StartRegistration), making "user" admissible.
	if next, err := statemachine.ClientTable().Transition(c.state, statemachine.StartRegistration); err == nil {
		c.state = next
	}
}

// userCommand sends the wire USER command that completes registration,
// then locally transitions StartRegistration -> Registered
// optimistically; the server's RPL_WELCOME is the real confirmation.
func (c *Client) userCommand(cmd command.Command) {
	if c.conn == nil {
		c.ui.Display("* Not connected")
		return
	}

	real := c.nick
	if args := cmd.AllArgs(); len(args) > 0 {
		real = args[0]
	}

	c.sendLine(wire.Line{
		Command:     "USER",
		Body:        []string{c.nick, "0", "*"},
		Trailing:    real,
		HasTrailing: true,
	})

	if next, err := statemachine.ClientTable().Transition(c.state, statemachine.Registered); err == nil {
		c.state = next
	}
}

func (c *Client) joinCommand(cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) == 0 {
		c.ui.Display("* Usage: join <#channel>")
		return
	}
	c.sendLine(wire.Line{Command: "JOIN", Body: []string{args[0]}})
	if next, err := statemachine.ClientTable().Transition(c.state, statemachine.InChannel); err == nil {
		c.state = next
	}
}

func (c *Client) partCommand(cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) == 0 {
		c.ui.Display("* Usage: part <#channel>")
		return
	}
	c.sendLine(wire.Line{Command: "PART", Body: []string{args[0]}})
	if next, err := statemachine.ClientTable().Transition(c.state, statemachine.Registered); err == nil {
		c.state = next
	}
}

// privmsgCommand implements both "privmsg" and its "msg" alias: msg is
// simply another label for the same handler, and the on-wire form is
// always PRIVMSG.
func (c *Client) privmsgCommand(cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) < 2 {
		c.ui.Display("* Usage: privmsg <target> <message>")
		return
	}
	c.sendLine(wire.Line{
		Command:     "PRIVMSG",
		Body:        []string{args[0]},
		Trailing:    strings.Join(args[1:], " "),
		HasTrailing: true,
	})
}

func (c *Client) whoisCommand(cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) == 0 {
		c.ui.Display("* Usage: whois <nick>")
		return
	}
	c.sendLine(wire.Line{Command: "WHOIS", Body: []string{args[0]}})
}

func (c *Client) quitCommand(cmd command.Command) {
	msg := "Leaving"
	if args := cmd.AllArgs(); len(args) > 0 {
		msg = args[0]
	}
	if c.conn != nil {
		c.sendLine(wire.Line{Command: "QUIT", Trailing: msg, HasTrailing: true})
	}
	c.disconnect()
}

// sendLine encodes and writes one line, surfacing a write failure to
// the UI and tearing the connection down the same way a read failure
// does.
func (c *Client) sendLine(l wire.Line) {
	msg, err := l.ToMessage(wire.Standard, wire.PriorityNormal)
	if err != nil {
		c.ui.Display(fmt.Sprintf("* %s", err))
		return
	}
	if _, err := c.conn.Write([]byte(msg.Line())); err != nil {
		c.ui.Display(fmt.Sprintf("* Write failed: %s", err))
		c.disconnect()
	}
}

// readLoop runs on its own goroutine, reading and displaying every line
// the server sends until the connection closes.
func (c *Client) readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		raw, err := reader.ReadString('\n')
		if raw != "" {
			if msg, derr := wire.Decode(raw); derr == nil {
				c.ui.Display(formatForDisplay(msg))
			}
		}
		if err != nil {
			c.ui.Display("* Disconnected")
			return
		}
	}
}

// formatForDisplay strips the wire framing down to what a user expects
// to read, deferring any richer formatting (colours, timestamps) to the
// UI layer.
func formatForDisplay(m wire.Message) string {
	return m.Content
}
