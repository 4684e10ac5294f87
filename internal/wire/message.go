// Package wire implements the message model and line framing used on the
// wire between clients and the server. It builds on top of
// github.com/horgh/irc's message encode/decode, adding the metadata the
// engine needs to prioritise and route messages once they're off the wire.
package wire

import (
	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// Type classifies a Message for routing and logging purposes. It does not
// affect wire encoding: two messages with different Type but identical
// Command/Params/Prefix encode identically.
type Type int

// Recognised message types.
const (
	// Standard is an ordinary client/server protocol message (NICK, JOIN,
	// PRIVMSG, numerics, ...).
	Standard Type = iota
	// Relay is a message being fanned out to a channel or user queue as a
	// result of some other client's action (PRIVMSG relay, JOIN/PART/QUIT
	// broadcast).
	Relay
	// Signal represents a message synthesized from an OS signal delivered
	// through the self-pipe (see internal/pollset).
	Signal
	// Command represents a message synthesized from a local client command
	// that never touches the wire in this form (e.g. a client's "connect").
	Command
	// Response is a direct reply to the message that produced it (a
	// numeric, an ERROR, ...).
	Response
	// Ping is an outbound keepalive probe.
	Ping
	// Pong is a reply to a keepalive probe.
	Pong
)

// Priority controls queue placement. Higher priority messages are not
// reordered ahead of same-priority messages already queued, but a High
// priority enqueue is permitted to evict the oldest Normal priority entry
// instead of wrapping it out of a full queue.
type Priority int

// Recognised priorities.
const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// MaxContentLength is the largest a Message's Content may be, matching the
// wire protocol's 512 byte line limit.
const MaxContentLength = irc.MaxLineLength

// Message is a value-typed, copyable record describing one protocol
// message plus the metadata the routing engine uses to decide how and
// when to deliver it. It carries no ownership of other entities: a
// Message knows nothing about the User or Channel it ends up queued on.
type Message struct {
	// Content is the encoded line without the trailing separator, e.g.
	// ":nick!user@host PRIVMSG #chan :hi". Bounded to MaxContentLength.
	Content string

	// Separator terminates a frame on the wire. It is "\r\n" once a
	// Message is ready to send, or empty when the Content was built
	// without one; Line appends the full form in that case.
	Separator string

	Type     Type
	Priority Priority
}

// CRLF is the wire line terminator.
const CRLF = "\r\n"

// NewMessage builds a Message of the given type from an irc.Message,
// encoding it immediately so later queueing operations never fail.
func NewMessage(m irc.Message, t Type, p Priority) (Message, error) {
	encoded, err := m.Encode()
	if err != nil && errors.Cause(err) != irc.ErrTruncated {
		return Message{}, errors.Wrap(err, "encoding message")
	}

	// Encode already appends CRLF; split it back out so Content never
	// carries the separator twice if something re-encodes it.
	content := encoded
	sep := ""
	if len(content) >= 2 && content[len(content)-2:] == CRLF {
		content = content[:len(content)-2]
		sep = CRLF
	}

	return Message{
		Content:   content,
		Separator: sep,
		Type:      t,
		Priority:  p,
	}, nil
}

// Line returns the full wire representation, appending the separator if
// the caller's Message didn't already carry one.
func (m Message) Line() string {
	if m.Separator != "" {
		return m.Content + m.Separator
	}
	return m.Content + CRLF
}

// Decode parses a raw wire line (with its trailing CRLF) into a Message of
// type Standard. Only the re-encoded Content is kept; ToIRC re-parses it
// when structured access is needed.
func Decode(line string) (Message, error) {
	parsed, err := irc.ParseMessage(line)
	if err != nil {
		return Message{}, errors.Wrap(err, "parsing protocol message")
	}

	return NewMessage(parsed, Standard, PriorityNormal)
}

// ToIRC re-parses Content back into an irc.Message for handlers that need
// structured access to Prefix/Command/Params. Returned separately from
// Decode so callers that only need to relay a Message byte-for-byte never
// pay the parsing cost twice over.
func (m Message) ToIRC() (irc.Message, error) {
	parsed, err := irc.ParseMessage(m.Content + CRLF)
	if err != nil {
		return irc.Message{}, errors.Wrap(err, "re-parsing message content")
	}
	return parsed, nil
}
