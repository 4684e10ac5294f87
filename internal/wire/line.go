package wire

import (
	"strings"

	"github.com/horgh/irc"
)

// Line is a protocol line in structured form: a prefix, a sequence of
// body tokens, and an optional trailing argument. Assembling
// one and calling Build hands you an irc.Message ready for Encode; this
// type exists so callers never hand-build "prefix + body + trailing"
// strings themselves and get the ":"-prefixing and joining rules wrong.
type Line struct {
	// Prefix is emitted as ":prefix" before the command, if non-empty.
	Prefix string

	// Command is the IRC command or three-digit numeric.
	Command string

	// Body holds the non-trailing parameters, joined by single spaces.
	Body []string

	// Trailing is the last parameter, if any.
	Trailing string

	// HasTrailing distinguishes "no trailing parameter" from "trailing
	// parameter is the empty string" (both are representable on the wire,
	// and the latter matters for things like an unset TOPIC).
	HasTrailing bool

	// TrailingHasSpaces forces the trailing parameter to be emitted with
	// a leading ':' even when it happens not to contain a space or start
	// with ':'. irc.Message.Encode already adds ':' automatically in both
	// of those cases, so this is only needed to force it for an otherwise
	// plain-looking trailing argument.
	TrailingHasSpaces bool
}

// Build assembles the Line into an irc.Message. The final CRLF is not
// included; Message.Line (or irc.Message.Encode) adds it.
func (l Line) Build() irc.Message {
	params := make([]string, 0, len(l.Body)+1)
	params = append(params, l.Body...)

	if l.HasTrailing {
		params = append(params, l.Trailing)
	}

	return irc.Message{
		Prefix:  l.Prefix,
		Command: l.Command,
		Params:  params,
	}
}

// ToMessage builds the Line and wraps it as a routable wire.Message of the
// given type/priority. irc.Message.Encode only emits the trailing ':' when
// the last parameter contains a space, starts with ':', or is empty;
// TrailingHasSpaces forces it onto a plain single-word trailing argument
// too, which Encode has no way to express, so the ':' is spliced in after
// encoding.
func (l Line) ToMessage(t Type, p Priority) (Message, error) {
	m, err := NewMessage(l.Build(), t, p)
	if err != nil {
		return Message{}, err
	}

	if l.forcesColon() && strings.HasSuffix(m.Content, " "+l.Trailing) {
		m.Content = m.Content[:len(m.Content)-len(l.Trailing)] + ":" + l.Trailing
	}

	return m, nil
}

// forcesColon reports whether the trailing argument needs a ':' that
// Encode will not add on its own.
func (l Line) forcesColon() bool {
	return l.HasTrailing && l.TrailingHasSpaces && l.Trailing != "" &&
		l.Trailing[0] != ':' && !strings.Contains(l.Trailing, " ")
}
