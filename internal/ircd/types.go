// Package ircd implements the session and message-routing engine: the
// Session/membership model, the command handlers, and both the
// single-threaded and threaded server main loops.
package ircd

import (
	"fmt"
	"strings"
)

// MaxNickLength and MaxChannelLength bound identifier sizes on the wire.
const (
	MaxNickLength    = 9
	MaxChannelLength = 50
)

// ChannelKind distinguishes a channel that survives emptiness from one
// destroyed when its last member leaves.
type ChannelKind int

// Recognised channel kinds.
const (
	Persistent ChannelKind = iota
	Temporary
)

// User is one registered participant. The Session exclusively owns
// Users; everything else refers to one by nickname.
type User struct {
	Nickname string
	Username string
	Hostname string
	RealName string

	// ClientID back-references the Client that owns this User's
	// connection, so the flush step can find the socket to write to
	// without the relation tables needing to know about connections at
	// all.
	ClientID int

	OutQueue *MessageQueue
}

// NickUhost formats the "nick!user@host" form used as a message prefix
// when this user is the source of a broadcast (JOIN/PART/NICK/QUIT/
// PRIVMSG).
func (u *User) NickUhost() string {
	return fmt.Sprintf("%s!%s@%s", u.Nickname, u.Username, u.Hostname)
}

// Channel is a named, joinable chat room. The Session exclusively owns
// Channels.
type Channel struct {
	Name    string
	Topic   string
	Kind    ChannelKind
	UserCap int

	OutQueue *BroadcastQueue
}

// canonicalNick returns the case-insensitive comparison key for a
// nickname. Identifier comparison is ASCII case-insensitive.
func canonicalNick(n string) string {
	return strings.ToLower(n)
}

// canonicalChannel returns the case-insensitive comparison key for a
// channel name.
func canonicalChannel(c string) string {
	return strings.ToLower(c)
}

// nicknameChars are the characters allowed in a nickname besides letters
// and digits.
const nicknameChars = "-_\\[]{}|^~"

// IsValidNick reports whether n is a well-formed nickname: <= 9 ASCII
// characters, alphanumerics plus "-_\[]{}|^~", not starting with a digit.
func IsValidNick(n string) bool {
	if len(n) == 0 || len(n) > MaxNickLength {
		return false
	}

	for i := 0; i < len(n); i++ {
		c := n[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		case strings.IndexByte(nicknameChars, c) >= 0:
		default:
			return false
		}
	}

	return true
}

// IsValidChannel reports whether c is a well-formed channel name: begins
// with '#', total <= 50 characters, same allowed character set as a
// nickname after the leading '#'.
func IsValidChannel(c string) bool {
	if len(c) == 0 || len(c) > MaxChannelLength {
		return false
	}
	if c[0] != '#' {
		return false
	}

	for i := 1; i < len(c); i++ {
		ch := c[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case strings.IndexByte(nicknameChars, ch) >= 0:
		default:
			return false
		}
	}

	return true
}
