package wire

import (
	"testing"

	"github.com/horgh/irc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRoundTrip(t *testing.T) {
	m, err := Decode("NICK alice\r\n")
	require.NoError(t, err)
	assert.Equal(t, "NICK alice", m.Content)
	assert.Equal(t, CRLF, m.Separator)
	assert.Equal(t, "NICK alice\r\n", m.Line())

	parsed, err := m.ToIRC()
	require.NoError(t, err)
	assert.Equal(t, "NICK", parsed.Command)
	assert.Equal(t, []string{"alice"}, parsed.Params)
}

func TestMessageLineAppendsSeparatorWhenMissing(t *testing.T) {
	m := Message{Content: "PING server"}
	assert.Equal(t, "PING server\r\n", m.Line())
}

func TestNewMessageFromIRC(t *testing.T) {
	irm := irc.Message{Command: "PRIVMSG", Params: []string{"#dev", "hi there"}}

	m, err := NewMessage(irm, Relay, PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG #dev :hi there", m.Content)
	assert.Equal(t, Relay, m.Type)
}
