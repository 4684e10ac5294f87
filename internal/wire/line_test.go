package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineBuild(t *testing.T) {
	l := Line{
		Prefix:      "alice!alice@host",
		Command:     "PRIVMSG",
		Body:        []string{"#dev"},
		Trailing:    "hi",
		HasTrailing: true,
	}

	m, err := l.ToMessage(Relay, PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, ":alice!alice@host PRIVMSG #dev hi", m.Content)
}

func TestLineTrailingHasSpacesForcesColon(t *testing.T) {
	l := Line{
		Command:           "TOPIC",
		Body:              []string{"#dev"},
		Trailing:          "none",
		HasTrailing:       true,
		TrailingHasSpaces: true,
	}

	m, err := l.ToMessage(Standard, PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, "TOPIC #dev :none", m.Content)
}
