package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommandWithTrailing(t *testing.T) {
	c, ok := Parse("PRIVMSG #dev :hi there friend")
	assert.True(t, ok)
	assert.Equal(t, "PRIVMSG", c.Name)
	assert.Equal(t, []string{"#dev"}, c.Args)
	assert.Equal(t, "hi there friend", c.Trailing)
	assert.True(t, c.HasTrailing)
}

func TestParseCommandNoTrailing(t *testing.T) {
	c, ok := Parse("JOIN #dev")
	assert.True(t, ok)
	assert.Equal(t, "JOIN", c.Name)
	assert.Equal(t, []string{"#dev"}, c.Args)
	assert.False(t, c.HasTrailing)
}

func TestParseStripsLeadingSlash(t *testing.T) {
	c, ok := Parse("/join #dev")
	assert.True(t, ok)
	assert.Equal(t, "join", c.Name)
	assert.Equal(t, []string{"#dev"}, c.Args)
}

func TestParseEmptyLineYieldsNoCommand(t *testing.T) {
	_, ok := Parse("   ")
	assert.False(t, ok)

	_, ok = Parse("")
	assert.False(t, ok)
}

func TestParseAllArgsAppendsTrailing(t *testing.T) {
	c, _ := Parse("PART #dev :goodbye")
	assert.Equal(t, []string{"#dev", "goodbye"}, c.AllArgs())
}

func TestParseTrailingOnlyArgument(t *testing.T) {
	c, ok := Parse("NICK :alice")
	assert.True(t, ok)
	assert.Equal(t, "NICK", c.Name)
	assert.Empty(t, c.Args)
	assert.Equal(t, "alice", c.Trailing)
}
