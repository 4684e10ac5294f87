package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientTableTransitions(t *testing.T) {
	tbl := ClientTable()

	assert.True(t, tbl.CanTransition(Disconnected, Connected))
	assert.False(t, tbl.CanTransition(Disconnected, Registered))

	_, err := tbl.Transition(Connected, Registered)
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestClientTableAllowedCommandsVaryByState(t *testing.T) {
	tbl := ClientTable()

	assert.True(t, tbl.Allows(Disconnected, "connect"))
	assert.False(t, tbl.Allows(Disconnected, "join"))

	assert.True(t, tbl.Allows(InChannel, "part"))
	assert.False(t, tbl.Allows(Registered, "part"))
}

func TestServerTableRejectsUnregisteredJoin(t *testing.T) {
	tbl := ServerTable()

	assert.False(t, tbl.Allows(Connected, "JOIN"))
	assert.True(t, tbl.Allows(Registered, "JOIN"))
}
