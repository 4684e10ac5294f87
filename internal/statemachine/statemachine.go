// Package statemachine implements per-role state tables: each state
// names its allowed successor states and its allowed command set. It's
// shared by both the client role (internal/ircc) and the server's view
// of a connecting client (internal/ircd), which are two tables built the
// same way.
package statemachine

import "github.com/pkg/errors"

// State is one node in a role's state table.
type State string

// Client-role states.
const (
	Disconnected      State = "disconnected"
	Connected         State = "connected"
	StartRegistration State = "start_registration"
	Registered        State = "registered"
	InChannel         State = "in_channel"
)

// ErrBadTransition is returned when a requested transition isn't in the
// table for the current state.
var ErrBadTransition = errors.New("bad state transition")

// Table maps each State to the states it may transition to and the
// commands it admits. Admissibility of a command does not imply the
// command always succeeds -- only that it is not rejected purely because
// of the current state.
type Table struct {
	transitions map[State]map[State]struct{}
	commands    map[State]map[string]struct{}
}

// NewTable builds a Table from a declarative description: for each state,
// the states it may move to and the commands it allows.
func NewTable(next map[State][]State, commands map[State][]string) *Table {
	t := &Table{
		transitions: make(map[State]map[State]struct{}, len(next)),
		commands:    make(map[State]map[string]struct{}, len(commands)),
	}

	for s, states := range next {
		set := make(map[State]struct{}, len(states))
		for _, n := range states {
			set[n] = struct{}{}
		}
		t.transitions[s] = set
	}

	for s, cmds := range commands {
		set := make(map[string]struct{}, len(cmds))
		for _, c := range cmds {
			set[c] = struct{}{}
		}
		t.commands[s] = set
	}

	return t
}

// CanTransition reports whether moving from `from` to `to` is permitted.
func (t *Table) CanTransition(from, to State) bool {
	_, ok := t.transitions[from][to]
	return ok
}

// Transition returns the new state, or ErrBadTransition if the move isn't
// permitted from `from`.
func (t *Table) Transition(from, to State) (State, error) {
	if !t.CanTransition(from, to) {
		return from, ErrBadTransition
	}
	return to, nil
}

// Allows reports whether `command` (already normalised by the caller --
// typically upper/lowercased consistently with how the table was built)
// is admissible while in state `s`.
func (t *Table) Allows(s State, command string) bool {
	_, ok := t.commands[s][command]
	return ok
}

// AllowedCommands returns every command admissible in state s, in no
// particular order. Used by internal/ircc's "help" command so its output
// can never drift out of sync with what Allows actually permits.
func (t *Table) AllowedCommands(s State) []string {
	cmds := t.commands[s]
	out := make([]string, 0, len(cmds))
	for c := range cmds {
		out = append(out, c)
	}
	return out
}
