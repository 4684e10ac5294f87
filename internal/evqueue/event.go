// Package evqueue implements a typed, bounded event queue and dispatcher.
// Events flow from the poll loop (or a reader goroutine, in the threaded
// variant) into handlers registered by (Kind, SubKind). The queue never
// blocks a producer: a full queue drops its oldest entry.
package evqueue

// Kind is the top-level classification of an event.
type Kind int

// Recognised kinds.
const (
	UI Kind = iota
	Network
	System
)

// SubKind further classifies an event within its Kind. The zero value has
// no meaning across Kinds; callers should use the typed constants below.
type SubKind int

// UI sub-kinds.
const (
	Key SubKind = iota
	WinResize
)

// Network sub-kinds.
const (
	ClientConnect SubKind = iota
	ClientDisconnect
	ClientMsg
	ServerMsg
	AddPollFd
	RemovePollFd
	PeerClose
)

// System sub-kinds.
const (
	Timer SubKind = iota
	Exit
)

// DataKind tags which field of Event.Data is meaningful.
type DataKind int

// Recognised data kinds.
const (
	DataNone DataKind = iota
	DataInt
	DataString
)

// Event is a small tagged record. Data is a minimal union: at most one of
// an int or a short string, never both.
type Event struct {
	Kind     Kind
	SubKind  SubKind
	DataKind DataKind
	DataInt  int
	DataStr  string
}
