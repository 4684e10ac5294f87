// Package fdreg implements a fixed-capacity file descriptor registry: a
// fixed-size slot table mapping OS file descriptors to stable slot
// indices, with an fd->index side map for O(1) lookup.
package fdreg

import "github.com/pkg/errors"

// ErrFull is returned by Assign when every slot is in use.
var ErrFull = errors.New("fd registry is full")

// ErrUnassigned is returned by Remove/Owner when the fd has no slot.
var ErrUnassigned = errors.New("fd is not assigned a slot")

// ErrReassign is returned by Assign when the fd is already registered;
// reassignment of a live fd is forbidden.
var ErrReassign = errors.New("fd is already assigned a slot")

// slot holds one registry entry. owner is an opaque value the caller
// associates with the fd (e.g. a *Client); the registry never looks inside
// it.
type slot struct {
	inUse bool
	fd    int
	owner interface{}
}

// Registry is a fixed-size array of slots plus a side map from fd to slot
// index. It is not safe for concurrent use without external
// synchronisation; the single-threaded server loop owns one instance
// exclusively. The threaded variant does not use a Registry.
type Registry struct {
	slots   []slot
	fdIndex map[int]int
}

// New creates a Registry with the given fixed capacity.
func New(capacity int) *Registry {
	return &Registry{
		slots:   make([]slot, capacity),
		fdIndex: make(map[int]int, capacity),
	}
}

// Capacity returns the number of slots the registry was created with.
func (r *Registry) Capacity() int {
	return len(r.slots)
}

// Len returns the number of slots currently assigned.
func (r *Registry) Len() int {
	return len(r.fdIndex)
}

// Assign finds the first unassigned slot and associates fd with owner in
// it, returning the slot index. Reassigning an already-registered fd is an
// error (invariant: "an fd appears in at most one slot").
func (r *Registry) Assign(fd int, owner interface{}) (int, error) {
	if _, exists := r.fdIndex[fd]; exists {
		return -1, ErrReassign
	}

	for i := range r.slots {
		if r.slots[i].inUse {
			continue
		}

		r.slots[i] = slot{inUse: true, fd: fd, owner: owner}
		r.fdIndex[fd] = i
		return i, nil
	}

	return -1, ErrFull
}

// Remove zeroes the slot holding fd and erases the side map entry.
func (r *Registry) Remove(fd int) error {
	idx, exists := r.fdIndex[fd]
	if !exists {
		return ErrUnassigned
	}

	r.slots[idx] = slot{}
	delete(r.fdIndex, fd)
	return nil
}

// Owner returns the owner associated with fd.
func (r *Registry) Owner(fd int) (interface{}, error) {
	idx, exists := r.fdIndex[fd]
	if !exists {
		return nil, ErrUnassigned
	}
	return r.slots[idx].owner, nil
}

// Index returns the slot index fd occupies, for callers (the poll manager)
// that want a stable handle cheaper than hashing the fd on every lookup.
func (r *Registry) Index(fd int) (int, bool) {
	idx, exists := r.fdIndex[fd]
	return idx, exists
}

// Each calls fn once per assigned slot, in slot order. fn must not call
// Assign or Remove on the same Registry.
func (r *Registry) Each(fn func(fd int, owner interface{})) {
	for i := range r.slots {
		if !r.slots[i].inUse {
			continue
		}
		fn(r.slots[i].fd, r.slots[i].owner)
	}
}
