// Package handles hands out opaque, generation-checked references to values
// owned by a Table. A released slot is reused with a bumped generation, so a
// handle kept past its release never resolves to the slot's new occupant.
package handles

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ErrStaleHandle is returned for a handle that was released or never issued.
var ErrStaleHandle = errors.New("stale or unknown handle")

// ErrMalformedHandle is returned by ParseHandle for text that is not a handle.
var ErrMalformedHandle = errors.New("malformed handle")

// Handle identifies one value in a Table.
type Handle struct {
	Index      uint32
	Generation uint32
}

// String renders the handle as "index.generation".
func (h Handle) String() string {
	return strconv.FormatUint(uint64(h.Index), 10) + "." + strconv.FormatUint(uint64(h.Generation), 10)
}

// ParseHandle is the inverse of Handle.String.
func ParseHandle(s string) (Handle, error) {
	index, generation, ok := strings.Cut(s, ".")
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrMalformedHandle, s)
	}
	i, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %q", ErrMalformedHandle, s)
	}
	g, err := strconv.ParseUint(generation, 10, 32)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %q", ErrMalformedHandle, s)
	}
	return Handle{Index: uint32(i), Generation: uint32(g)}, nil
}

type slot[T any] struct {
	generation uint32
	live       bool
	value      T
}

// Table is an arena of values addressed by Handle. It is safe for concurrent use.
type Table[T any] struct {
	mu    sync.RWMutex
	slots []slot[T]
	free  []uint32
	live  int
}

// Insert stores v and returns its handle.
func (t *Table[T]) Insert(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var index uint32
	if n := len(t.free); n > 0 {
		index = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		index = uint32(len(t.slots))
		// Generations start at 1 so the zero Handle never resolves.
		t.slots = append(t.slots, slot[T]{generation: 1})
	}
	s := &t.slots[index]
	s.live = true
	s.value = v
	t.live++
	return Handle{Index: index, Generation: s.generation}
}

// Get returns the value for h.
func (t *Table[T]) Get(h Handle) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s := t.lookup(h); s != nil {
		return s.value, nil
	}
	var zero T
	return zero, fmt.Errorf("%w: %s", ErrStaleHandle, h)
}

// Remove releases h and returns the value it referred to. Every copy of h is
// invalid afterwards.
func (t *Table[T]) Remove(h Handle) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	s := t.lookup(h)
	if s == nil {
		return zero, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	v := s.value
	s.value = zero
	s.live = false
	s.generation++
	t.live--
	// A slot whose generation wrapped is retired rather than reused.
	if s.generation != 0 {
		t.free = append(t.free, h.Index)
	}
	return v, nil
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Range calls fn for every live value until fn returns false. The table is
// read-locked for the duration, so fn must not call back into it.
func (t *Table[T]) Range(fn func(Handle, T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.slots {
		s := &t.slots[i]
		if s.live && !fn(Handle{Index: uint32(i), Generation: s.generation}, s.value) {
			return
		}
	}
}

func (t *Table[T]) lookup(h Handle) *slot[T] {
	if int(h.Index) >= len(t.slots) {
		return nil
	}
	s := &t.slots[h.Index]
	if !s.live || s.generation != h.Generation {
		return nil
	}
	return s
}
