package markov

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// DefaultOrder is the order used by NewDefault.
const DefaultOrder = 2

// ErrBadTransition is returned by Add when a transition could never have been
// produced by feeding a sequence.
var ErrBadTransition = errors.New("invalid transition")

// prefix holds the outgoing links of one context window. links keeps the
// insertion order of the followers, index maps a token ID to its position.
type prefix struct {
	ids   []int
	links []ChainToken
	index map[int]int
	total int
}

func (p *prefix) add(next, n int) {
	if i, ok := p.index[next]; ok {
		p.links[i].Freq += n
	} else {
		p.index[next] = len(p.links)
		p.links = append(p.links, ChainToken{Id: next, Freq: n})
	}
	p.total += n
}

// Chain is an order-N Markov chain over tokens of type T. It maps every
// window of N symbols seen while feeding to the frequencies of the symbols
// that followed it.
//
// A Chain is not safe for concurrent use. Generator wraps a text chain with
// the locking needed to share it between goroutines.
type Chain[T comparable] struct {
	order    int
	vocab    []T
	ids      map[T]int
	prefixes map[string]*prefix
}

// New returns an empty chain of the given order. An order of 0 is allowed and
// produces a chain whose only context is the empty window. New panics on a
// negative order.
func New[T comparable](order int) *Chain[T] {
	if order < 0 {
		panic("markov: negative chain order " + strconv.Itoa(order))
	}
	return &Chain[T]{
		order:    order,
		ids:      make(map[T]int),
		prefixes: make(map[string]*prefix),
	}
}

// NewDefault returns an empty chain of DefaultOrder.
func NewDefault[T comparable]() *Chain[T] {
	return New[T](DefaultOrder)
}

// Order returns the number of symbols in every context window.
func (c *Chain[T]) Order() int { return c.order }

// IsEmpty reports whether no transition has been recorded yet.
func (c *Chain[T]) IsEmpty() bool { return len(c.prefixes) == 0 }

// Len returns the number of distinct context windows.
func (c *Chain[T]) Len() int { return len(c.prefixes) }

// appendKey renders a window of token IDs as a map key.
func appendKey(buf []byte, ids []int) []byte {
	for j, id := range ids {
		if j > 0 {
			buf = append(buf, ' ')
		}
		buf = strconv.AppendInt(buf, int64(id), 10)
	}
	return buf
}

// recordTransition adds n occurrences of context -> next.
func (c *Chain[T]) recordTransition(context []int, next, n int) {
	key := string(appendKey(nil, context))
	p, ok := c.prefixes[key]
	if !ok {
		p = &prefix{
			ids:   slices.Clone(context),
			index: make(map[int]int, 1),
		}
		c.prefixes[key] = p
	}
	p.add(next, n)
}

// prefixFor finds the stored window matching context, if any.
func (c *Chain[T]) prefixFor(context []Symbol[T]) *prefix {
	if len(context) != c.order {
		return nil
	}
	ids := make([]int, len(context))
	for i, s := range context {
		ids[i] = c.symbolID(s)
		if ids[i] == unknownTokenID {
			return nil
		}
	}
	return c.prefixes[string(appendKey(nil, ids))]
}

// Add records count occurrences of context -> next. It is the bulk form of
// what Feed does one step at a time and is used to rebuild chains from
// persisted data. The context must hold exactly Order symbols, must not
// contain END, and next must not be START. A rejected transition leaves the
// chain untouched, vocabulary included.
func (c *Chain[T]) Add(context []Symbol[T], next Symbol[T], count int) error {
	if len(context) != c.order {
		return fmt.Errorf("%w: context has %d symbols, chain order is %d", ErrBadTransition, len(context), c.order)
	}
	if count <= 0 {
		return fmt.Errorf("%w: non-positive count %d", ErrBadTransition, count)
	}
	if next.Kind == KindStart {
		return fmt.Errorf("%w: %s cannot follow a context", ErrBadTransition, SOCTokenText)
	}
	for _, s := range context {
		if s.Kind == KindEnd {
			return fmt.Errorf("%w: %s inside a context", ErrBadTransition, EOCTokenText)
		}
	}
	ids := make([]int, len(context))
	for i, s := range context {
		ids[i] = c.internSymbol(s)
	}
	c.recordTransition(ids, c.internSymbol(next), count)
	return nil
}

// Count returns how many times next was recorded after context.
func (c *Chain[T]) Count(context []Symbol[T], next Symbol[T]) int {
	p := c.prefixFor(context)
	if p == nil {
		return 0
	}
	id := c.symbolID(next)
	if i, ok := p.index[id]; ok {
		return p.links[i].Freq
	}
	return 0
}

// Transition is one entry of the transition table.
type Transition[T comparable] struct {
	Context []Symbol[T]
	Next    Symbol[T]
	Count   int
}

// sortedPrefixes returns the stored windows ordered by their token IDs.
func (c *Chain[T]) sortedPrefixes() []*prefix {
	out := make([]*prefix, 0, len(c.prefixes))
	for _, p := range c.prefixes {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *prefix) int {
		return slices.Compare(a.ids, b.ids)
	})
	return out
}

func (c *Chain[T]) contextOf(p *prefix) []Symbol[T] {
	context := make([]Symbol[T], len(p.ids))
	for i, id := range p.ids {
		context[i] = c.symbol(id)
	}
	return context
}

// Transitions returns a snapshot of the whole transition table. Windows are
// ordered by the vocabulary IDs of their symbols and followers keep the order
// in which they were first recorded, so the result is stable for a given
// sequence of feeds.
func (c *Chain[T]) Transitions() []Transition[T] {
	var out []Transition[T]
	for _, p := range c.sortedPrefixes() {
		context := c.contextOf(p)
		for _, link := range p.links {
			out = append(out, Transition[T]{
				Context: context,
				Next:    c.symbol(link.Id),
				Count:   link.Freq,
			})
		}
	}
	return out
}

// Clone returns a deep copy of the chain.
func (c *Chain[T]) Clone() *Chain[T] {
	out := &Chain[T]{
		order:    c.order,
		vocab:    slices.Clone(c.vocab),
		ids:      make(map[T]int, len(c.ids)),
		prefixes: make(map[string]*prefix, len(c.prefixes)),
	}
	for t, id := range c.ids {
		out.ids[t] = id
	}
	for key, p := range c.prefixes {
		cp := &prefix{
			ids:   slices.Clone(p.ids),
			links: slices.Clone(p.links),
			index: make(map[int]int, len(p.index)),
			total: p.total,
		}
		for id, i := range p.index {
			cp.index[id] = i
		}
		out.prefixes[key] = cp
	}
	return out
}

// Equal reports whether both chains have the same order and the same
// transition table. Vocabulary IDs and insertion order are not compared.
func (c *Chain[T]) Equal(other *Chain[T]) bool {
	if other == nil || c.order != other.order || len(c.prefixes) != len(other.prefixes) {
		return false
	}
	for _, p := range c.prefixes {
		op := other.prefixFor(c.contextOf(p))
		if op == nil || len(op.links) != len(p.links) || op.total != p.total {
			return false
		}
		for _, link := range p.links {
			oid := other.symbolID(c.symbol(link.Id))
			i, ok := op.index[oid]
			if !ok || op.links[i].Freq != link.Freq {
				return false
			}
		}
	}
	return true
}
