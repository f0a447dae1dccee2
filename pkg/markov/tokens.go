package markov

import (
	"fmt"
	"strconv"
)

const (
	// SOCTokenID is the reserved vocabulary ID for the Start-Of-Chain sentinel.
	SOCTokenID = 0
	// EOCTokenID is the reserved vocabulary ID for the End-Of-Chain sentinel.
	EOCTokenID = 1
	// SOCTokenText is the display text of the Start-Of-Chain sentinel.
	SOCTokenText = "<SOC>"
	// EOCTokenText is the display text of the End-Of-Chain sentinel.
	EOCTokenText = "<EOC>"

	// firstTokenID is the ID given to the first caller token interned by a chain.
	firstTokenID = 2
	// unknownTokenID marks a token that is not in the vocabulary. It never
	// appears in a stored prefix, so lookups through it always miss.
	unknownTokenID = -1
)

// SymbolKind tells a sentinel apart from a caller-supplied token.
type SymbolKind uint8

const (
	KindStart SymbolKind = iota
	KindEnd
	KindToken
)

func (k SymbolKind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	case KindToken:
		return "token"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Symbol is one slot of a transition: either a sentinel or a real token.
// Sentinels are never confused with tokens, even when a token's text happens
// to read "<SOC>" or "<EOC>".
type Symbol[T comparable] struct {
	Kind  SymbolKind
	Token T
}

// Start returns the Start-Of-Chain sentinel.
func Start[T comparable]() Symbol[T] { return Symbol[T]{Kind: KindStart} }

// End returns the End-Of-Chain sentinel.
func End[T comparable]() Symbol[T] { return Symbol[T]{Kind: KindEnd} }

// Tok wraps a caller token.
func Tok[T comparable](t T) Symbol[T] { return Symbol[T]{Kind: KindToken, Token: t} }

// IsSentinel reports whether s is START or END.
func (s Symbol[T]) IsSentinel() bool { return s.Kind != KindToken }

func (s Symbol[T]) String() string {
	switch s.Kind {
	case KindStart:
		return SOCTokenText
	case KindEnd:
		return EOCTokenText
	default:
		return fmt.Sprint(s.Token)
	}
}

// ChainToken is a possible next token after a prefix, with its frequency.
type ChainToken struct {
	Id   int
	Freq int
}

// intern returns the vocabulary ID of t, adding it if needed.
func (c *Chain[T]) intern(t T) int {
	if id, ok := c.ids[t]; ok {
		return id
	}
	id := len(c.vocab) + firstTokenID
	c.vocab = append(c.vocab, t)
	c.ids[t] = id
	return id
}

// lookup returns the vocabulary ID of t without modifying the chain.
func (c *Chain[T]) lookup(t T) int {
	if id, ok := c.ids[t]; ok {
		return id
	}
	return unknownTokenID
}

func (c *Chain[T]) symbolID(s Symbol[T]) int {
	switch s.Kind {
	case KindStart:
		return SOCTokenID
	case KindEnd:
		return EOCTokenID
	default:
		return c.lookup(s.Token)
	}
}

func (c *Chain[T]) internSymbol(s Symbol[T]) int {
	switch s.Kind {
	case KindStart:
		return SOCTokenID
	case KindEnd:
		return EOCTokenID
	default:
		return c.intern(s.Token)
	}
}

func (c *Chain[T]) symbol(id int) Symbol[T] {
	switch id {
	case SOCTokenID:
		return Start[T]()
	case EOCTokenID:
		return End[T]()
	default:
		return Tok(c.vocab[id-firstTokenID])
	}
}

// VocabId looks a token up in the vocabulary and returns its ID.
// The boolean is false if the token has never been fed.
func (c *Chain[T]) VocabId(t T) (int, bool) {
	id, ok := c.ids[t]
	return id, ok
}

// VocabToken returns the symbol for a vocabulary ID. The reserved IDs map to
// the sentinels.
func (c *Chain[T]) VocabToken(id int) (Symbol[T], bool) {
	if id < 0 || id >= len(c.vocab)+firstTokenID {
		return Symbol[T]{}, false
	}
	return c.symbol(id), true
}

// Vocabulary returns the fed tokens in the order they were first seen.
func (c *Chain[T]) Vocabulary() []T {
	out := make([]T, len(c.vocab))
	copy(out, c.vocab)
	return out
}

// NextTokens returns every recorded follower of context together with the
// sum of their frequencies. An unseen context returns a nil slice and 0.
func (c *Chain[T]) NextTokens(context []Symbol[T]) ([]ChainToken, int) {
	p := c.prefixFor(context)
	if p == nil {
		return nil, 0
	}
	out := make([]ChainToken, len(p.links))
	copy(out, p.links)
	return out, p.total
}
