package markov

import (
	"math"
	"math/rand/v2"
	"sort"
	"strings"
)

// generateOptions is used by the generate functions to configure the walk.
type generateOptions struct {
	maxLength   int
	temperature float64
	topK        int
	rng         *rand.Rand
}

func defaultGenerateOptions() *generateOptions {
	return &generateOptions{
		maxLength:   0,
		temperature: 1.0,
		topK:        0,
	}
}

func newGenerateOptions(opts []GenerateOption) *generateOptions {
	options := defaultGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func (o *generateOptions) intN(n int) int {
	if o.rng != nil {
		return o.rng.IntN(n)
	}
	return rand.IntN(n)
}

func (o *generateOptions) float64() float64 {
	if o.rng != nil {
		return o.rng.Float64()
	}
	return rand.Float64()
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument in generation functions like Generate and GenerateStream.
type GenerateOption func(*generateOptions)

// WithMaxLength caps the number of tokens a walk may emit. A value of 0 (the
// default) lets the walk run until END is drawn or a dead end is reached.
func WithMaxLength(n int) GenerateOption {
	return func(o *generateOptions) { o.maxLength = n }
}

// WithTemperature adjusts the randomness of the token selection.
// A value of 1.0 is standard weighted random selection.
// Values > 1.0 increase randomness (making less frequent tokens more likely).
// Values < 1.0 decrease randomness (making more frequent tokens even more likely).
// A value of 0 or less results in deterministic selection (always choosing the most frequent token).
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts the token selection pool to the top `k` most frequent tokens
// at each step. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// WithRand draws from r instead of the global source. r is used without
// locking, so it must not be shared between concurrent walks.
func WithRand(r *rand.Rand) GenerateOption {
	return func(o *generateOptions) { o.rng = r }
}

// walker holds the sliding window of a single walk.
type walker[T comparable] struct {
	c      *Chain[T]
	window []int
	keyBuf []byte
}

func (c *Chain[T]) startWalker() *walker[T] {
	// A fresh window is Order copies of SOCTokenID (0).
	return &walker[T]{c: c, window: make([]int, c.order)}
}

func (w *walker[T]) shift(id int) {
	if len(w.window) == 0 {
		return
	}
	copy(w.window, w.window[1:])
	w.window[len(w.window)-1] = id
}

// step draws the next token ID. ok is false when the walk is over, either
// because END was drawn or because the current window has no followers.
func (w *walker[T]) step(o *generateOptions) (id int, ok bool) {
	w.keyBuf = appendKey(w.keyBuf[:0], w.window)
	p, found := w.c.prefixes[string(w.keyBuf)]
	if !found {
		return EOCTokenID, false
	}
	next := chooseNextToken(p.links, p.total, o)
	if next == EOCTokenID {
		return EOCTokenID, false
	}
	w.shift(next)
	return next, true
}

func (w *walker[T]) run(out []T, o *generateOptions) []T {
	for o.maxLength <= 0 || len(out) < o.maxLength {
		id, ok := w.step(o)
		if !ok {
			break
		}
		out = append(out, w.c.vocab[id-firstTokenID])
	}
	return out
}

// Generate performs a weighted random walk from the START window and returns
// the emitted tokens, without sentinels. The boolean is false, and nothing is
// generated, when the chain is empty.
func (c *Chain[T]) Generate(opts ...GenerateOption) ([]T, bool) {
	if c.IsEmpty() {
		return nil, false
	}
	out := c.startWalker().run(nil, newGenerateOptions(opts))
	if out == nil {
		out = []T{}
	}
	return out, true
}

// GenerateFromToken walks as if seed had already been emitted as the first
// token: the window starts as START...START shifted once with seed. The seed
// is the first element of the result. If seed was never fed, or that window
// was never recorded, the result is empty. Unlike Generate, an empty chain is
// not special-cased.
func (c *Chain[T]) GenerateFromToken(seed T, opts ...GenerateOption) []T {
	w, ok := c.seededWalker(seed)
	if !ok {
		return []T{}
	}
	return w.run([]T{seed}, newGenerateOptions(opts))
}

// seededWalker positions a walker after seed. An order 0 window never holds
// the seed, so the vocabulary check is what rejects unfed seeds there.
func (c *Chain[T]) seededWalker(seed T) (*walker[T], bool) {
	id := c.lookup(seed)
	if id == unknownTokenID {
		return nil, false
	}
	w := c.startWalker()
	w.shift(id)
	w.keyBuf = appendKey(w.keyBuf[:0], w.window)
	if _, ok := c.prefixes[string(w.keyBuf)]; !ok {
		return nil, false
	}
	return w, true
}

// GenerateString generates from a text chain and joins the tokens with single
// spaces. The boolean is false when the chain is empty.
func GenerateString(c *Chain[string], opts ...GenerateOption) (string, bool) {
	tokens, ok := c.Generate(opts...)
	if !ok {
		return "", false
	}
	return strings.Join(tokens, " "), true
}

// chooseNextToken abstracts the token selection logic from the generation loop.
// choices is never modified; it may be shared with concurrent readers.
func chooseNextToken(choices []ChainToken, totalFreq int, options *generateOptions) int {
	var nextToken int

	// topK filtering
	if options.topK > 0 && options.topK < len(choices) {
		sorted := make([]ChainToken, len(choices))
		copy(sorted, choices)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Freq > sorted[j].Freq
		})
		choices = sorted[:options.topK]
		totalFreq = 0
		for _, choice := range choices {
			totalFreq += choice.Freq
		}
	}

	// temperature selection
	if options.temperature <= 0 { // Deterministic
		maxFreq := -1
		for _, choice := range choices {
			if choice.Freq > maxFreq {
				maxFreq = choice.Freq
				nextToken = choice.Id
			}
		}
	} else if options.temperature == 1.0 { // Standard weighted random
		randChoice := options.intN(totalFreq)
		for _, choice := range choices {
			randChoice -= choice.Freq
			if randChoice < 0 {
				nextToken = choice.Id
				break
			}
		}
	} else { // Temperature-based sampling
		logProbabilities := make([]float64, len(choices))
		epsilon := -1e9
		for i, choice := range choices {
			lp := math.Log(float64(choice.Freq)) / options.temperature
			logProbabilities[i] = lp
			if lp > epsilon {
				epsilon = lp
			}
		}
		var totalWeight float64
		weights := make([]float64, len(choices))
		for i, lp := range logProbabilities {
			w := math.Exp(lp - epsilon)
			weights[i] = w
			totalWeight += w
		}
		randChoice := options.float64() * totalWeight
		nextToken = choices[len(choices)-1].Id
		for i, choice := range choices {
			randChoice -= weights[i]
			if randChoice < 0 {
				nextToken = choice.Id
				break
			}
		}
	}
	return nextToken
}
