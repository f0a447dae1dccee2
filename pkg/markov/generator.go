package markov

import (
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Generator is the main entry point for sharing a text chain between
// goroutines. It wraps exactly one Chain[string] in a reader/writer lock:
// feeding, importing and pruning take the lock exclusively for their whole
// duration, while IsEmpty, every Generate variant, Save, Export and Stats
// share it, so any number of generations can run at once.
type Generator struct {
	mu        sync.RWMutex
	chain     *Chain[string]
	tokenizer Tokenizer
	logger    *slog.Logger
}

func wrap(chain *Chain[string]) *Generator {
	return &Generator{
		chain:     chain,
		tokenizer: NewLineTokenizer(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// NewGenerator returns a Generator over an empty chain of DefaultOrder.
func NewGenerator() *Generator {
	return wrap(NewDefault[string]())
}

// NewGeneratorOfOrder returns a Generator over an empty chain of the given order.
func NewGeneratorOfOrder(order int) *Generator {
	return wrap(New[string](order))
}

// NewGeneratorFrom takes ownership of chain. The caller must not use chain
// directly afterwards.
func NewGeneratorFrom(chain *Chain[string]) *Generator {
	return wrap(chain)
}

// LoadGenerator reads a chain saved with Save. The chain is built unshared and
// only then wrapped, so loading takes no lock.
func LoadGenerator(path string) (*Generator, error) {
	chain, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return wrap(chain), nil
}

// SetLogger sets the logger for the Generator. By default, all logs are discarded.
// Streams already running keep the logger they started with.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.mu.Lock()
		g.logger = logger
		g.mu.Unlock()
	}
}

// SetTokenizer replaces the tokenizer used by FeedFile, FeedReader and
// GenerateStr. The default is a LineTokenizer.
func (g *Generator) SetTokenizer(t Tokenizer) {
	if t != nil {
		g.mu.Lock()
		g.tokenizer = t
		g.mu.Unlock()
	}
}

// Order returns the order of the wrapped chain. It never changes.
func (g *Generator) Order() int {
	return g.chain.Order()
}

// IsEmpty reports whether the chain has no transitions.
func (g *Generator) IsEmpty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.chain.IsEmpty()
}

// Feed records tokens as one sequence.
func (g *Generator) Feed(tokens []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chain.Feed(tokens)
	g.logger.Debug("Sequence fed", slog.Int("tokens", len(tokens)))
}

// FeedStr splits text on whitespace and records the fields as one sequence.
func (g *Generator) FeedStr(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	FeedString(g.chain, text)
}

// FeedFile records every non-empty line of the file at path as its own
// sequence. Lines fed before an I/O failure are kept.
func (g *Generator) FeedFile(path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := feedFile(g.chain, path, g.tokenizer)
	if err != nil {
		g.logger.Error("Feeding file failed",
			slog.String("path", path),
			slog.Int("sequences_fed", n),
			slog.Any("error", err),
		)
		return err
	}
	g.logger.Info("File fed",
		slog.String("path", path),
		slog.Int("sequences_fed", n),
	)
	return nil
}

// FeedReader tokenizes r with the Generator's tokenizer and records every
// sequence it produces.
func (g *Generator) FeedReader(r io.Reader) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return FeedReader(g.chain, r, g.tokenizer)
}

// Generate walks the chain from the START window. ok is false when the chain
// is empty.
func (g *Generator) Generate(opts ...GenerateOption) (tokens []string, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.chain.Generate(opts...)
}

// GenerateStr is Generate joined into one string. ok is false when the chain
// is empty.
func (g *Generator) GenerateStr(opts ...GenerateOption) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tokens, ok := g.chain.Generate(opts...)
	if !ok {
		return "", false
	}
	return JoinTokens(g.tokenizer, tokens), true
}

// GenerateFromToken walks the chain as if seed had been emitted first.
func (g *Generator) GenerateFromToken(seed string, opts ...GenerateOption) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.chain.GenerateFromToken(seed, opts...)
}

// GenerateFromString seeds the walk with the last whitespace-separated word
// of text. An empty text behaves like Generate.
func (g *Generator) GenerateFromString(text string, opts ...GenerateOption) ([]string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return g.Generate(opts...)
	}
	return g.GenerateFromToken(fields[len(fields)-1], opts...), true
}

// Save writes the chain to path in the binary format.
func (g *Generator) Save(path string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if err := SaveFile(g.chain, path); err != nil {
		g.logger.Error("Saving chain failed", slog.String("path", path), slog.Any("error", err))
		return err
	}
	g.logger.Info("Chain saved",
		slog.String("path", path),
		slog.Int("prefixes", g.chain.Len()),
	)
	return nil
}

// Export writes the chain as JSON.
func (g *Generator) Export(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Export(g.chain, w)
}

// Import merges a JSON model into the chain.
func (g *Generator) Import(r io.Reader) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := Import(g.chain, r); err != nil {
		return err
	}
	g.logger.Info("Model imported", slog.Int("prefixes", g.chain.Len()))
	return nil
}

// Stats returns statistics for the chain.
func (g *Generator) Stats() ModelStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.chain.Stats()
}

// Prune removes links with a frequency of at most minFreq.
func (g *Generator) Prune(minFreq int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := g.chain.Prune(minFreq)
	g.logger.Info("Chain pruned",
		slog.Int("min_frequency", minFreq),
		slog.Int("chains_removed", removed),
	)
	return removed
}

// Snapshot returns a deep copy of the chain taken under the read lock.
func (g *Generator) Snapshot() *Chain[string] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.chain.Clone()
}
