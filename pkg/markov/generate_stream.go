package markov

import (
	"context"
	"log/slog"
)

// GenerateStream walks the chain from the START window and returns a
// read-only channel of tokens. This allows for processing the generated text
// token-by-token, which is useful for real-time applications or when
// generating very long sequences. The channel is closed once END is drawn, a
// dead end is reached, the max length is hit or ctx is cancelled.
//
// The read lock is taken for each step rather than for the whole walk, so a
// slow consumer never holds off feeders. Steps taken after a concurrent feed
// see its transitions.
func (g *Generator) GenerateStream(ctx context.Context, opts ...GenerateOption) <-chan string {
	return g.generateStream(ctx, nil, opts...)
}

// GenerateStreamFromToken is GenerateStream seeded like GenerateFromToken.
// The seed is sent first when its window exists.
func (g *Generator) GenerateStreamFromToken(ctx context.Context, seed string, opts ...GenerateOption) <-chan string {
	return g.generateStream(ctx, &seed, opts...)
}

func (g *Generator) generateStream(ctx context.Context, seed *string, opts ...GenerateOption) <-chan string {
	options := newGenerateOptions(opts)
	tokenChan := make(chan string)

	go func() {
		defer close(tokenChan)

		g.mu.RLock()
		logger := g.logger
		w := g.chain.startWalker()
		if seed != nil {
			var found bool
			w, found = g.chain.seededWalker(*seed)
			g.mu.RUnlock()
			if !found {
				return
			}
			select {
			case <-ctx.Done():
				return
			case tokenChan <- *seed:
			}
		} else {
			g.mu.RUnlock()
		}

		generatedCount := 0
		if seed != nil {
			generatedCount = 1
		}
		for options.maxLength <= 0 || generatedCount < options.maxLength {
			select {
			case <-ctx.Done():
				logger.DebugContext(ctx, "Generation stream cancelled by context")
				return
			default:
				// continue
			}

			g.mu.RLock()
			id, ok := w.step(options)
			var text string
			if ok {
				text = g.chain.vocab[id-firstTokenID]
			}
			g.mu.RUnlock()

			if !ok {
				logger.DebugContext(ctx, "Generation stream finished",
					slog.Int("generated_length", generatedCount),
				)
				return
			}

			select {
			case <-ctx.Done():
				return
			case tokenChan <- text:
			}
			generatedCount++
		}
	}()

	return tokenChan
}
