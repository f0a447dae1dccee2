package markov

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"
)

func drain(ch <-chan string) []string {
	var tokens []string
	for token := range ch {
		tokens = append(tokens, token)
	}
	return tokens
}

func TestGenerateStream(t *testing.T) {
	g := setupTestGenerator(t)
	ctx := context.Background()

	t.Run("Successful stream", func(t *testing.T) {
		got := drain(g.GenerateStream(ctx, WithTemperature(0)))
		want := []string{"one", "fish", "two", "fish"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("stream produced %v, want %v", got, want)
		}
	})

	t.Run("Max length", func(t *testing.T) {
		if got := drain(g.GenerateStream(ctx, WithMaxLength(2))); len(got) != 2 {
			t.Errorf("expected 2 tokens, got %v", got)
		}
	})

	t.Run("Seeded stream", func(t *testing.T) {
		got := drain(g.GenerateStreamFromToken(ctx, "red", WithTemperature(0)))
		want := []string{"red", "fish", "blue", "fish"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("seeded stream produced %v, want %v", got, want)
		}
		if got := drain(g.GenerateStreamFromToken(ctx, "green")); len(got) != 0 {
			t.Errorf("unknown seed produced %v", got)
		}
	})

	t.Run("Empty chain", func(t *testing.T) {
		if got := drain(NewGenerator().GenerateStream(ctx)); len(got) != 0 {
			t.Errorf("empty chain produced %v", got)
		}
	})

	t.Run("Logger swapped while streaming", func(t *testing.T) {
		loop := NewGeneratorOfOrder(1)
		loop.FeedStr("a a")

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if got := drain(loop.GenerateStream(ctx, WithTopK(1), WithMaxLength(200))); len(got) != 200 {
					t.Errorf("expected 200 tokens, got %d", len(got))
				}
			}()
		}
		for i := 0; i < 50; i++ {
			loop.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
		}
		wg.Wait()
	})

	t.Run("Stream cancellation", func(t *testing.T) {
		loop := NewGeneratorOfOrder(1)
		loop.FeedStr("a a a a a a a a a a a a a a a a a a a a")

		ctxCancel, cancel := context.WithCancel(ctx)
		defer cancel()
		stream := loop.GenerateStream(ctxCancel, WithTopK(1))

		// Read one token, then cancel
		<-stream
		cancel()

		// The channel should now close quickly
		timeout := time.After(time.Second)
		for {
			select {
			case _, ok := <-stream:
				if !ok {
					return
				}
			case <-timeout:
				t.Fatal("timed out waiting for stream channel to close after cancellation")
			}
		}
	})
}

func BenchmarkGenerateStream(b *testing.B) {
	g := NewGeneratorFrom(trainedBenchChain(b, 2))
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for range g.GenerateStream(ctx, WithMaxLength(50)) {
		}
	}
}
