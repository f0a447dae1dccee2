package markov

import (
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// setupTestChain returns an order-2 chain trained on a tiny two-line corpus.
func setupTestChain(t *testing.T) *Chain[string] {
	t.Helper()
	c := New[string](2)
	FeedString(c, "one fish two fish")
	FeedString(c, "red fish blue fish")
	return c
}

// setupTestGenerator wraps the chain from setupTestChain.
func setupTestGenerator(t *testing.T) *Generator {
	t.Helper()
	return NewGeneratorFrom(setupTestChain(t))
}

// writeTestFile creates a file with the given content in a per-test directory.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func ctx1(syms ...Symbol[string]) []Symbol[string] { return syms }

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}

// trainedBenchChain feeds the benchmark corpus line by line into a chain of the given order.
func trainedBenchChain(b *testing.B, order int) *Chain[string] {
	b.Helper()
	c := New[string](order)
	if _, err := FeedReader(c, strings.NewReader(createBenchmarkCorpus()), NewLineTokenizer()); err != nil {
		b.Fatalf("FeedReader() setup failed: %v", err)
	}
	return c
}
