package markov

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestGeneratorBasics(t *testing.T) {
	g := NewGenerator()
	if g.Order() != DefaultOrder {
		t.Errorf("Order() = %d, want %d", g.Order(), DefaultOrder)
	}
	if !g.IsEmpty() {
		t.Error("a new generator should be empty")
	}
	if _, ok := g.Generate(); ok {
		t.Error("Generate() on an empty generator should report false")
	}
	if _, ok := g.GenerateStr(); ok {
		t.Error("GenerateStr() on an empty generator should report false")
	}

	g.FeedStr("one fish two fish")
	g.Feed([]string{"red", "fish", "blue", "fish"})
	if g.IsEmpty() {
		t.Fatal("generator should not be empty after feeding")
	}
	if !g.Snapshot().Equal(setupTestChain(t)) {
		t.Error("generator chain differs from the directly fed chain")
	}

	s, ok := g.GenerateStr(WithTemperature(0))
	if !ok || s != "one fish two fish" {
		t.Errorf("GenerateStr() = %q, %v", s, ok)
	}
	if got := g.GenerateFromToken("red", WithTemperature(0)); strings.Join(got, " ") != "red fish blue fish" {
		t.Errorf("GenerateFromToken(red) = %v", got)
	}
}

func TestGeneratorGenerateFromString(t *testing.T) {
	g := setupTestGenerator(t)

	got, ok := g.GenerateFromString("I like red", WithTemperature(0))
	if !ok || strings.Join(got, " ") != "red fish blue fish" {
		t.Errorf("GenerateFromString() = %v, %v", got, ok)
	}
	got, ok = g.GenerateFromString("   ", WithTemperature(0))
	if !ok || strings.Join(got, " ") != "one fish two fish" {
		t.Errorf("GenerateFromString(blank) = %v, %v", got, ok)
	}
}

func TestGeneratorFiles(t *testing.T) {
	g := NewGenerator()
	corpus := writeTestFile(t, "corpus.txt", "one fish two fish\nred fish blue fish\n")
	if err := g.FeedFile(corpus); err != nil {
		t.Fatalf("FeedFile() failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.chain")
	if err := g.Save(path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	loaded, err := LoadGenerator(path)
	if err != nil {
		t.Fatalf("LoadGenerator() failed: %v", err)
	}
	if !loaded.Snapshot().Equal(g.Snapshot()) {
		t.Error("loaded generator differs from the saved one")
	}

	if err := g.FeedFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected an error feeding a missing file")
	} else if kind, _ := IOKind(err); kind != IONotFound {
		t.Errorf("IOKind() = %v, want enoent", kind)
	}
	if _, err := LoadGenerator(filepath.Join(t.TempDir(), "missing.chain")); err == nil {
		t.Error("expected an error loading a missing file")
	}
}

func TestGeneratorExportImportPrune(t *testing.T) {
	g := setupTestGenerator(t)
	var buf bytes.Buffer
	if err := g.Export(&buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if err := g.Import(&buf); err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if got := g.Stats().TotalFrequency; got != 20 {
		t.Errorf("TotalFrequency after self-merge = %d, want 20", got)
	}

	if err := NewGeneratorOfOrder(1).Import(strings.NewReader(`{"order": 2}`)); !errors.Is(err, ErrOrderMismatch) {
		t.Errorf("expected ErrOrderMismatch, got %v", err)
	}

	g.Feed([]string{"rare"})
	if removed := g.Prune(1); removed != 2 {
		t.Errorf("Prune(1) removed %d links, want 2", removed)
	}
}

func TestGeneratorConcurrentUse(t *testing.T) {
	g := NewGeneratorOfOrder(2)
	g.FeedStr("seed sequence so generation never sees an empty chain")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				g.FeedStr("the quick brown fox jumps over the lazy dog")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, ok := g.Generate(WithMaxLength(30)); !ok {
					t.Error("Generate() reported an empty chain")
					return
				}
				g.GenerateFromToken("the", WithMaxLength(30))
				g.Stats()
			}
		}()
	}
	wg.Wait()

	s, e := Start[string](), End[string]()
	if got := g.Snapshot().Count([]Symbol[string]{s, s}, Tok("the")); got != 800 {
		t.Errorf("Count(START START -> the) = %d, want 800", got)
	}
	if got := g.Snapshot().Count([]Symbol[string]{Tok("lazy"), Tok("dog")}, e); got != 800 {
		t.Errorf("Count(lazy dog -> END) = %d, want 800", got)
	}
}
