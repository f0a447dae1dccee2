package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/CTAG07/markovchain/pkg/markov"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates a new SQLite database and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Store) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	s, err := New(db)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)
	return db, s
}

func fishChain() *markov.Chain[string] {
	c := markov.New[string](2)
	markov.FeedString(c, "one fish two fish")
	markov.FeedString(c, "red fish blue fish")
	return c
}

func TestSetupSchemaIdempotent(t *testing.T) {
	db, _ := setupTestDB(t)
	if err := SetupSchema(db); err != nil {
		t.Fatalf("second SetupSchema() failed: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM markov_vocabulary`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected only the two sentinel rows, got %d", n)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	chains := map[string]*markov.Chain[string]{
		"fish":   fishChain(),
		"empty":  markov.New[string](3),
		"order0": markov.New[string](0),
	}
	markov.FeedString(chains["order0"], "a b a")
	sentinels := markov.New[string](1)
	sentinels.Feed([]string{markov.SOCTokenText, markov.EOCTokenText})
	sentinels.Feed(nil)
	chains["sentinels"] = sentinels

	for name, c := range chains {
		t.Run(name, func(t *testing.T) {
			if err := s.Save(ctx, name, c); err != nil {
				t.Fatalf("Save() failed: %v", err)
			}
			loaded, err := s.Load(ctx, name)
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if !c.Equal(loaded) {
				t.Errorf("loaded table %+v, want %+v", loaded.Transitions(), c.Transitions())
			}
			if !reflect.DeepEqual(loaded.Transitions(), c.Transitions()) {
				t.Error("loaded chain does not keep the follower order")
			}
		})
	}
}

func TestSaveReplacesAndMergeAdds(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	if err := s.Save(ctx, "m", fishChain()); err != nil {
		t.Fatal(err)
	}
	if err := s.Merge(ctx, "m", fishChain()); err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	merged, err := s.Load(ctx, "m")
	if err != nil {
		t.Fatal(err)
	}
	start := []markov.Symbol[string]{markov.Start[string](), markov.Start[string]()}
	if got := merged.Count(start, markov.Tok("red")); got != 2 {
		t.Errorf("Count(START START -> red) after merge = %d, want 2", got)
	}

	if err := s.Merge(ctx, "m", markov.New[string](1)); !errors.Is(err, markov.ErrOrderMismatch) {
		t.Errorf("expected ErrOrderMismatch, got %v", err)
	}

	small := markov.New[string](1)
	small.Feed([]string{"x"})
	if err := s.Save(ctx, "m", small); err != nil {
		t.Fatalf("Save() over an existing model failed: %v", err)
	}
	replaced, err := s.Load(ctx, "m")
	if err != nil {
		t.Fatal(err)
	}
	if !replaced.Equal(small) {
		t.Errorf("Save() did not replace the model: %+v", replaced.Transitions())
	}
	if info, _ := s.Model(ctx, "m"); info.Order != 1 {
		t.Errorf("stored order = %d, want 1", info.Order)
	}
}

func TestModelsAndRemove(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"b", "a"} {
		if err := s.Save(ctx, name, fishChain()); err != nil {
			t.Fatal(err)
		}
	}
	models, err := s.Models(ctx)
	if err != nil {
		t.Fatalf("Models() failed: %v", err)
	}
	if len(models) != 2 || models[0].Name != "a" || models[1].Name != "b" {
		t.Errorf("Models() = %+v", models)
	}

	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if _, err := s.Load(ctx, "a"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound after removal, got %v", err)
	}
	if err := s.Remove(ctx, "a"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound removing twice, got %v", err)
	}
	if _, err := s.Load(ctx, "b"); err != nil {
		t.Errorf("removing one model affected another: %v", err)
	}
}

func TestPruneAndStats(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	c := fishChain()
	c.Feed([]string{"one", "fish"})
	if err := s.Save(ctx, "fish", c); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	want := c.Stats()
	want.VocabSize = 0
	if got := stats.Stats["fish"]; got != want {
		t.Errorf("stored stats = %+v, want %+v", got, want)
	}
	if stats.VocabSize != 5 {
		t.Errorf("VocabSize = %d, want 5", stats.VocabSize)
	}

	removed, err := s.Prune(ctx, "fish", 1)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	expectedRemoved := int64(c.Prune(1))
	if removed != expectedRemoved {
		t.Errorf("Prune() removed %d links, want %d", removed, expectedRemoved)
	}
	loaded, err := s.Load(ctx, "fish")
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Equal(c) {
		t.Errorf("pruned store table %+v, want %+v", loaded.Transitions(), c.Transitions())
	}

	if _, err := s.Prune(ctx, "missing", 1); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}

func TestLoadCorruptRows(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()
	if err := s.Save(ctx, "fish", fishChain()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE markov_chains SET next_token_id = 9999 WHERE rowid = (SELECT MIN(rowid) FROM markov_chains)`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "fish"); !errors.Is(err, markov.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func BenchmarkSave(b *testing.B) {
	dbFile := filepath.Join(b.TempDir(), "bench.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=OFF&_cache_size=-16000")
	if err != nil {
		b.Fatalf("failed to open database: %v", err)
	}
	b.Cleanup(func() { _ = db.Close() })
	if err := SetupSchema(db); err != nil {
		b.Fatal(err)
	}
	s, err := New(db)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(s.Close)

	c := markov.New[string](2)
	for i := 0; i < 200; i++ {
		markov.FeedString(c, "the quick brown fox jumps over the lazy dog and keeps on running")
		markov.FeedString(c, "a lazy dog sleeps while the quick fox runs")
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Save(ctx, "bench", c); err != nil {
			b.Fatal(err)
		}
	}
}
