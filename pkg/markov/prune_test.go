package markov

import "testing"

func TestPrune(t *testing.T) {
	c := New[string](1)
	FeedString(c, "a b a b a c")

	// a -> b:2, a -> c:1, START -> a:1, b -> a:2, c -> END:1
	removed := c.Prune(1)
	if removed != 3 {
		t.Errorf("Prune(1) removed %d links, want 3", removed)
	}

	for _, tr := range c.Transitions() {
		if tr.Count <= 1 {
			t.Errorf("transition %v -> %v with count %d survived pruning", tr.Context, tr.Next, tr.Count)
		}
	}
	if got := c.Count([]Symbol[string]{Tok("a")}, Tok("b")); got != 2 {
		t.Errorf("Count(a -> b) = %d, want 2", got)
	}
	if _, total := c.NextTokens([]Symbol[string]{Tok("a")}); total != 2 {
		t.Errorf("total after prune = %d, want 2", total)
	}
	if _, total := c.NextTokens([]Symbol[string]{Tok("c")}); total != 0 {
		t.Error("a window left without followers should be dropped")
	}

	// Links stay reachable through the rebuilt index.
	c.Feed([]string{"a", "b"})
	if got := c.Count([]Symbol[string]{Tok("a")}, Tok("b")); got != 3 {
		t.Errorf("Count(a -> b) after re-feed = %d, want 3", got)
	}
}

func TestPruneEverything(t *testing.T) {
	c := setupTestChain(t)
	links := c.Stats().TotalChains
	if removed := c.Prune(1 << 30); removed != links {
		t.Errorf("Prune() removed %d links, want %d", removed, links)
	}
	if !c.IsEmpty() {
		t.Errorf("expected an empty chain after pruning everything, %d prefixes left", c.Len())
	}
}

func TestPruneNothing(t *testing.T) {
	c := setupTestChain(t)
	before := c.Clone()
	if removed := c.Prune(0); removed != 0 {
		t.Errorf("Prune(0) removed %d links", removed)
	}
	if !c.Equal(before) {
		t.Error("Prune(0) changed the chain")
	}
}

func TestStats(t *testing.T) {
	c := setupTestChain(t)
	stats := c.Stats()
	want := ModelStats{
		Order:          2,
		Prefixes:       9,
		TotalChains:    10,
		TotalFrequency: 10,
		StartingTokens: 2,
		VocabSize:      5,
	}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
	if empty := New[string](3).Stats(); empty != (ModelStats{Order: 3}) {
		t.Errorf("Stats() of empty chain = %+v", empty)
	}
}
