package markov

// ModelStats holds aggregated statistics for a single chain.
type ModelStats struct {
	Order          int `json:"order"`           // The number of symbols in every context window.
	Prefixes       int `json:"prefixes"`        // The number of distinct context windows.
	TotalChains    int `json:"total_chains"`    // The number of unique prefix->next_token links.
	TotalFrequency int `json:"total_frequency"` // The sum of frequencies of all links; the total number of recorded transitions.
	StartingTokens int `json:"starting_tokens"` // The number of unique symbols that can start a sequence.
	VocabSize      int `json:"vocab_size"`      // The number of unique tokens fed, sentinels excluded.
}

// Stats returns a snapshot of statistics for the chain.
func (c *Chain[T]) Stats() ModelStats {
	stats := ModelStats{
		Order:     c.order,
		Prefixes:  len(c.prefixes),
		VocabSize: len(c.vocab),
	}
	for _, p := range c.prefixes {
		stats.TotalChains += len(p.links)
		stats.TotalFrequency += p.total
	}
	// The start window is Order copies of SOCTokenID (0).
	if p, ok := c.prefixes[string(appendKey(nil, make([]int, c.order)))]; ok {
		stats.StartingTokens = len(p.links)
	}
	return stats
}
