package markov

// Feed records one observed sequence. The context starts as Order copies of
// START; each token is recorded as following the current window, then slides
// into it. A final transition to END closes the sequence. An empty sequence
// still records START...START -> END.
func (c *Chain[T]) Feed(tokens []T) {
	sentence := make([]int, len(tokens))
	for i, t := range tokens {
		sentence[i] = c.intern(t)
	}
	c.feedIDs(sentence)
}

// feedIDs slides the window over an already interned sequence.
func (c *Chain[T]) feedIDs(sentence []int) {
	fullSlice := make([]int, len(sentence)+c.order+1)
	// The leading Order slots stay SOCTokenID (0).
	copy(fullSlice[c.order:len(fullSlice)-1], sentence)
	fullSlice[len(fullSlice)-1] = EOCTokenID

	for i := 0; i < len(sentence)+1; i++ { // len+1 to include the final EOC.
		c.recordTransition(fullSlice[i:i+c.order], fullSlice[i+c.order], 1)
	}
}
