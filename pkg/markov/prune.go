package markov

// Prune removes every link whose frequency is less than or equal to minFreq
// and returns how many links were removed. Windows left without followers
// are dropped entirely. This is useful for reducing the size of a chain by
// removing rare, and often noisy, transitions.
//
// Pruning can remove END links, so walks over a pruned chain may no longer be
// guaranteed to finish; pass WithMaxLength when generating from one.
func (c *Chain[T]) Prune(minFreq int) int {
	removed := 0
	for key, p := range c.prefixes {
		kept := p.links[:0]
		for _, link := range p.links {
			if link.Freq <= minFreq {
				removed++
				p.total -= link.Freq
				delete(p.index, link.Id)
				continue
			}
			p.index[link.Id] = len(kept)
			kept = append(kept, link)
		}
		p.links = kept
		if len(p.links) == 0 {
			delete(c.prefixes, key)
		}
	}
	return removed
}
