package markov

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ExportedModel is the serializable representation of a trained text chain,
// used for JSON-based import and export. Vocabulary IDs 0 and 1 are reserved
// for the START and END sentinels and never appear in Vocabulary.
type ExportedModel struct {
	Order      int             `json:"order"`
	Vocabulary map[string]int  `json:"vocabulary"` // token_text -> token_id
	Prefixes   map[string]int  `json:"prefixes"`   // prefix_text -> prefix_id
	Chains     []ExportedChain `json:"chains"`
}

// ExportedChain is the serializable representation of a single link
// in a Markov chain, used within an ExportedModel.
type ExportedChain struct {
	PrefixID    int `json:"prefix_id"`
	NextTokenID int `json:"next_token_id"`
	Frequency   int `json:"frequency"`
}

// ExportModel builds the serializable form of c.
func ExportModel(c *Chain[string]) ExportedModel {
	exported := ExportedModel{
		Order:      c.order,
		Vocabulary: make(map[string]int, len(c.vocab)),
		Prefixes:   make(map[string]int, len(c.prefixes)),
	}
	for i, text := range c.vocab {
		exported.Vocabulary[text] = i + firstTokenID
	}
	for prefixID, p := range c.sortedPrefixes() {
		exported.Prefixes[string(appendKey(nil, p.ids))] = prefixID
		for _, link := range p.links {
			exported.Chains = append(exported.Chains, ExportedChain{
				PrefixID:    prefixID,
				NextTokenID: link.Id,
				Frequency:   link.Freq,
			})
		}
	}
	return exported
}

// Export serializes c into indented JSON and writes it to w. This is useful
// for backups or for inspecting a model by hand.
func Export(c *Chain[string], w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ExportModel(c)); err != nil {
		return newIOError("export", "", err)
	}
	return nil
}

// decodeExported reads an ExportedModel, resolves it into transitions and
// builds them into a fresh chain. Nothing outside that chain is touched, so a
// bad entry cannot leave a merge target half updated.
func decodeExported(r io.Reader) (*Chain[string], []Transition[string], error) {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to decode json model: %w", ErrCorrupt, err)
	}
	if imported.Order < 0 {
		return nil, nil, fmt.Errorf("%w: negative order %d", ErrCorrupt, imported.Order)
	}

	vocab := make(map[int]Symbol[string], len(imported.Vocabulary)+2)
	vocab[SOCTokenID] = Start[string]()
	vocab[EOCTokenID] = End[string]()
	for text, id := range imported.Vocabulary {
		if id < firstTokenID {
			return nil, nil, fmt.Errorf("%w: token %q uses reserved id %d", ErrCorrupt, text, id)
		}
		if _, dup := vocab[id]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate token id %d", ErrCorrupt, id)
		}
		vocab[id] = Tok(text)
	}

	prefixes := make(map[int][]Symbol[string], len(imported.Prefixes))
	for text, prefixID := range imported.Prefixes {
		var parts []string
		if text != "" {
			parts = strings.Split(text, " ")
		}
		if len(parts) != imported.Order {
			return nil, nil, fmt.Errorf("%w: prefix %q does not match order %d", ErrCorrupt, text, imported.Order)
		}
		context := make([]Symbol[string], len(parts))
		for i, part := range parts {
			tokenID, err := strconv.Atoi(part)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: prefix %q: %v", ErrCorrupt, text, err)
			}
			s, ok := vocab[tokenID]
			if !ok {
				return nil, nil, fmt.Errorf("%w: old token id %d in prefix not found in vocab map", ErrCorrupt, tokenID)
			}
			context[i] = s
		}
		prefixes[prefixID] = context
	}

	transitions := make([]Transition[string], 0, len(imported.Chains))
	for _, chain := range imported.Chains {
		context, ok := prefixes[chain.PrefixID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: prefix id %d not found in prefix map", ErrCorrupt, chain.PrefixID)
		}
		next, ok := vocab[chain.NextTokenID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: token id %d not found in vocab map", ErrCorrupt, chain.NextTokenID)
		}
		transitions = append(transitions, Transition[string]{Context: context, Next: next, Count: chain.Frequency})
	}

	scratch := New[string](imported.Order)
	for _, t := range transitions {
		if err := scratch.Add(t.Context, t.Next, t.Count); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	return scratch, transitions, nil
}

// Import reads a JSON model written by Export and merges it into c: the
// frequencies of transitions present in both are added. The orders must match.
func Import(c *Chain[string], r io.Reader) error {
	imported, transitions, err := decodeExported(r)
	if err != nil {
		return err
	}
	if imported.order != c.order {
		return fmt.Errorf("%w: importing order %d into order %d", ErrOrderMismatch, imported.order, c.order)
	}
	for _, t := range transitions {
		// Already validated by decodeExported.
		_ = c.Add(t.Context, t.Next, t.Count)
	}
	return nil
}

// ImportNew builds a new chain from a JSON model written by Export.
func ImportNew(r io.Reader) (*Chain[string], error) {
	imported, _, err := decodeExported(r)
	if err != nil {
		return nil, err
	}
	return imported, nil
}
