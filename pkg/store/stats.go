package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/CTAG07/markovchain/pkg/markov"
)

// DBStats holds aggregated statistics for the entire database, including a
// list of all models and their individual stats.
type DBStats struct {
	Models     []ModelInfo                  `json:"models"`      // A list of models in the database
	Stats      map[string]markov.ModelStats `json:"stats"`       // A mapping of model names to their stats
	VocabSize  int                          `json:"vocab_size"`  // The number of unique tokens in all models' vocabularies
	PrefixSize int                          `json:"prefix_size"` // The number of unique prefixes in all models' chains
}

// Stats returns a snapshot of statistics for the entire database, including
// global counts and per-model stats. VocabSize in the per-model stats is left
// at zero since the vocabulary is shared.
func (s *Store) Stats(ctx context.Context) (*DBStats, error) {
	models, err := s.Models(ctx)
	if err != nil {
		return nil, err
	}

	var vocabLen int
	if err = s.stmtGetVocabLen.QueryRowContext(ctx, markov.KindToken).Scan(&vocabLen); err != nil {
		return nil, err
	}
	var prefixLen int
	if err = s.stmtGetPrefixLen.QueryRowContext(ctx).Scan(&prefixLen); err != nil {
		return nil, err
	}

	modelStats := make(map[string]markov.ModelStats, len(models))
	for _, m := range models {
		stats := markov.ModelStats{Order: m.Order}
		if err = s.stmtModelChains.QueryRowContext(ctx, m.Id).Scan(&stats.TotalChains, &stats.Prefixes); err != nil {
			return nil, err
		}
		if err = s.stmtModelFreq.QueryRowContext(ctx, m.Id).Scan(&stats.TotalFrequency); err != nil {
			return nil, err
		}

		// The start window is Order copies of SOCTokenID.
		chain := make([]string, m.Order)
		socStr := strconv.Itoa(markov.SOCTokenID)
		for i := range chain {
			chain[i] = socStr
		}
		var socId int
		err = s.stmtGetPrefixID.QueryRowContext(ctx, strings.Join(chain, " ")).Scan(&socId)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
		} else if err = s.stmtModelStarters.QueryRowContext(ctx, m.Id, socId).Scan(&stats.StartingTokens); err != nil {
			return nil, err
		}
		modelStats[m.Name] = stats
	}

	return &DBStats{
		Models:     models,
		Stats:      modelStats,
		VocabSize:  vocabLen,
		PrefixSize: prefixLen,
	}, nil
}
