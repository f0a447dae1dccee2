package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/CTAG07/markovchain/pkg/markov"
)

// chainBatchSize determines how many chain links are buffered in memory
// before being written to the database.
const chainBatchSize = 1000

// tokenQueryChunk bounds the number of ids bound into one IN (...) query.
const tokenQueryChunk = 500

// chainLink is one buffered markov_chains row.
type chainLink struct {
	prefixID    int
	nextTokenID int
	frequency   int
}

// Save stores c under name, replacing whatever the model held before. The
// model is created if it does not exist; an existing model takes on the order
// of c.
func (s *Store) Save(ctx context.Context, name string, c *markov.Chain[string]) error {
	return s.write(ctx, name, c, true)
}

// Merge adds the counts of c to the model stored under name, creating it if
// needed. Merging a chain of a different order fails with
// markov.ErrOrderMismatch.
func (s *Store) Merge(ctx context.Context, name string, c *markov.Chain[string]) error {
	return s.write(ctx, name, c, false)
}

func (s *Store) write(ctx context.Context, name string, c *markov.Chain[string], replace bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// All transaction-specific statements will also be closed with this or the .Commit()
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	model, err := modelInfo(ctx, tx.StmtContext(ctx, s.stmtGetModelInfo), name)
	switch {
	case errors.Is(err, ErrModelNotFound):
		model = ModelInfo{Name: name, Order: c.Order()}
		if err = tx.StmtContext(ctx, s.stmtAddModel).QueryRowContext(ctx, name, c.Order()).Scan(&model.Id); err != nil {
			return fmt.Errorf("could not create model %q: %w", name, err)
		}
	case err != nil:
		return err
	case replace:
		if _, err = tx.ExecContext(ctx, "DELETE FROM markov_chains WHERE model_id = ?", model.Id); err != nil {
			return fmt.Errorf("failed to clear chains for model %d: %w", model.Id, err)
		}
		if _, err = tx.ExecContext(ctx, "UPDATE markov_models SET model_order = ? WHERE model_id = ?", c.Order(), model.Id); err != nil {
			return fmt.Errorf("failed to update model %d: %w", model.Id, err)
		}
		model.Order = c.Order()
	case model.Order != c.Order():
		return fmt.Errorf("%w: merging order %d into stored order %d", markov.ErrOrderMismatch, c.Order(), model.Order)
	}

	stmtInsertVocab := tx.StmtContext(ctx, s.stmtInsertVocab)
	stmtGetOrInsertPrefix := tx.StmtContext(ctx, s.stmtGetOrInsertPrefix)
	stmtInsertChainBatch, err := tx.PrepareContext(ctx, `INSERT INTO markov_chains (model_id, prefix_id, next_token_id, frequency) VALUES (?, ?, ?, ?) ON CONFLICT(model_id, prefix_id, next_token_id) DO UPDATE SET frequency = frequency + excluded.frequency;`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch chain insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertChainBatch)

	commitChainBatch := func(batch *[]chainLink) error {
		for _, link := range *batch {
			if _, err := stmtInsertChainBatch.ExecContext(ctx, model.Id, link.prefixID, link.nextTokenID, link.frequency); err != nil {
				return fmt.Errorf("failed during batch insert of chain link (%d -> %d): %w", link.prefixID, link.nextTokenID, err)
			}
		}
		*batch = (*batch)[:0]
		return nil
	}

	tokenCache := map[markov.Symbol[string]]int{
		markov.Start[string](): markov.SOCTokenID,
		markov.End[string]():   markov.EOCTokenID,
	}
	tokenID := func(sym markov.Symbol[string]) (int, error) {
		if id, ok := tokenCache[sym]; ok {
			return id, nil
		}
		var id int
		if err := stmtInsertVocab.QueryRowContext(ctx, sym.Kind, sym.Token).Scan(&id); err != nil {
			return 0, fmt.Errorf("sql insert vocabulary error for token '%s': %w", sym.Token, err)
		}
		tokenCache[sym] = id
		return id, nil
	}

	prefixCache := make(map[string]int)
	chainBatch := make([]chainLink, 0, chainBatchSize)
	var keyBuf []byte
	transitions := c.Transitions()

	for _, t := range transitions {
		keyBuf = keyBuf[:0]
		for j, sym := range t.Context {
			id, err := tokenID(sym)
			if err != nil {
				return err
			}
			if j > 0 {
				keyBuf = append(keyBuf, ' ')
			}
			keyBuf = strconv.AppendInt(keyBuf, int64(id), 10)
		}
		prefixKey := string(keyBuf)

		prefixID, ok := prefixCache[prefixKey]
		if !ok {
			if err := stmtGetOrInsertPrefix.QueryRowContext(ctx, prefixKey).Scan(&prefixID); err != nil {
				return fmt.Errorf("failed to get or insert prefix '%s': %w", prefixKey, err)
			}
			prefixCache[prefixKey] = prefixID
		}

		nextID, err := tokenID(t.Next)
		if err != nil {
			return err
		}
		chainBatch = append(chainBatch, chainLink{prefixID: prefixID, nextTokenID: nextID, frequency: t.Count})
		if len(chainBatch) >= chainBatchSize {
			if err := commitChainBatch(&chainBatch); err != nil {
				return err
			}
		}
	}
	if err := commitChainBatch(&chainBatch); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model stored",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Bool("replaced", replace),
		slog.Int("links_written", len(transitions)),
	)
	return nil
}

// Load rebuilds the chain stored under name. Links come back in the order
// they were first written, so generation over the loaded chain draws from the
// same follower order as the chain that was saved. Rows that cannot form a
// valid chain are reported with an error wrapping markov.ErrCorrupt.
func (s *Store) Load(ctx context.Context, name string) (*markov.Chain[string], error) {
	model, err := s.Model(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT p.prefix_text, c.next_token_id, c.frequency
FROM markov_chains c JOIN markov_prefixes p ON p.prefix_id = c.prefix_id
WHERE c.model_id = ?
ORDER BY c.rowid;`, model.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query chains for model %d: %w", model.Id, err)
	}
	type row struct {
		prefix    []int
		next, frq int
	}
	var loaded []row
	tokenIDs := make(map[int]struct{})
	for rows.Next() {
		var text string
		var r row
		if err = rows.Scan(&text, &r.next, &r.frq); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if r.prefix, err = parsePrefix(text, model.Order); err != nil {
			_ = rows.Close()
			return nil, err
		}
		for _, id := range r.prefix {
			tokenIDs[id] = struct{}{}
		}
		tokenIDs[r.next] = struct{}{}
		loaded = append(loaded, r)
	}
	_ = rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	symbols, err := s.symbols(ctx, tokenIDs)
	if err != nil {
		return nil, err
	}

	c := markov.New[string](model.Order)
	window := make([]markov.Symbol[string], model.Order)
	for _, r := range loaded {
		for i, id := range r.prefix {
			window[i] = symbols[id]
		}
		if err = c.Add(window, symbols[r.next], r.frq); err != nil {
			return nil, fmt.Errorf("%w: model %q: %v", markov.ErrCorrupt, name, err)
		}
	}

	s.logger.DebugContext(ctx, "Model loaded",
		slog.String("model_name", model.Name),
		slog.Int("links", len(loaded)),
	)
	return c, nil
}

func parsePrefix(text string, order int) ([]int, error) {
	var parts []string
	if text != "" {
		parts = strings.Split(text, " ")
	}
	if len(parts) != order {
		return nil, fmt.Errorf("%w: prefix %q does not match order %d", markov.ErrCorrupt, text, order)
	}
	ids := make([]int, len(parts))
	for i, part := range parts {
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: prefix %q: %v", markov.ErrCorrupt, text, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// symbols resolves vocabulary ids, a chunk at a time.
func (s *Store) symbols(ctx context.Context, ids map[int]struct{}) (map[int]markov.Symbol[string], error) {
	out := make(map[int]markov.Symbol[string], len(ids))
	pending := make([]any, 0, len(ids))
	for id := range ids {
		pending = append(pending, id)
	}

	for len(pending) > 0 {
		chunk := pending[:min(tokenQueryChunk, len(pending))]
		pending = pending[len(chunk):]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		query := fmt.Sprintf(`SELECT token_id, token_kind, token_text FROM markov_vocabulary WHERE token_id IN (%s)`, placeholders)
		rows, err := s.db.QueryContext(ctx, query, chunk...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id int
			var kind uint8
			var text string
			if err = rows.Scan(&id, &kind, &text); err != nil {
				_ = rows.Close()
				return nil, err
			}
			switch markov.SymbolKind(kind) {
			case markov.KindStart:
				out[id] = markov.Start[string]()
			case markov.KindEnd:
				out[id] = markov.End[string]()
			case markov.KindToken:
				out[id] = markov.Tok(text)
			default:
				_ = rows.Close()
				return nil, fmt.Errorf("%w: token %d has unknown kind %d", markov.ErrCorrupt, id, kind)
			}
		}
		_ = rows.Close()
		if err = rows.Err(); err != nil {
			return nil, err
		}
	}

	if len(out) != len(ids) {
		return nil, fmt.Errorf("%w: %d token ids missing from vocabulary", markov.ErrCorrupt, len(ids)-len(out))
	}
	return out, nil
}
