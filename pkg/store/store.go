package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/CTAG07/markovchain/pkg/markov"
)

// ErrModelNotFound is returned when no model with the requested name exists.
var ErrModelNotFound = errors.New("model not found")

// ModelInfo holds the metadata of a stored model.
type ModelInfo struct {
	Id    int    `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// SetupSchema initializes the necessary tables and sentinel vocabulary entries
// in the provided database. It is idempotent and safe to call on an
// already-initialized database.
//
// Vocabulary rows carry the symbol kind next to the text, so a token whose
// text is "<SOC>" is stored apart from the START sentinel.
func SetupSchema(db *sql.DB) error {
	const (
		schemaVocab = `
CREATE TABLE IF NOT EXISTS markov_vocabulary (
    token_id INTEGER PRIMARY KEY,
    token_kind INTEGER NOT NULL,
    token_text TEXT NOT NULL,
    UNIQUE (token_kind, token_text)
);
`
		schemaPrefixes = `
CREATE TABLE IF NOT EXISTS markov_prefixes (
	prefix_id INTEGER PRIMARY KEY,
	prefix_text TEXT NOT NULL UNIQUE
);
`
		schemaModels = `
CREATE TABLE IF NOT EXISTS markov_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    model_order INTEGER NOT NULL
);
`
		schemaChains = `
CREATE TABLE IF NOT EXISTS markov_chains (
    model_id INTEGER NOT NULL,
    prefix_id INTEGER NOT NULL,
    next_token_id INTEGER NOT NULL,
    frequency  INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (model_id, prefix_id, next_token_id)
);
`
		sentinels = `INSERT OR IGNORE INTO markov_vocabulary (token_id, token_kind, token_text) VALUES (?, ?, ?);`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, schema := range []string{schemaVocab, schemaPrefixes, schemaModels, schemaChains} {
		if _, err = tx.Exec(schema); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if _, err = tx.Exec(sentinels, markov.SOCTokenID, markov.KindStart, markov.SOCTokenText); err != nil {
		return fmt.Errorf("could not insert special tokens: %w", err)
	}
	if _, err = tx.Exec(sentinels, markov.EOCTokenID, markov.KindEnd, markov.EOCTokenText); err != nil {
		return fmt.Errorf("could not insert special tokens: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store persists named text chains in a SQL database. Vocabulary and prefixes
// are shared between models; each model owns its chain links.
type Store struct {
	db                    *sql.DB
	stmtGetModelInfo      *sql.Stmt
	stmtGetModels         *sql.Stmt
	stmtAddModel          *sql.Stmt
	stmtPruneModel        *sql.Stmt
	stmtModelChains       *sql.Stmt
	stmtModelStarters     *sql.Stmt
	stmtModelFreq         *sql.Stmt
	stmtGetPrefixID       *sql.Stmt
	stmtGetVocabLen       *sql.Stmt
	stmtGetPrefixLen      *sql.Stmt
	stmtInsertVocab       *sql.Stmt
	stmtGetOrInsertPrefix *sql.Stmt
	logger                *slog.Logger
}

// New prepares every statement the Store needs. SetupSchema must have been
// run on db first.
func New(db *sql.DB) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	statements := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetModelInfo, `SELECT model_id, model_order FROM markov_models WHERE model_name = ?;`},
		{&s.stmtGetModels, `SELECT model_id, model_name, model_order FROM markov_models ORDER BY model_name;`},
		{&s.stmtAddModel, `INSERT INTO markov_models (model_name, model_order) VALUES (?, ?) RETURNING model_id;`},
		{&s.stmtPruneModel, `DELETE FROM markov_chains WHERE model_id = ? AND frequency <= ?;`},
		{&s.stmtModelChains, `SELECT COUNT(*), COUNT(DISTINCT prefix_id) FROM markov_chains WHERE model_id = ?;`},
		{&s.stmtModelStarters, `SELECT COUNT(*) FROM markov_chains WHERE model_id = ? AND prefix_id = ?;`},
		{&s.stmtModelFreq, `SELECT coalesce(SUM(frequency), 0) FROM markov_chains WHERE model_id = ?;`},
		{&s.stmtGetPrefixID, `SELECT prefix_id FROM markov_prefixes WHERE prefix_text = ?;`},
		{&s.stmtGetVocabLen, `SELECT COUNT(*) FROM markov_vocabulary WHERE token_kind = ?;`},
		{&s.stmtGetPrefixLen, `SELECT COUNT(*) FROM markov_prefixes;`},
		{&s.stmtInsertVocab, `INSERT INTO markov_vocabulary (token_kind, token_text) VALUES (?, ?) ON CONFLICT(token_kind, token_text) DO UPDATE SET token_text=excluded.token_text RETURNING token_id;`},
		{&s.stmtGetOrInsertPrefix, `INSERT INTO markov_prefixes (prefix_text) VALUES (?) ON CONFLICT(prefix_text) DO UPDATE SET prefix_text=excluded.prefix_text RETURNING prefix_id;`},
	}
	for _, st := range statements {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
		*st.dst = stmt
	}
	return s, nil
}

// Close releases all prepared statements. The database itself is left open.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetModelInfo, s.stmtGetModels, s.stmtAddModel, s.stmtPruneModel,
		s.stmtModelChains, s.stmtModelStarters, s.stmtModelFreq, s.stmtGetPrefixID,
		s.stmtGetVocabLen, s.stmtGetPrefixLen, s.stmtInsertVocab, s.stmtGetOrInsertPrefix,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Models returns the metadata of every stored model, ordered by name.
func (s *Store) Models(ctx context.Context) ([]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make([]ModelInfo, 0)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name, &model.Order); err != nil {
			return nil, err
		}
		models = append(models, model)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// Model returns the metadata of a single model. ErrModelNotFound is returned
// when no model has that name.
func (s *Store) Model(ctx context.Context, name string) (ModelInfo, error) {
	return modelInfo(ctx, s.stmtGetModelInfo, name)
}

func modelInfo(ctx context.Context, stmt *sql.Stmt, name string) (ModelInfo, error) {
	model := ModelInfo{Name: name}
	err := stmt.QueryRowContext(ctx, name).Scan(&model.Id, &model.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelInfo{}, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	if err != nil {
		return ModelInfo{}, err
	}
	return model, nil
}

// Remove deletes a model and all of its chain links. Shared vocabulary and
// prefixes are kept.
func (s *Store) Remove(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	model, err := modelInfo(ctx, tx.StmtContext(ctx, s.stmtGetModelInfo), name)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_chains WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove chains for model %d: %w", model.Id, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_models WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", model.Id, err)
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
	)
	return nil
}

// Prune removes every link of a model whose frequency is less than or equal
// to minFreq and returns the number of links removed.
func (s *Store) Prune(ctx context.Context, name string, minFreq int) (int64, error) {
	model, err := s.Model(ctx, name)
	if err != nil {
		return 0, err
	}
	res, err := s.stmtPruneModel.ExecContext(ctx, model.Id, minFreq)
	if err != nil {
		return 0, fmt.Errorf("could not prune model %d: %w", model.Id, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model pruned",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("min_frequency", minFreq),
		slog.Int64("chains_removed", rowsAffected),
	)
	return rowsAffected, nil
}
