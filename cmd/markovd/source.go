package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/CTAG07/markovchain/pkg/markov"
	"github.com/CTAG07/markovchain/pkg/store"
	"github.com/spf13/cobra"
)

// chainSource names where an offline command reads or writes a chain: a
// binary chain file or a named model in the store database.
type chainSource struct {
	modelPath string
	storeName string
}

func (s *chainSource) registerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.modelPath, "model", "m", "", "Binary chain file")
	cmd.Flags().StringVarP(&s.storeName, "store", "s", "", "Model name in the store database")
	cmd.MarkFlagsMutuallyExclusive("model", "store")
}

func (s *chainSource) validate() error {
	if s.modelPath == "" && s.storeName == "" {
		return errors.New("one of --model or --store is required")
	}
	return nil
}

// openStore opens the configured database with its schema in place. The
// returned func closes both the store and the database.
func (a *app) openStore() (*store.Store, func(), error) {
	if err := ensureDBDir(a.cfg.Store.DatabasePath); err != nil {
		return nil, nil, err
	}
	db, err := initDB(a.cfg.Store.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	closeDB := func(db *sql.DB) {
		if err := db.Close(); err != nil {
			a.logger.Error("Failed to close database", "error", err)
		}
	}
	if err = store.SetupSchema(db); err != nil {
		closeDB(db)
		return nil, nil, err
	}
	st, err := store.New(db)
	if err != nil {
		closeDB(db)
		return nil, nil, err
	}
	st.SetLogger(a.logger)
	return st, func() {
		st.Close()
		closeDB(db)
	}, nil
}

// loadChain reads the chain named by src.
func (a *app) loadChain(ctx context.Context, src chainSource) (*markov.Chain[string], error) {
	if src.modelPath != "" {
		return markov.LoadFile(src.modelPath)
	}
	st, closeStore, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer closeStore()
	return st.Load(ctx, src.storeName)
}
