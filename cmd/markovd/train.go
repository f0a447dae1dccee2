package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/CTAG07/markovchain/pkg/markov"
	"github.com/spf13/cobra"
)

func newTrainCmd(a *app) *cobra.Command {
	var (
		dst        chainSource
		appendMode bool
	)
	cmd := &cobra.Command{
		Use:   "train [file]...",
		Short: "Feed text into a chain file or a stored model",
		Long: `Feeds every non-empty line of the given files (or stdin when no file is
given) as one whitespace-separated sequence. The chain is written to --model
as a binary chain file or to --store as a named model.

With --append an existing chain file is extended instead of replaced, and a
stored model is merged into instead of overwritten.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.requireConfig()
			if err != nil {
				return err
			}
			if err = dst.validate(); err != nil {
				return err
			}

			c, err := a.trainingBase(dst, appendMode, cfg.Chain.Order)
			if err != nil {
				return err
			}

			total := 0
			if len(args) == 0 {
				n, err := markov.FeedReader(c, cmd.InOrStdin(), markov.NewLineTokenizer())
				total += n
				if err != nil {
					return err
				}
			}
			for _, path := range args {
				n, err := markov.FeedFile(c, path)
				total += n
				if err != nil {
					return err
				}
				a.logger.Debug("File fed", "path", path, "sequences_fed", n)
			}

			if err = a.writeChain(cmd.Context(), dst, c, appendMode); err != nil {
				return err
			}
			stats := c.Stats()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "fed %d sequences: %d prefixes, %d links, %d tokens\n",
				total, stats.Prefixes, stats.TotalChains, stats.VocabSize)
			return err
		},
	}
	dst.registerFlags(cmd)
	cmd.Flags().BoolVarP(&appendMode, "append", "a", false, "Extend the existing chain instead of replacing it")
	return cmd
}

// trainingBase returns the chain training starts from. Only an appended chain
// file is read back; stored models are merged on write instead.
func (a *app) trainingBase(dst chainSource, appendMode bool, order int) (*markov.Chain[string], error) {
	if !appendMode || dst.modelPath == "" {
		return markov.New[string](order), nil
	}
	c, err := markov.LoadFile(dst.modelPath)
	if kind, ok := markov.IOKind(err); ok && kind == markov.IONotFound {
		return markov.New[string](order), nil
	}
	if err != nil {
		return nil, err
	}
	if c.Order() != order {
		a.logger.Warn("Appending to a chain of a different order than configured",
			"path", dst.modelPath, "chain_order", c.Order(), "configured_order", order)
	}
	return c, nil
}

func (a *app) writeChain(ctx context.Context, dst chainSource, c *markov.Chain[string], appendMode bool) error {
	if dst.modelPath != "" {
		return markov.SaveFile(c, dst.modelPath)
	}
	st, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	if appendMode {
		err = st.Merge(ctx, dst.storeName, c)
	} else {
		err = st.Save(ctx, dst.storeName, c)
	}
	if errors.Is(err, markov.ErrOrderMismatch) {
		return fmt.Errorf("cannot append to model %q: %w", dst.storeName, err)
	}
	return err
}
