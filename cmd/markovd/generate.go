package main

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/CTAG07/markovchain/pkg/markov"
	"github.com/spf13/cobra"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		src      chainSource
		seed     string
		count    int
		randSeed uint64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print sequences generated from a chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.requireConfig()
			if err != nil {
				return err
			}
			if err = src.validate(); err != nil {
				return err
			}
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}

			c, err := a.loadChain(cmd.Context(), src)
			if err != nil {
				return err
			}
			if c.IsEmpty() {
				return errors.New("chain is empty")
			}

			opts := generateOptions(cfg.Chain)
			if cmd.Flags().Changed("rand-seed") {
				opts = append(opts, markov.WithRand(rand.New(rand.NewPCG(randSeed, randSeed))))
			}
			seeded := cmd.Flags().Changed("seed")

			tokenizer := markov.NewLineTokenizer()
			out := cmd.OutOrStdout()
			for range count {
				var tokens []string
				if seeded {
					tokens = c.GenerateFromToken(seed, opts...)
				} else {
					tokens, _ = c.Generate(opts...)
				}
				if _, err = fmt.Fprintln(out, markov.JoinTokens(tokenizer, tokens)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	src.registerFlags(cmd)
	cmd.Flags().StringVar(&seed, "seed", "", "Start every sequence as if this token had been emitted")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of sequences to print")
	cmd.Flags().Uint64Var(&randSeed, "rand-seed", 0, "Seed the random source for reproducible output")
	return cmd
}
