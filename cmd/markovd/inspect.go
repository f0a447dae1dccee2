package main

import (
	"encoding/json"
	"errors"

	"github.com/CTAG07/markovchain/pkg/markov"
	"github.com/spf13/cobra"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		src    chainSource
		export bool
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print statistics or the JSON export of a chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.requireConfig(); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if all {
				if export {
					return errors.New("--export cannot be combined with --all")
				}
				st, closeStore, err := a.openStore()
				if err != nil {
					return err
				}
				defer closeStore()
				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return enc.Encode(stats)
			}

			if err := src.validate(); err != nil {
				return err
			}
			c, err := a.loadChain(cmd.Context(), src)
			if err != nil {
				return err
			}
			if export {
				return markov.Export(c, cmd.OutOrStdout())
			}
			return enc.Encode(c.Stats())
		},
	}
	src.registerFlags(cmd)
	cmd.Flags().BoolVar(&export, "export", false, "Print the chain as a JSON model instead of statistics")
	cmd.Flags().BoolVar(&all, "all", false, "Print statistics for every model in the store database")
	return cmd
}
