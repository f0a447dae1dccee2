package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/CTAG07/markovchain/internal/config"
	"github.com/CTAG07/markovchain/pkg/markov"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app carries what the subcommands share once the root command has loaded
// the configuration.
type app struct {
	cfgFile string
	envFile string
	cfg     config.Config
	logger  *slog.Logger
	loaded  bool
}

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()
	a := &app{}

	cmd := &cobra.Command{
		Use:           "markovd",
		Short:         "Train, inspect and serve Markov chain text models",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(a.envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			loaded, err := config.Load(config.LoadOptions{
				Cmd:          cmd,
				ConfigFile:   a.cfgFile,
				Defaults:     defaults,
				WriteDefault: a.cfgFile != "",
			})
			if err != nil {
				return err
			}
			a.cfg = loaded
			a.logger = newLogger(cmd.ErrOrStderr(), loaded.LogLevel)
			a.loaded = true
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Config file (yaml|toml|json), created with defaults if missing")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "File of MARKOVD_* variables loaded into the environment")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newTrainCmd(a))
	cmd.AddCommand(newGenerateCmd(a))
	cmd.AddCommand(newInspectCmd(a))

	return cmd
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(w io.Writer, levelStr string) *slog.Logger {
	lvl, err := config.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// loadEnvFile exports the variables in path without overriding ones already
// set. A missing file is only an error when it was asked for explicitly.
func loadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func (a *app) requireConfig() (config.Config, error) {
	if !a.loaded {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return a.cfg, nil
}

// generateOptions turns the configured chain defaults into generation options.
func generateOptions(c config.ChainConfig) []markov.GenerateOption {
	return []markov.GenerateOption{
		markov.WithMaxLength(c.MaxLength),
		markov.WithTemperature(c.Temperature),
		markov.WithTopK(c.TopK),
	}
}
