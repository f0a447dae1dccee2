// Package config loads markovd settings from defaults, an optional config
// file, MARKOVD_* environment variables and command line flags, in that order
// of increasing precedence.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string       `mapstructure:"log_level" json:"log_level"`
	Server   ServerConfig `mapstructure:"server" json:"server"`
	Chain    ChainConfig  `mapstructure:"chain" json:"chain"`
	Store    StoreConfig  `mapstructure:"store" json:"store"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr" json:"listen_addr"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" json:"shutdown_timeout"` // seconds
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes" json:"max_body_bytes"`
	// FileRoot confines every server-side path to one directory when set.
	FileRoot string `mapstructure:"file_root" json:"file_root"`
}

// ChainConfig holds the defaults used when creating chains and generating.
type ChainConfig struct {
	Order       int     `mapstructure:"order" json:"order"`
	MaxLength   int     `mapstructure:"max_length" json:"max_length"`
	Temperature float64 `mapstructure:"temperature" json:"temperature"`
	TopK        int     `mapstructure:"top_k" json:"top_k"`
}

type StoreConfig struct {
	DatabasePath string `mapstructure:"database_path" json:"database_path"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
	// WriteDefault creates ConfigFile from Defaults when it does not exist.
	WriteDefault bool
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			ListenAddr:      ":7278",
			ShutdownTimeout: 10,
			MaxBodyBytes:    8 << 20,
			FileRoot:        "",
		},
		Chain: ChainConfig{
			Order:       2,
			MaxLength:   0,
			Temperature: 1.0,
			TopK:        0,
		},
		Store: StoreConfig{
			DatabasePath: "./data/markovd.db",
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.Int64("server-max-body-bytes", defaults.Server.MaxBodyBytes, "Maximum accepted request body size")
	fs.String("server-file-root", defaults.Server.FileRoot, "Directory that server-side file paths must stay inside")
	fs.Int("chain-order", defaults.Chain.Order, "Order of newly created chains")
	fs.Int("chain-max-length", defaults.Chain.MaxLength, "Maximum generated tokens (0 = unlimited)")
	fs.Float64("chain-temperature", defaults.Chain.Temperature, "Sampling temperature (<= 0 is deterministic)")
	fs.Int("chain-top-k", defaults.Chain.TopK, "Restrict sampling to the k most frequent followers (0 = off)")
	fs.String("store-database-path", defaults.Store.DatabasePath, "SQLite data source for the model store")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix("MARKOVD")
	replacer := strings.NewReplacer("-", "_", ".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		if opts.WriteDefault {
			if err := writeDefault(opts.ConfigFile, opts.Defaults); err != nil {
				return Config{}, err
			}
		}
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("markovd")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no component can work with.
func (c Config) Validate() error {
	if c.Chain.Order < 0 {
		return fmt.Errorf("chain.order must not be negative, got %d", c.Chain.Order)
	}
	if c.Chain.MaxLength < 0 {
		return fmt.Errorf("chain.max_length must not be negative, got %d", c.Chain.MaxLength)
	}
	if c.Chain.TopK < 0 {
		return fmt.Errorf("chain.top_k must not be negative, got %d", c.Chain.TopK)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// writeDefault creates path holding defaults as indented JSON if nothing
// exists there yet.
func writeDefault(path string, defaults Config) error {
	if _, err := os.Stat(path); err == nil || !os.IsNotExist(err) {
		return nil
	}
	data, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write default config file: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", c.Server.MaxBodyBytes)
	v.SetDefault("server.file_root", c.Server.FileRoot)
	v.SetDefault("chain.order", c.Chain.Order)
	v.SetDefault("chain.max_length", c.Chain.MaxLength)
	v.SetDefault("chain.temperature", c.Chain.Temperature)
	v.SetDefault("chain.top_k", c.Chain.TopK)
	v.SetDefault("store.database_path", c.Store.DatabasePath)
}

// flagKeys maps every flag registered by RegisterFlags to its config key.
var flagKeys = map[string]string{
	"log-level":               "log_level",
	"server-listen-addr":      "server.listen_addr",
	"server-shutdown-timeout": "server.shutdown_timeout",
	"server-max-body-bytes":   "server.max_body_bytes",
	"server-file-root":        "server.file_root",
	"chain-order":             "chain.order",
	"chain-max-length":        "chain.max_length",
	"chain-temperature":       "chain.temperature",
	"chain-top-k":             "chain.top_k",
	"store-database-path":     "store.database_path",
}

// bindFlags binds the flags present in fs to their nested keys. A flag only
// overrides the config file when it was set on the command line.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

// ParseLogLevel maps a level name onto a slog.Level. The empty string means info.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
