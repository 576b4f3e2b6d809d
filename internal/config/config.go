package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"flowswap/internal/pool"
	"flowswap/internal/registry"
)

const envPrefix = "FLOWSWAP"

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Scenario     string
	Out          string
	PGDSN        string
	ChainID      uint64
	StreamFeeBps uint64
	SwapFeeBps   uint64
	MinBidBps    uint64
	MetricsAddr  string
	Checkpoint   string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
	BatchSize    uint64
	EnsureSchema bool
}

// RegistryConfig converts the fee settings into a registry configuration.
func (c SimulateConfig) RegistryConfig() registry.Config {
	return registry.Config{
		Pool: pool.Config{
			StreamFeeBps: c.StreamFeeBps,
			SwapFeeBps:   c.SwapFeeBps,
		},
		MinBidBps: c.MinBidBps,
	}
}

// Load merges config file, environment variables, and flags into SimulateConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("out", "./data/logs.jsonl")
		v.SetDefault("chain-id", uint64(31337))
		v.SetDefault("stream-fee-bps", uint64(pool.DefaultStreamFeeBps))
		v.SetDefault("swap-fee-bps", uint64(pool.DefaultSwapFeeBps))
		v.SetDefault("min-bid-bps", uint64(registry.DefaultMinBidBps))
		v.SetDefault("checkpoint", "./data/checkpoint.json")
		v.SetDefault("batch-size", uint64(50))
		v.SetDefault("max-retries", 5)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Scenario:     v.GetString("scenario"),
		Out:          v.GetString("out"),
		PGDSN:        v.GetString("pg-dsn"),
		ChainID:      v.GetUint64("chain-id"),
		StreamFeeBps: v.GetUint64("stream-fee-bps"),
		SwapFeeBps:   v.GetUint64("swap-fee-bps"),
		MinBidBps:    v.GetUint64("min-bid-bps"),
		MetricsAddr:  v.GetString("metrics-addr"),
		Checkpoint:   v.GetString("checkpoint"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
		BatchSize:    v.GetUint64("batch-size"),
		EnsureSchema: v.GetBool("ensure-schema"),
	}

	return cfg, nil
}

// newViper builds a viper instance reading FLOWSWAP_* env vars, flags and an
// optional config file. Without an explicit file, ./config.{yaml,json,...}
// is used when present.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(v *viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}
