package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL     string
	ChainID    uint64
	PrivateKey string

	Pool            string
	Helper          string
	CollateralToken string
	SeriesID        string
	IlkID           string
	MonitorPools    []string

	BaseDecimals       uint8
	CollateralDecimals uint8
	SlippageBps        uint16

	Store     string
	StorePath string
	PGDSN     string
	Journal   string

	LogBatchSize    uint64
	MaxRetries      int
	RetryBackoff    time.Duration
	MonitorInterval time.Duration
	MetricsAddr     string
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BORROWER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("base-decimals", 18)
	v.SetDefault("collateral-decimals", 18)
	v.SetDefault("slippage-bps", 50)
	v.SetDefault("store", "file")
	v.SetDefault("store-path", "./data/positions.json")
	v.SetDefault("journal", "./data/flow.jsonl")
	v.SetDefault("log-batch-size", uint64(2000))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("monitor-interval", 30*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:             v.GetString("rpc"),
		ChainID:            v.GetUint64("chain-id"),
		PrivateKey:         v.GetString("private-key"),
		Pool:               v.GetString("pool"),
		Helper:             v.GetString("helper"),
		CollateralToken:    v.GetString("collateral-token"),
		SeriesID:           v.GetString("series-id"),
		IlkID:              v.GetString("ilk-id"),
		MonitorPools:       getStringSlice(v, "monitor-pools"),
		BaseDecimals:       uint8(v.GetUint("base-decimals")),
		CollateralDecimals: uint8(v.GetUint("collateral-decimals")),
		SlippageBps:        uint16(v.GetUint("slippage-bps")),
		Store:              v.GetString("store"),
		StorePath:          v.GetString("store-path"),
		PGDSN:              v.GetString("pg-dsn"),
		Journal:            v.GetString("journal"),
		LogBatchSize:       v.GetUint64("log-batch-size"),
		MaxRetries:         v.GetInt("max-retries"),
		RetryBackoff:       v.GetDuration("retry-backoff"),
		MonitorInterval:    v.GetDuration("monitor-interval"),
		MetricsAddr:        v.GetString("metrics-addr"),
		LogLevel:           v.GetString("log-level"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BaseDecimals > 36 || c.CollateralDecimals > 36 {
		return fmt.Errorf("token decimals must be at most 36")
	}
	if c.SlippageBps >= 10000 {
		return fmt.Errorf("slippage-bps must be below 10000")
	}
	switch c.Store {
	case "memory", "file", "leveldb", "postgres":
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
