package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"chainstate/internal/engine"
	"chainstate/internal/model"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL    string
	ChainID   uint64
	ChainName string

	// Calls are read specs in address:abi:method[:arg,...] form. Lists read
	// from the environment are separated by ';'.
	Calls []string
	// ABIFiles maps an ABI name to a JSON ABI file (name=path).
	ABIFiles map[string]string
	// Contracts maps a contract address to its ABI name (address=abi).
	Contracts map[string]string
	// Scale maps abi.method to the decimals its integer result is scaled by
	// (abi.method=decimals).
	Scale map[string]string

	RetryTimeout  time.Duration
	RetryCount    int
	MaxPolls      int
	PollDelay     time.Duration
	DefaultMaxAge time.Duration
	GasIncrease   uint64
	ClockInterval time.Duration
	ClockTicks    int

	Journal      string
	JournalFlush time.Duration
	PGDSN        string
	PrivateKey   string
	MetricsAddr  string
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHAINSTATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	def := engine.DefaultConfig()
	v.SetDefault("retry-timeout", def.RetryTimeout)
	v.SetDefault("retry-count", def.RetryCount)
	v.SetDefault("max-polls", def.MaxPolls)
	v.SetDefault("poll-delay", def.PollDelay)
	v.SetDefault("default-max-age", def.DefaultMaxAge)
	v.SetDefault("gas-increase", def.GasIncrease)
	v.SetDefault("clock-interval", def.ClockInterval)
	v.SetDefault("clock-ticks", def.ClockTicks)
	v.SetDefault("journal-flush", time.Second)
	v.SetDefault("metrics-addr", "")
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
		RPCURL:        v.GetString("rpc"),
		ChainID:       v.GetUint64("chain-id"),
		ChainName:     v.GetString("chain-name"),
		Calls:         getStringSlice(v, "call"),
		ABIFiles:      parsePairs(getStringSlice(v, "abi-file")),
		Contracts:     parsePairs(getStringSlice(v, "contract")),
		Scale:         parsePairs(getStringSlice(v, "scale")),
		RetryTimeout:  v.GetDuration("retry-timeout"),
		RetryCount:    v.GetInt("retry-count"),
		MaxPolls:      v.GetInt("max-polls"),
		PollDelay:     v.GetDuration("poll-delay"),
		DefaultMaxAge: v.GetDuration("default-max-age"),
		GasIncrease:   v.GetUint64("gas-increase"),
		ClockInterval: v.GetDuration("clock-interval"),
		ClockTicks:    v.GetInt("clock-ticks"),
		Journal:       v.GetString("journal"),
		JournalFlush:  v.GetDuration("journal-flush"),
		PGDSN:         v.GetString("pg-dsn"),
		PrivateKey:    v.GetString("private-key"),
		MetricsAddr:   v.GetString("metrics-addr"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}

// Engine converts the tunables into an engine configuration.
func (c Config) Engine() engine.Config {
	return engine.Config{
		RetryTimeout:  c.RetryTimeout,
		RetryCount:    c.RetryCount,
		MaxPolls:      c.MaxPolls,
		PollDelay:     c.PollDelay,
		DefaultMaxAge: c.DefaultMaxAge,
		GasIncrease:   c.GasIncrease,
		ClockInterval: c.ClockInterval,
		ClockTicks:    c.ClockTicks,
	}
}

// Chain returns the configured chain context. The chain id is left zero when
// unset so the caller can ask the node.
func (c Config) Chain() model.ChainContext {
	return model.ChainContext{Name: c.ChainName, ID: c.ChainID, RPC: c.RPCURL}
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
	parts := strings.Split(input, ";")
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

// parsePairs reads key=value items. Items are kept as lists rather than
// viper maps so keys keep their case.
func parsePairs(items []string) map[string]string {
	out := make(map[string]string, len(items))
	for _, item := range items {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
