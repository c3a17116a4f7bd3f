package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/lendscope-labs/lendscope/internal/cache"
	"github.com/lendscope-labs/lendscope/internal/compile"
	"github.com/lendscope-labs/lendscope/internal/pipeline"
	"github.com/lendscope-labs/lendscope/internal/server"
)

var (
	// configFileUsed tracks the file the last Load read, for verbose output.
	configFileUsed string
	// currentConfig stores the loaded config for access by commands.
	currentConfig *Config
)

// flagKeys maps CLI flag names onto config keys. Only flags listed here
// feed the config; everything else is command-local.
var flagKeys = map[string]string{
	"driver":     "store.driver",
	"dsn":        "store.dsn",
	"addr":       "server.addr",
	"row-cap":    "query.row_cap",
	"retries":    "query.retries",
	"coalesce":   "cache.coalesce",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// findConfigFile finds the config file to use.
// Priority: explicit path > lendscope.yaml > lendscope.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("lendscope.yaml"); err == nil {
		return "lendscope.yaml"
	}
	if _, err := os.Stat("lendscope.yml"); err == nil {
		return "lendscope.yml"
	}
	return ""
}

// Load builds the configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"store.driver":            DefaultDriver,
		"store.dsn":               DefaultDSN,
		"cache.capacity":          cache.DefaultCapacity,
		"cache.ttl":               cache.DefaultTTL.String(),
		"cache.coalesce":          false,
		"server.addr":             server.DefaultAddr,
		"server.request_timeout":  server.DefaultRequestTimeout.String(),
		"query.row_cap":           compile.DefaultRowCap,
		"query.window_limit_days": compile.DefaultWindowLimitDays,
		"query.timeout":           pipeline.DefaultQueryTimeout.String(),
		"query.retries":           pipeline.DefaultRetries,
		"log.level":               DefaultLogLevel,
		"log.format":              DefaultLogFormat,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// 2. Config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables (LENDSCOPE_ prefix)
	// Transform: LENDSCOPE_STORE_DRIVER -> store.driver. The first
	// underscore separates the section; the rest stays within the key, so
	// LENDSCOPE_QUERY_ROW_CAP maps to query.row_cap.
	if err := k.Load(env.Provider("LENDSCOPE_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "LENDSCOPE_"))
		return strings.Replace(key, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	// 4. Flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	// 5. Unmarshal, parsing duration strings along the way
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// Default returns the built-in configuration, identical to what Load
// produces with no file, environment, or flags.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Driver: DefaultDriver, DSN: DefaultDSN},
		Cache: CacheConfig{Capacity: cache.DefaultCapacity, TTL: cache.DefaultTTL},
		Server: ServerConfig{
			Addr:           server.DefaultAddr,
			RequestTimeout: server.DefaultRequestTimeout,
		},
		Query: QueryConfig{
			RowCap:          compile.DefaultRowCap,
			WindowLimitDays: compile.DefaultWindowLimitDays,
			Timeout:         pipeline.DefaultQueryTimeout,
			Retries:         pipeline.DefaultRetries,
		},
		Log: LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// ConfigFileUsed returns the path of the config file the last Load read,
// if any.
func ConfigFileUsed() string {
	return configFileUsed
}

// Current returns the configuration loaded by the last Load call, or nil
// when no config has been loaded yet.
func Current() *Config {
	return currentConfig
}
