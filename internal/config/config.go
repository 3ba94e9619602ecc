// Package config loads and validates process configuration from environment
// variables (and an optional config file), following the same env-first,
// viper-backed layering the rest of the mcpproxy family of tools uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the env key prefix for every recognized configuration variable.
const EnvPrefix = "NOTIONMCP"

const (
	DefaultCacheTTL        = 30 * time.Second
	DefaultCacheMaxEntries = 300
	DefaultMaxPageSize     = 100
)

// RemoteServerConfig describes how to spawn the remote, OAuth-capable
// subprocess backend (C5).
type RemoteServerConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	Cwd     string
	// DefaultURL is used when the remote URL cannot be extracted from argv.
	DefaultURL string
	// AllowNpxFallback permits launching the remote backend via `npx`.
	AllowNpxFallback bool
}

// LocalAppCacheConfig controls the SQLite fast-path (C3).
type LocalAppCacheConfig struct {
	Enabled      bool
	TrustEnabled bool
	DBPath       string
	MaxPageSize  int
}

// CacheConfig controls the response cache (C2).
type CacheConfig struct {
	Enabled    bool
	TTL        time.Duration
	MaxEntries int
	Path       string
}

// LogConfig controls the structured logger (C9).
type LogConfig struct {
	Level         string `mapstructure:"level"`
	EnableFile    bool   `mapstructure:"enable-file"`
	EnableConsole bool   `mapstructure:"enable-console"`
	Filename      string `mapstructure:"filename"`
	LogDir        string `mapstructure:"log-dir"`
	MaxSizeMB     int    `mapstructure:"max-size"`
	MaxBackups    int    `mapstructure:"max-backups"`
	MaxAgeDays    int    `mapstructure:"max-age"`
	Compress      bool   `mapstructure:"compress"`
	JSONFormat    bool   `mapstructure:"json-format"`
}

// Config is the fully resolved process configuration.
type Config struct {
	Remote         RemoteServerConfig
	LocalAppCache  LocalAppCacheConfig
	Cache          CacheConfig
	Logging        LogConfig
	TokenCacheDir  string
	MetricsAddr    string
}

// DefaultLogConfig is the console-by-default logging policy used when no
// override is configured.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:         "info",
		EnableConsole: true,
		EnableFile:    false,
		Filename:      "oh-my-notionmcp.log",
		MaxSizeMB:     10,
		MaxBackups:    5,
		MaxAgeDays:    30,
		Compress:      true,
		JSONFormat:    false,
	}
}

// Load reads configuration from the environment (and, if present,
// ~/.oh-my-notionmcp/config.yaml), applying the defaults and validation
// rules. Invalid values for booleans/paths/page-size fall
// back to defaults; invalid TTL, max-entries, or a null byte in the cache
// path raise a startup error naming the offending variable.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".oh-my-notionmcp"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		_ = v.ReadInConfig() // optional; absence is not an error
	}

	cfg := &Config{
		Logging: DefaultLogConfig(),
		LocalAppCache: LocalAppCacheConfig{
			MaxPageSize: DefaultMaxPageSize,
			DBPath:      defaultLocalAppCacheDBPath(),
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        DefaultCacheTTL,
			MaxEntries: DefaultCacheMaxEntries,
			Path:       defaultCachePath(),
		},
		TokenCacheDir: defaultTokenCacheDir(),
	}

	cfg.Remote.Command = getenvDefault(v, "REMOTE_COMMAND", "npx")
	cfg.Remote.Args = splitArgs(getenvDefault(v, "REMOTE_ARGS", "mcp-remote,https://mcp.notion.com/mcp"))
	cfg.Remote.DefaultURL = getenvDefault(v, "REMOTE_DEFAULT_URL", "https://mcp.notion.com/mcp")
	cfg.Remote.AllowNpxFallback = parseBoolDefault(v.GetString("ALLOW_NPX_FALLBACK"), false)

	if err := applyCacheEnv(v, cfg); err != nil {
		return nil, err
	}

	cfg.LocalAppCache.Enabled = parseBoolDefault(v.GetString("LOCAL_APP_CACHE_ENABLED"), false)
	cfg.LocalAppCache.TrustEnabled = parseBoolDefault(v.GetString("LOCAL_APP_CACHE_TRUST_ENABLED"), false)
	if dbPath := v.GetString("LOCAL_APP_CACHE_DB_PATH"); dbPath != "" {
		cfg.LocalAppCache.DBPath = dbPath
	}
	if mp := v.GetString("LOCAL_APP_CACHE_MAX_PAGE_SIZE"); mp != "" {
		if n, err := strconv.Atoi(mp); err == nil && n > 0 {
			cfg.LocalAppCache.MaxPageSize = n
		}
	}

	if dir := v.GetString("TOKEN_CACHE_DIR"); dir != "" {
		cfg.TokenCacheDir = dir
	}

	cfg.MetricsAddr = v.GetString("METRICS_ADDR")

	if lvl := v.GetString("LOG_LEVEL"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	cfg.Logging.EnableFile = parseBoolDefault(v.GetString("LOG_TO_FILE"), cfg.Logging.EnableFile)

	return cfg, nil
}

func applyCacheEnv(v *viper.Viper, cfg *Config) error {
	cfg.Cache.Enabled = parseBoolDefault(v.GetString("CACHE_ENABLED"), cfg.Cache.Enabled)

	if raw := v.GetString("CACHE_TTL_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return fmt.Errorf("%s_CACHE_TTL_MS must be a positive integer number of milliseconds, got %q", EnvPrefix, raw)
		}
		cfg.Cache.TTL = time.Duration(ms) * time.Millisecond
	}

	if raw := v.GetString("CACHE_MAX_ENTRIES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s_CACHE_MAX_ENTRIES must be a positive integer, got %q", EnvPrefix, raw)
		}
		cfg.Cache.MaxEntries = n
	}

	if raw, ok := os.LookupEnv(EnvPrefix + "_CACHE_PATH"); ok {
		if strings.ContainsRune(raw, 0) {
			return fmt.Errorf("%s_CACHE_PATH must not contain a null byte", EnvPrefix)
		}
		if raw != "" {
			cfg.Cache.Path = raw
		}
	}

	return nil
}

func getenvDefault(v *viper.Viper, key, def string) string {
	if val := v.GetString(key); val != "" {
		return val
	}
	return def
}

func splitArgs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseBoolDefault: an invalid boolean-like value falls
// back to the default rather than erroring.
func parseBoolDefault(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "oh-my-notionmcp", "response-cache.json")
}

func defaultTokenCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".mcp-auth")
	}
	return filepath.Join(home, ".mcp-auth")
}

func defaultLocalAppCacheDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch {
	case fileExists(filepath.Join(home, "Library", "Application Support", "Notion", "notion.db")):
		return filepath.Join(home, "Library", "Application Support", "Notion", "notion.db")
	default:
		return filepath.Join(home, ".config", "Notion", "notion.db")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
