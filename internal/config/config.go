// Package config provides configuration management for wallroll.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultWorkerPort is the HTTP port of the worker.
	DefaultWorkerPort = 37790
	// DefaultWorkerHost binds the worker to loopback.
	DefaultWorkerHost = "127.0.0.1"
	// DefaultLogLevel is the zerolog level name.
	DefaultLogLevel = "info"
	// DefaultMaxOpenings caps window and door counts.
	DefaultMaxOpenings = 50
	// DefaultSessionTTL expires idle conversations.
	DefaultSessionTTL = 30 * time.Minute
	// DefaultMaxSessions bounds the in-memory session store.
	DefaultMaxSessions = 10000
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Stats drivers.
const (
	StatsDisabled = "none"
	StatsSQLite   = "sqlite"
	StatsPostgres = "postgres"
)

// DefaultRestartTokens restart a conversation from any state.
var DefaultRestartTokens = []string{"/start", "/restart"}

// Config holds worker settings.
type Config struct {
	WorkerHost string
	WorkerPort int
	LogLevel   string

	RestartTokens []string
	MaxOpenings   int
	MessagesPath  string

	SessionBackend string
	SessionTTL     time.Duration
	MaxSessions    int
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	StatsDriver string
	StatsDSN    string
	MaxConns    int

	MetricsEnabled bool
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WorkerHost:     DefaultWorkerHost,
		WorkerPort:     DefaultWorkerPort,
		LogLevel:       DefaultLogLevel,
		RestartTokens:  append([]string(nil), DefaultRestartTokens...),
		MaxOpenings:    DefaultMaxOpenings,
		SessionBackend: BackendMemory,
		SessionTTL:     DefaultSessionTTL,
		MaxSessions:    DefaultMaxSessions,
		RedisAddr:      "127.0.0.1:6379",
		StatsDriver:    StatsSQLite,
		StatsDSN:       DBPath(),
		MaxConns:       4,
		MetricsEnabled: true,
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.WorkerHost, strconv.Itoa(c.WorkerPort))
}

// Validate reports settings that cannot be served.
func (c *Config) Validate() error {
	var errs []error
	if c.WorkerPort <= 0 || c.WorkerPort > 65535 {
		errs = append(errs, fmt.Errorf("worker port %d out of range", c.WorkerPort))
	}
	switch c.SessionBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis backend requires WALLROLL_REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.SessionBackend))
	}
	switch c.StatsDriver {
	case StatsDisabled, StatsSQLite, StatsPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown stats driver %q", c.StatsDriver))
	}
	if c.StatsDriver == StatsPostgres && c.StatsDSN == "" {
		errs = append(errs, errors.New("postgres stats require WALLROLL_STATS_DSN"))
	}
	return errors.Join(errs...)
}

// setting binds one settings.json key (and environment variable) to a field.
type setting struct {
	key   string
	apply func(c *Config, raw string) error
}

var settings = []setting{
	{"WALLROLL_WORKER_HOST", func(c *Config, v string) error { c.WorkerHost = v; return nil }},
	{"WALLROLL_WORKER_PORT", intSetting(func(c *Config, n int) { c.WorkerPort = n })},
	{"WALLROLL_LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = strings.ToLower(v); return nil }},
	{"WALLROLL_RESTART_TOKENS", func(c *Config, v string) error {
		if tokens := splitTrim(v); len(tokens) > 0 {
			c.RestartTokens = tokens
		}
		return nil
	}},
	{"WALLROLL_MAX_OPENINGS", intSetting(func(c *Config, n int) { c.MaxOpenings = n })},
	{"WALLROLL_MESSAGES_PATH", func(c *Config, v string) error { c.MessagesPath = expandHome(v); return nil }},
	{"WALLROLL_SESSION_BACKEND", func(c *Config, v string) error { c.SessionBackend = strings.ToLower(v); return nil }},
	{"WALLROLL_SESSION_TTL_MINUTES", intSetting(func(c *Config, n int) { c.SessionTTL = time.Duration(n) * time.Minute })},
	{"WALLROLL_MAX_SESSIONS", intSetting(func(c *Config, n int) { c.MaxSessions = n })},
	{"WALLROLL_REDIS_ADDR", func(c *Config, v string) error { c.RedisAddr = v; return nil }},
	{"WALLROLL_REDIS_PASSWORD", func(c *Config, v string) error { c.RedisPassword = v; return nil }},
	{"WALLROLL_REDIS_DB", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid database index %q", v)
		}
		c.RedisDB = n
		return nil
	}},
	{"WALLROLL_STATS_DRIVER", func(c *Config, v string) error { c.StatsDriver = strings.ToLower(v); return nil }},
	{"WALLROLL_STATS_DSN", func(c *Config, v string) error { c.StatsDSN = expandHome(v); return nil }},
	{"WALLROLL_MAX_CONNS", intSetting(func(c *Config, n int) { c.MaxConns = n })},
	{"WALLROLL_METRICS_ENABLED", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.MetricsEnabled = b
		return nil
	}},
}

// intSetting parses a positive integer.
func intSetting(set func(c *Config, n int)) func(c *Config, raw string) error {
	return func(c *Config, raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid positive integer %q", raw)
		}
		set(c, n)
		return nil
	}
}

// Load reads settings.json from the data directory and applies environment overrides.
// A missing or malformed settings file yields defaults.
func Load() (*Config, error) {
	cfg := Default()

	values := readSettingsFile(SettingsPath())
	for _, s := range settings {
		if env, ok := os.LookupEnv(s.key); ok && strings.TrimSpace(env) != "" {
			values[s.key] = strings.TrimSpace(env)
		}
		raw, ok := values[s.key]
		if !ok {
			continue
		}
		if err := s.apply(cfg, raw); err != nil {
			log.Warn().Err(err).Str("key", s.key).Msg("Ignoring invalid setting")
		}
	}

	// The default DSN is a sqlite file path.
	if cfg.StatsDriver == StatsPostgres && cfg.StatsDSN == DBPath() {
		cfg.StatsDSN = ""
	}

	return cfg, nil
}

// readSettingsFile returns the flat key/value settings as strings.
func readSettingsFile(path string) map[string]string {
	values := make(map[string]string)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to read settings")
		}
		return values
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Invalid settings file, using defaults")
		return values
	}

	for k, v := range raw {
		switch tv := v.(type) {
		case string:
			values[k] = strings.TrimSpace(tv)
		case float64:
			values[k] = strconv.FormatFloat(tv, 'f', -1, 64)
		case bool:
			values[k] = strconv.FormatBool(tv)
		case []interface{}:
			parts := make([]string, 0, len(tv))
			for _, p := range tv {
				parts = append(parts, fmt.Sprint(p))
			}
			values[k] = strings.Join(parts, ",")
		}
	}
	return values
}

var (
	globalConfig *Config
	globalOnce   sync.Once
)

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			cfg = Default()
		}
		globalConfig = cfg
	})
	return globalConfig
}

// GetWorkerPort returns the worker port, preferring a valid WALLROLL_WORKER_PORT.
func GetWorkerPort() int {
	if v := os.Getenv("WALLROLL_WORKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			return port
		}
	}
	return Get().WorkerPort
}

// DataDir returns the data directory path.
func DataDir() string {
	if dir := os.Getenv("WALLROLL_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".wallroll")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// DBPath returns the default statistics database path.
func DBPath() string {
	return filepath.Join(DataDir(), "stats.db")
}

// EnsureDataDir creates the data directory.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o750)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	defaults := map[string]interface{}{
		"WALLROLL_WORKER_HOST":         DefaultWorkerHost,
		"WALLROLL_WORKER_PORT":         DefaultWorkerPort,
		"WALLROLL_LOG_LEVEL":           DefaultLogLevel,
		"WALLROLL_SESSION_BACKEND":     BackendMemory,
		"WALLROLL_SESSION_TTL_MINUTES": int(DefaultSessionTTL / time.Minute),
		"WALLROLL_STATS_DRIVER":        StatsSQLite,
	}
	data, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// EnsureAll creates the data directory and default settings.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := EnsureSettings(); err != nil {
		return fmt.Errorf("create settings: %w", err)
	}
	return nil
}

// splitTrim splits a comma-separated list, dropping blanks.
func splitTrim(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
