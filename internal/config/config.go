package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AntiSpam tunes the abuse detector and the punitive mute it triggers.
type AntiSpam struct {
	Enabled             bool          `env:"ENABLED" envDefault:"true"`
	HistorySize         int           `env:"HISTORY_SIZE" envDefault:"10"`
	SimilarityThreshold float64       `env:"SIMILARITY_THRESHOLD" envDefault:"0.8"`
	MinContentLength    int           `env:"MIN_CONTENT_LENGTH" envDefault:"3"`
	FloodWindow         time.Duration `env:"FLOOD_WINDOW" envDefault:"5s"`
	FloodMaxCount       int           `env:"FLOOD_MAX_COUNT" envDefault:"4"`
	DecayPeriod         time.Duration `env:"DECAY_PERIOD" envDefault:"30m"`
	RecordRetention     time.Duration `env:"RECORD_RETENTION" envDefault:"10m"`
	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	MuteBase            time.Duration `env:"MUTE_BASE" envDefault:"60s"`
	MuteMultiplier      float64       `env:"MUTE_MULTIPLIER" envDefault:"2"`
	MuteCap             time.Duration `env:"MUTE_CAP" envDefault:"720h"`
}

// Storage selects the alias and history backend. The admin CLI reads it too.
type Storage struct {
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	StoragePath   string `env:"STORAGE_PATH" envDefault:"warden.db"`
}

// StorageFromEnv parses only the storage keys.
func StorageFromEnv() (Storage, error) {
	return env.ParseAs[Storage]()
}

type Config struct {
	OneBotURL       string        `env:"ONEBOT_URL" envDefault:"ws://localhost:6000"`
	OneBotToken     string        `env:"ONEBOT_TOKEN"`
	OneBotRateLimit float64       `env:"ONEBOT_RATE_LIMIT" envDefault:"5"`
	OneBotProxy     string        `env:"ONEBOT_PROXY"`
	OneBotTimeout   time.Duration `env:"ONEBOT_CALL_TIMEOUT" envDefault:"10s"`

	Superusers    []int64 `env:"SUPERUSERS" envSeparator:","`
	CommandPrefix string  `env:"COMMAND_PREFIX" envDefault:"/"`

	Storage

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile   string `env:"LOG_FILE"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"auto"`

	MetricsListen string `env:"METRICS_LISTEN"`

	DispatchWorkers int `env:"DISPATCH_WORKERS" envDefault:"8"`
	DispatchQueue   int `env:"DISPATCH_QUEUE" envDefault:"64"`

	RegexMaxLength    int           `env:"REGEX_MAX_LENGTH" envDefault:"256"`
	RegexMatchTimeout time.Duration `env:"REGEX_MATCH_TIMEOUT" envDefault:"100ms"`

	CooldownSweepInterval time.Duration `env:"COOLDOWN_SWEEP_INTERVAL" envDefault:"5m"`
	HistoryRetention      time.Duration `env:"HISTORY_RETENTION" envDefault:"720h"`

	AntiSpam AntiSpam `envPrefix:"ANTISPAM_"`
}

// LoadDotEnv reads a .env file into the process environment, if present.
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil {
		log.Debug().Msg("No .env file found, falling back to system environment variables")
	}
}

// New parses the environment into a validated Config.
func New() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsSuperuser reports whether id is listed in SUPERUSERS.
func (c *Config) IsSuperuser(id int64) bool {
	return slices.Contains(c.Superusers, id)
}

// Validate checks value ranges that the environment parser cannot express.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(strings.TrimSpace(c.CommandPrefix) != "", "COMMAND_PREFIX must not be empty")
	check(c.StorageDriver == "sqlite" || c.StorageDriver == "json", "STORAGE_DRIVER must be sqlite or json, got %q", c.StorageDriver)
	check(c.StoragePath != "", "STORAGE_PATH must not be empty")
	check(c.LogFormat == "auto" || c.LogFormat == "json" || c.LogFormat == "console", "LOG_FORMAT must be auto, json or console, got %q", c.LogFormat)
	check(c.DispatchWorkers >= 1, "DISPATCH_WORKERS must be at least 1")
	check(c.DispatchQueue >= 0, "DISPATCH_QUEUE must not be negative")
	check(c.RegexMaxLength >= 1, "REGEX_MAX_LENGTH must be at least 1")
	check(c.RegexMatchTimeout > 0, "REGEX_MATCH_TIMEOUT must be positive")
	check(c.CooldownSweepInterval > 0, "COOLDOWN_SWEEP_INTERVAL must be positive")
	check(c.OneBotRateLimit > 0, "ONEBOT_RATE_LIMIT must be positive")
	check(c.OneBotTimeout > 0, "ONEBOT_CALL_TIMEOUT must be positive")
	check(c.HistoryRetention >= 0, "HISTORY_RETENTION must not be negative")

	a := c.AntiSpam
	check(a.HistorySize >= 1, "ANTISPAM_HISTORY_SIZE must be at least 1")
	check(a.SimilarityThreshold > 0 && a.SimilarityThreshold <= 1, "ANTISPAM_SIMILARITY_THRESHOLD must be in (0,1]")
	check(a.MinContentLength >= 0, "ANTISPAM_MIN_CONTENT_LENGTH must not be negative")
	check(a.FloodWindow > 0, "ANTISPAM_FLOOD_WINDOW must be positive")
	check(a.FloodMaxCount >= 1, "ANTISPAM_FLOOD_MAX_COUNT must be at least 1")
	check(a.HistorySize >= a.FloodMaxCount, "ANTISPAM_HISTORY_SIZE must not be below ANTISPAM_FLOOD_MAX_COUNT")
	check(a.DecayPeriod > 0, "ANTISPAM_DECAY_PERIOD must be positive")
	check(a.RecordRetention > 0, "ANTISPAM_RECORD_RETENTION must be positive")
	check(a.SweepInterval > 0, "ANTISPAM_SWEEP_INTERVAL must be positive")
	check(a.MuteBase > 0, "ANTISPAM_MUTE_BASE must be positive")
	check(a.MuteMultiplier >= 1, "ANTISPAM_MUTE_MULTIPLIER must be at least 1")
	check(a.MuteCap >= a.MuteBase, "ANTISPAM_MUTE_CAP must not be below ANTISPAM_MUTE_BASE")

	return errors.Join(errs...)
}
