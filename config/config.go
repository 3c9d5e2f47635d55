package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lpc864-ual/dlt-prototype/core"
)

type Config struct {
	Chain ChainConfig
	HTTP  HTTPConfig
	Log   LogConfig
}

type ChainConfig struct {
	// Difficulty is the number of leading hex zeros an accepted hash needs.
	Difficulty       int
	ProgressInterval uint64
	// ProgressLogEvery throttles progress log lines.
	ProgressLogEvery time.Duration
}

type HTTPConfig struct {
	// ListenAddr enables the HTTP front end when set.
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string // debug|info|warn|error
	Format string // json|text
}

func Default() Config {
	return Config{
		Chain: ChainConfig{
			Difficulty:       3,
			ProgressInterval: 100000,
			ProgressLogEvery: 2 * time.Second,
		},
		HTTP: HTTPConfig{
			ListenAddr:   "",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load parses command-line flags. Every flag falls back to an environment
// variable and then to Default. A malformed environment value is an error.
func Load(args []string, output io.Writer) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	fs.SetOutput(output)

	var e env
	var (
		difficulty       = fs.Int("difficulty", e.int("LEDGER_DIFFICULTY", cfg.Chain.Difficulty), fmt.Sprintf("Leading hex zeros required in a block hash (0-%d)", core.MaxDifficulty))
		progressInterval = fs.Uint64("progress.interval", e.uint("LEDGER_PROGRESS_INTERVAL", cfg.Chain.ProgressInterval), "Nonces between mining progress reports")
		progressEvery    = fs.Duration("progress.every", e.duration("LEDGER_PROGRESS_EVERY", cfg.Chain.ProgressLogEvery), "Minimum time between progress log lines")

		httpAddr = fs.String("http.listen", e.str("LEDGER_HTTP_ADDR", cfg.HTTP.ListenAddr), "HTTP front end listen address (empty disables it)")

		logLevel  = fs.String("log.level", e.str("LEDGER_LOG_LEVEL", cfg.Log.Level), "Log level: debug|info|warn|error")
		logFormat = fs.String("log.format", e.str("LEDGER_LOG_FORMAT", cfg.Log.Format), "Log format: json|text")
	)

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := e.err(); err != nil {
		return Config{}, err
	}

	cfg.Chain.Difficulty = *difficulty
	cfg.Chain.ProgressInterval = *progressInterval
	cfg.Chain.ProgressLogEvery = *progressEvery
	cfg.HTTP.ListenAddr = strings.TrimSpace(*httpAddr)
	cfg.Log.Level = strings.TrimSpace(*logLevel)
	cfg.Log.Format = strings.TrimSpace(*logFormat)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	if cfg.Chain.Difficulty < 0 || cfg.Chain.Difficulty > core.MaxDifficulty {
		return fmt.Errorf("difficulty out of range [0, %d]: %d", core.MaxDifficulty, cfg.Chain.Difficulty)
	}
	if cfg.Chain.ProgressInterval == 0 {
		return fmt.Errorf("progress.interval must be positive")
	}
	if cfg.Chain.ProgressLogEvery <= 0 {
		return fmt.Errorf("progress.every must be positive: %s", cfg.Chain.ProgressLogEvery)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", cfg.Log.Level)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log.format: %q", cfg.Log.Format)
	}
	return nil
}

// env reads fallbacks from the environment and remembers every value that
// fails to parse, so a typo is reported instead of silently using a default.
type env struct {
	errs []error
}

func (e *env) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (e *env) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: %w", key, v, err))
}

func (e *env) err() error {
	return errors.Join(e.errs...)
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *env) uint(key string, def uint64) uint64 {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}
