package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/agentsim/decision"
	"github.com/rustyeddy/agentsim/portfolio"
	"github.com/rustyeddy/agentsim/resilience"
	"github.com/rustyeddy/agentsim/risk"
)

// Config represents the complete backtest configuration
type Config struct {
	Backtest  BacktestConfig              `json:"backtest" yaml:"backtest"`
	Portfolio portfolio.Config            `json:"portfolio" yaml:"portfolio"`
	Risk      risk.Config                 `json:"risk" yaml:"risk"`
	Decision  decision.OrchestratorConfig `json:"decision" yaml:"decision"`
	Cache     CacheConfig                 `json:"cache" yaml:"cache"`
	Caller    CallerConfig                `json:"caller" yaml:"caller"`
	Journal   JournalConfig               `json:"journal" yaml:"journal"`
}

// BacktestConfig contains the run parameters: which symbols, which dates,
// where the data lives.
type BacktestConfig struct {
	Symbols   []string `json:"symbols" yaml:"symbols"`
	StartDate string   `json:"start_date" yaml:"start_date"` // YYYY-MM-DD
	EndDate   string   `json:"end_date" yaml:"end_date"`
	DataDir   string   `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // <dir>/<symbol>.csv

	// Symbols within one date run concurrently up to this bound; 1 means
	// strictly sequential.
	MaxConcurrentSymbols int  `json:"max_concurrent_symbols" yaml:"max_concurrent_symbols"`
	Debug                bool `json:"debug,omitempty" yaml:"debug,omitempty"`
}

const dateLayout = "2006-01-02"

// Dates parses the configured range.
func (b BacktestConfig) Dates() (start, end time.Time, err error) {
	start, err = time.Parse(dateLayout, b.StartDate)
	if err != nil {
		return start, end, fmt.Errorf("start_date %q: %w", b.StartDate, err)
	}
	end, err = time.Parse(dateLayout, b.EndDate)
	if err != nil {
		return start, end, fmt.Errorf("end_date %q: %w", b.EndDate, err)
	}
	return start, end, nil
}

// CacheConfig bounds the opinion cache.
type CacheConfig struct {
	Capacity int    `json:"capacity" yaml:"capacity"`
	TTL      string `json:"ttl" yaml:"ttl"` // e.g. "1h", "30m"
}

// ParseTTL converts the TTL string to time.Duration
func (c CacheConfig) ParseTTL() (time.Duration, error) {
	return time.ParseDuration(c.TTL)
}

// CallerConfig tunes retries, timeouts and the circuit breaker. Durations
// are strings ("200ms", "1m") so the file format stays readable.
type CallerConfig struct {
	MaxRetries       int     `json:"max_retries" yaml:"max_retries"`
	BaseDelay        string  `json:"base_delay" yaml:"base_delay"`
	MaxDelay         string  `json:"max_delay" yaml:"max_delay"`
	CallTimeout      string  `json:"call_timeout" yaml:"call_timeout"`
	FailureThreshold int     `json:"failure_threshold" yaml:"failure_threshold"`
	Cooldown         string  `json:"cooldown" yaml:"cooldown"`
	RateLimit        float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // calls/sec, 0 disables
	RateBurst        int     `json:"rate_burst,omitempty" yaml:"rate_burst,omitempty"`
}

// Build converts the file form into the caller's runtime config.
func (c CallerConfig) Build() (resilience.CallerConfig, error) {
	out := resilience.CallerConfig{
		MaxRetries:       c.MaxRetries,
		FailureThreshold: c.FailureThreshold,
		RateLimit:        rate.Limit(c.RateLimit),
		RateBurst:        c.RateBurst,
	}

	var err error
	for _, d := range []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"base_delay", c.BaseDelay, &out.BaseDelay},
		{"max_delay", c.MaxDelay, &out.MaxDelay},
		{"call_timeout", c.CallTimeout, &out.CallTimeout},
		{"cooldown", c.Cooldown, &out.Cooldown},
	} {
		if d.src == "" {
			continue
		}
		if *d.dst, err = time.ParseDuration(d.src); err != nil {
			return out, fmt.Errorf("caller.%s %q: %w", d.name, d.src, err)
		}
	}
	return out, nil
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "memory", "csv" or "sqlite"
	AuditsFile string `json:"audits_file,omitempty" yaml:"audits_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LoadFromFile loads configuration from a file (JSON or YAML based on content)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if (len(path) > 5 && path[len(path)-5:] == ".yaml") || (len(path) > 4 && path[len(path)-4:] == ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. Any error here is fatal:
// the run must abort before touching portfolio state.
func (c *Config) Validate() error {
	if len(c.Backtest.Symbols) == 0 {
		return fmt.Errorf("backtest.symbols is required")
	}
	start, end, err := c.Backtest.Dates()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("backtest date range inverted: %s after %s", c.Backtest.StartDate, c.Backtest.EndDate)
	}
	if c.Backtest.MaxConcurrentSymbols <= 0 {
		return fmt.Errorf("backtest.max_concurrent_symbols must be positive")
	}

	if err := c.Portfolio.Validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if err := c.Decision.Validate(); err != nil {
		return err
	}

	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive")
	}
	if ttl, err := c.Cache.ParseTTL(); err != nil || ttl <= 0 {
		return fmt.Errorf("cache.ttl must be a positive duration, got %q", c.Cache.TTL)
	}
	if _, err := c.Caller.Build(); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "memory":
	case "csv":
		if c.Journal.AuditsFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal audits_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'memory', 'csv' or 'sqlite'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Backtest: BacktestConfig{
			Symbols:              []string{"AAPL"},
			StartDate:            "2024-01-02",
			EndDate:              "2024-06-28",
			MaxConcurrentSymbols: 1,
		},
		Portfolio: portfolio.DefaultConfig(),
		Risk:      risk.DefaultConfig(),
		Decision:  decision.DefaultOrchestratorConfig(),
		Cache: CacheConfig{
			Capacity: 4096,
			TTL:      "1h",
		},
		Caller: CallerConfig{
			MaxRetries:       2,
			BaseDelay:        "200ms",
			MaxDelay:         "5s",
			CallTimeout:      "30s",
			FailureThreshold: 5,
			Cooldown:         "1m",
		},
		Journal: JournalConfig{
			Type: "memory",
		},
	}
}
