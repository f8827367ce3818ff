package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/rustyeddy/equitytrader/broker/alpaca"
	"github.com/rustyeddy/equitytrader/internal/logging"
	"github.com/rustyeddy/equitytrader/journal"
	"github.com/rustyeddy/equitytrader/research"
	"github.com/rustyeddy/equitytrader/risk"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	DryRun Mode = "dry-run"
	Paper  Mode = "paper"
	Live   Mode = "live"
)

// ParseMode returns the matching mode, or DryRun and false for anything
// unrecognized.
func ParseMode(s string) (Mode, bool) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case DryRun, Paper, Live:
		return m, true
	default:
		return DryRun, false
	}
}

// Config is the complete application configuration. Values are layered:
// defaults, then the config file, then environment variables, then flags.
type Config struct {
	Mode     Mode   `json:"mode" yaml:"mode" env:"MODE"`
	Exchange string `json:"exchange" yaml:"exchange" env:"EXCHANGE"` // "alpaca" or "sim"
	DataDir  string `json:"data_dir" yaml:"data_dir" env:"DATA_DIR"`

	Alpaca    alpaca.Config         `json:"alpaca" yaml:"alpaca"`
	OpenAI    research.OpenAIConfig `json:"openai" yaml:"openai"`
	Risk      risk.Policy           `json:"risk" yaml:"risk"`
	Journal   JournalConfig         `json:"journal" yaml:"journal"`
	Research  ResearchConfig        `json:"research" yaml:"research"`
	Execution ExecutionConfig       `json:"execution" yaml:"execution"`
	Sim       SimConfig             `json:"sim" yaml:"sim"`
	Log       logging.Config        `json:"log" yaml:"log"`

	// ModeFallback is set when the configured mode was unknown and
	// dry-run was used instead.
	ModeFallback string `json:"-" yaml:"-"`
}

// JournalConfig selects the audit sinks.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type" env:"JOURNAL_TYPE"` // "csv", "sqlite" or "both"
	CSVPath    string `json:"csv_path,omitempty" yaml:"csv_path,omitempty" env:"JOURNAL_CSV_PATH"`
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty" env:"JOURNAL_SQLITE_PATH"`
}

type ResearchConfig struct {
	Universe      []string `json:"universe,omitempty" yaml:"universe,omitempty" env:"RESEARCH_UNIVERSE" envSeparator:","`
	Strategy      string   `json:"strategy" yaml:"strategy"`
	MaxCandidates int      `json:"max_candidates" yaml:"max_candidates"`
	LogPath       string   `json:"log_path" yaml:"log_path"`
}

type ExecutionConfig struct {
	ClientIDPrefix string `json:"client_id_prefix" yaml:"client_id_prefix" env:"CLIENT_ID_PREFIX"`
	SubmitAttempts int    `json:"submit_attempts" yaml:"submit_attempts"`
	MaxPolls       int    `json:"max_polls" yaml:"max_polls"`
}

// SimConfig seeds the in-memory exchange used when exchange is "sim".
type SimConfig struct {
	Equity     float64             `json:"equity" yaml:"equity"`
	LastEquity float64             `json:"last_equity" yaml:"last_equity"`
	MarketOpen bool                `json:"market_open" yaml:"market_open"`
	Quotes     map[string]SimQuote `json:"quotes,omitempty" yaml:"quotes,omitempty"`
}

type SimQuote struct {
	Bid  float64 `json:"bid" yaml:"bid"`
	Ask  float64 `json:"ask" yaml:"ask"`
	Last float64 `json:"last,omitempty" yaml:"last,omitempty"`
}

// Default returns a dry-run configuration with the stock risk policy.
func Default() *Config {
	return &Config{
		Mode:     DryRun,
		Exchange: "alpaca",
		DataDir:  "data",
		Alpaca: alpaca.Config{
			BaseURL:           alpaca.PaperURL,
			DataURL:           alpaca.DataURL,
			RequestsPerMinute: 200,
		},
		OpenAI: research.OpenAIConfig{
			BaseURL:    research.DefaultOpenAIBaseURL,
			Model:      research.DefaultOpenAIModel,
			MaxRetries: 2,
		},
		Risk: risk.DefaultPolicy(),
		Journal: JournalConfig{
			Type:       "csv",
			CSVPath:    "data/audit.csv",
			SQLitePath: "data/audit.db",
		},
		Research: ResearchConfig{
			Strategy:      "US micro-cap momentum with hard stops",
			MaxCandidates: research.DefaultMaxCandidates,
			LogPath:       "data/research.jsonl",
		},
		Execution: ExecutionConfig{
			ClientIDPrefix: "eqt",
			SubmitAttempts: 5,
			MaxPolls:       20,
		},
		Sim: SimConfig{
			Equity:     100000,
			LastEquity: 100000,
			MarketOpen: true,
		},
		Log: logging.Config{Level: "info"},
	}
}

// Load layers the file at path (if any) and then the environment over
// Default. An unknown mode falls back to dry-run.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads a file over the defaults without consulting the
// environment.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, c); err != nil {
		if jerr := json.Unmarshal(data, c); jerr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	return nil
}

func (c *Config) normalize() {
	m, ok := ParseMode(string(c.Mode))
	if !ok {
		c.ModeFallback = string(c.Mode)
	}
	c.Mode = m
	c.Exchange = strings.ToLower(strings.TrimSpace(c.Exchange))
	c.Journal.Type = strings.ToLower(strings.TrimSpace(c.Journal.Type))
}

// SetMode applies a command line override.
func (c *Config) SetMode(s string) {
	c.Mode = Mode(s)
	c.ModeFallback = ""
	c.normalize()
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var errs error
	if _, ok := ParseMode(string(c.Mode)); !ok {
		errs = multierr.Append(errs, fmt.Errorf("mode must be dry-run, paper or live"))
	}
	if c.Exchange != "alpaca" && c.Exchange != "sim" {
		errs = multierr.Append(errs, fmt.Errorf("exchange must be 'alpaca' or 'sim'"))
	}
	if err := c.Risk.Validate(); err != nil {
		errs = multierr.Append(errs, err)
	}
	errs = multierr.Append(errs, c.Journal.Validate())
	if c.Research.MaxCandidates < 0 {
		errs = multierr.Append(errs, fmt.Errorf("research.max_candidates must not be negative"))
	}
	if c.Execution.SubmitAttempts < 0 || c.Execution.MaxPolls < 0 {
		errs = multierr.Append(errs, fmt.Errorf("execution submit_attempts and max_polls must not be negative"))
	}
	if c.Mode == Live && c.Exchange == "alpaca" && c.Alpaca.Paper() {
		errs = multierr.Append(errs, fmt.Errorf("live mode requires a live alpaca.base_url"))
	}
	return errs
}

func (j JournalConfig) Validate() error {
	switch j.Type {
	case "csv":
		if j.CSVPath == "" {
			return fmt.Errorf("journal csv_path required for CSV type")
		}
	case "sqlite":
		if j.SQLitePath == "" {
			return fmt.Errorf("journal sqlite_path required for SQLite type")
		}
	case "both":
		if j.CSVPath == "" || j.SQLitePath == "" {
			return fmt.Errorf("journal csv_path and sqlite_path required for type 'both'")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'both'")
	}
	return nil
}

// Open creates the configured audit sinks.
func (j JournalConfig) Open() (journal.Journal, error) {
	var sinks journal.Multi
	if j.Type == "csv" || j.Type == "both" {
		c, err := journal.NewCSV(j.CSVPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, c)
	}
	if j.Type == "sqlite" || j.Type == "both" {
		if err := os.MkdirAll(filepath.Dir(j.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		s, err := journal.NewSQLite(j.SQLitePath)
		if err != nil {
			return nil, multierr.Append(err, sinks.Close())
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}
