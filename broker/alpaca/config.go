package alpaca

import (
	"fmt"
	"strings"
)

const (
	PaperURL = "https://paper-api.alpaca.markets"
	LiveURL  = "https://api.alpaca.markets"
	DataURL  = "https://data.alpaca.markets"
)

type Config struct {
	BaseURL           string `yaml:"base_url" json:"base_url" env:"ALPACA_BASE_URL"`
	DataURL           string `yaml:"data_url" json:"data_url" env:"ALPACA_DATA_URL"`
	KeyID             string `yaml:"-" json:"-" env:"ALPACA_API_KEY_ID"`
	SecretKey         string `yaml:"-" json:"-" env:"ALPACA_API_SECRET_KEY"`
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute" env:"ALPACA_REQUESTS_PER_MINUTE"`
}

// Paper reports whether the trading endpoint is a paper account. An empty
// base URL means paper.
func (c Config) Paper() bool {
	return c.BaseURL == "" || strings.Contains(strings.ToLower(c.BaseURL), "paper")
}

// BaseURL maps a trading mode to its trading endpoint.
func BaseURL(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "paper", "dry-run", "":
		return PaperURL, nil
	case "live":
		return LiveURL, nil
	default:
		return "", fmt.Errorf("unknown alpaca mode %q (want paper|live)", mode)
	}
}
