package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rustyeddy/equitytrader/internal/clock"
	"github.com/rustyeddy/equitytrader/internal/logging"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

type OpenAIConfig struct {
	BaseURL    string `yaml:"base_url" json:"base_url" env:"OPENAI_BASE_URL"`
	APIKey     string `yaml:"-" json:"-" env:"OPENAI_API_KEY"`
	Model      string `yaml:"model" json:"model" env:"OPENAI_MODEL"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
}

// OpenAIGenerator calls an OpenAI compatible /chat/completions endpoint.
// 429 and 5xx replies are retried with backoff, honoring Retry-After.
type OpenAIGenerator struct {
	cfg   OpenAIConfig
	HTTP  *http.Client
	Sleep func(ctx context.Context, d time.Duration) error
	log   *zap.Logger
}

func NewOpenAIGenerator(cfg OpenAIConfig, log *zap.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	return &OpenAIGenerator{
		cfg:   cfg,
		HTTP:  &http.Client{Timeout: 60 * time.Second},
		Sleep: clock.Sleep,
		log:   logging.OrNop(log),
	}, nil
}

func (g *OpenAIGenerator) endpoint() string {
	u := strings.TrimRight(g.cfg.BaseURL, "/")
	u = strings.TrimSuffix(u, "/chat/completions")
	return u + "/chat/completions"
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": g.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
		"max_tokens":  800,
	})
	if err != nil {
		return "", err
	}

	b := &backoff.Backoff{Min: 800 * time.Millisecond, Max: 8 * time.Second, Factor: 2}
	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		content, wait, retry, err := g.call(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retry || attempt == g.cfg.MaxRetries {
			break
		}
		if wait == 0 {
			wait = b.Duration()
		}
		g.log.Warn("openai call failed, retrying", zap.Int("attempt", attempt+1), zap.Duration("wait", wait), zap.Error(err))
		if err := g.Sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// call makes one request. wait is the server's Retry-After, if any.
func (g *OpenAIGenerator) call(ctx context.Context, body []byte) (content string, wait time.Duration, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return "", 0, ctx.Err() == nil, fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", 0, true, fmt.Errorf("openai: read body: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(gjson.GetBytes(raw, "error.message").String())
		if msg == "" {
			msg = resp.Status
		}
		retry = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if ra, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && ra > 0 {
			wait = time.Duration(ra) * time.Second
		}
		return "", wait, retry, fmt.Errorf("openai status=%d: %s", resp.StatusCode, msg)
	}

	choice := gjson.GetBytes(raw, "choices.0.message.content")
	if !choice.Exists() {
		return "", 0, false, fmt.Errorf("openai: empty choices")
	}
	return strings.TrimSpace(choice.String()), 0, false, nil
}
