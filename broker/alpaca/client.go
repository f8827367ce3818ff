// Package alpaca implements broker.Exchange over the Alpaca trading and
// market data REST APIs.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rustyeddy/equitytrader/broker"
	"github.com/rustyeddy/equitytrader/internal/logging"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultRequestsPerMinute = 200

// APIError is a non-2xx reply. 403 and 422 are order rejections and match
// broker.ErrInvalidOrder.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpaca http %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == broker.ErrInvalidOrder &&
		(e.Status == http.StatusForbidden || e.Status == http.StatusUnprocessableEntity)
}

var ErrNotFound = errors.New("alpaca: not found")

type Client struct {
	cfg     Config
	HTTP    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.KeyID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("alpaca: missing API key id or secret")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = PaperURL
	}
	if cfg.DataURL == "" {
		cfg.DataURL = DataURL
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRequestsPerMinute
	}
	return &Client{
		cfg:     cfg,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60), 10),
		log:     logging.OrNop(log),
	}, nil
}

func (c *Client) Paper() bool { return c.cfg.Paper() }

func (c *Client) trading(ctx context.Context, method, path string, q url.Values, body any) ([]byte, error) {
	return c.do(ctx, method, c.cfg.BaseURL, path, q, body)
}

func (c *Client) data(ctx context.Context, path string, q url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.cfg.DataURL, path, q, nil)
}

func (c *Client) do(ctx context.Context, method, base, path string, q url.Values, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", c.cfg.KeyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	c.log.Debug("alpaca request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(b, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(b))
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return b, nil
}
