package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/jpillora/backoff"
	"github.com/rustyeddy/equitytrader/broker"
	"go.uber.org/zap"
)

// submit places req, retrying transient failures with doubling delays.
// Invalid orders are never retried.
func (e *Executor) submit(ctx context.Context, req broker.OrderRequest) (broker.OrderResponse, error) {
	b := &backoff.Backoff{Min: e.backoffMin, Max: e.backoffMax, Factor: 2}

	attempts := max(e.submitAttempts, 1)
	for attempt := 1; ; attempt++ {
		resp, err := e.ex.PlaceOrder(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, broker.ErrInvalidOrder) || ctx.Err() != nil {
			return broker.OrderResponse{}, fmt.Errorf("submit %s: %w", req.Symbol, err)
		}
		if attempt >= attempts {
			return broker.OrderResponse{}, fmt.Errorf("submit %s failed after %d attempts: %w", req.Symbol, attempt, err)
		}

		d := b.Duration()
		e.log.Warn("submit failed, retrying",
			zap.String("symbol", req.Symbol),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", d),
			zap.Error(err),
		)
		if err := e.sleep(ctx, d); err != nil {
			return broker.OrderResponse{}, err
		}
	}
}
