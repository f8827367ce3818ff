package execution

import (
	"context"
	"fmt"

	"github.com/rustyeddy/equitytrader/plan"
	"github.com/rustyeddy/equitytrader/risk"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// EquitySource supplies a fresh risk snapshot for the symbol about to trade.
type EquitySource interface {
	EquityContext(ctx context.Context, symbol string) (risk.EquityContext, error)
}

// StaticEquity returns the same snapshot for every symbol.
type StaticEquity risk.EquityContext

func (s StaticEquity) EquityContext(context.Context, string) (risk.EquityContext, error) {
	return risk.EquityContext(s), nil
}

// RunBatch executes items in order. A failing item does not stop the batch;
// all failures are combined into the returned error. Results line up with
// items and are nil where no exchange state was produced.
func (e *Executor) RunBatch(ctx context.Context, items []plan.Item, src EquitySource) ([]*Result, error) {
	results := make([]*Result, len(items))
	var errs error
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return results, multierr.Append(errs, err)
		}

		eq, err := src.EquityContext(ctx, item.Symbol)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: equity snapshot: %w", item.Symbol, err))
			continue
		}

		res, err := e.PlaceAndReconcile(ctx, item, eq)
		results[i] = res
		if err != nil {
			e.log.Error("order failed", zap.String("item", item.String()), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", item.Symbol, err))
		}
	}
	return results, errs
}
