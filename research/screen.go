// Package research screens a symbol universe and asks a language model for
// trade ideas, which it converts into plan items.
package research

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/rustyeddy/equitytrader/broker"
	"github.com/rustyeddy/equitytrader/internal/logging"
	"github.com/rustyeddy/equitytrader/risk"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultMaxCandidates = 15

// BarSource supplies recent bars, oldest first.
type BarSource interface {
	Bars(ctx context.Context, symbol string, limit int) ([]broker.Bar, error)
}

type Candidate struct {
	Symbol      string
	Close       float64
	SpreadProxy float64
	ATRPct      float64 // 0 when history is too short
}

// SpreadProxy is the last bar's range relative to its high, or 1 when the
// high is not positive.
func SpreadProxy(b broker.Bar) float64 {
	if b.High <= 0 {
		return 1
	}
	return (b.High - b.Low) / b.High
}

// Screen keeps symbols whose last close is at least MinPrice and whose
// spread proxy is within max(10%, 2×MaxSpreadPct). Survivors are ordered by
// spread proxy, then by price descending. Symbols that fail to load are
// skipped.
func Screen(ctx context.Context, src BarSource, universe []string, p *risk.Policy, maxCandidates int, log *zap.Logger) ([]Candidate, error) {
	log = logging.OrNop(log)
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	limit := math.Max(0.10, 2*p.MaxSpreadPct)

	var (
		mu  sync.Mutex
		out []Candidate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, sym := range universe {
		sym := sym
		g.Go(func() error {
			bars, err := src.Bars(gctx, sym, ATRPeriod+1)
			if err != nil {
				log.Debug("screen: bars unavailable", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			if len(bars) == 0 {
				return nil
			}
			last := bars[len(bars)-1]
			if last.Close < p.MinPrice {
				return nil
			}
			sp := SpreadProxy(last)
			if sp > limit {
				return nil
			}
			mu.Lock()
			out = append(out, Candidate{Symbol: sym, Close: last.Close, SpreadProxy: sp, ATRPct: ATRPct(bars, ATRPeriod)})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SpreadProxy != out[j].SpreadProxy {
			return out[i].SpreadProxy < out[j].SpreadProxy
		}
		return out[i].Close > out[j].Close
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out, nil
}

func Symbols(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Symbol
	}
	return out
}
