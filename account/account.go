// Package account turns raw exchange account and position payloads into the
// risk engine's EquityContext.
package account

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/equitytrader/broker"
	"github.com/rustyeddy/equitytrader/risk"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"
)

type Position struct {
	Symbol        string
	Qty           float64
	AvgEntryPrice float64
	MarketValue   float64
}

type Snapshot struct {
	Equity     float64
	LastEquity float64
	Currency   string
	Positions  []Position
	TakenAt    time.Time
}

// DayPnLPct is the change since the prior close as a fraction of it.
func (s Snapshot) DayPnLPct() float64 {
	if s.LastEquity <= 0 {
		return 0
	}
	return (s.Equity - s.LastEquity) / s.LastEquity
}

func (s Snapshot) OpenPositions() int {
	n := 0
	for _, p := range s.Positions {
		if p.Qty != 0 {
			n++
		}
	}
	return n
}

// Exposure is the symbol's absolute market value as a fraction of equity.
func (s Snapshot) Exposure(symbol string) float64 {
	if s.Equity <= 0 {
		return 0
	}
	for _, p := range s.Positions {
		if strings.EqualFold(p.Symbol, symbol) {
			return math.Abs(p.MarketValue) / s.Equity
		}
	}
	return 0
}

// Heat approximates open risk by assuming every position carries the
// default stop distance.
func (s Snapshot) Heat(defaultStopPct float64) float64 {
	if s.Equity <= 0 {
		return 0
	}
	var sum float64
	for _, p := range s.Positions {
		sum += math.Abs(p.MarketValue) * defaultStopPct
	}
	return sum / s.Equity
}

func (s Snapshot) EquityContext(symbol string, defaultStopPct float64) risk.EquityContext {
	return risk.EquityContext{
		Equity:            s.Equity,
		SymbolExposure:    s.Exposure(symbol),
		DayRealizedPnLPct: s.DayPnLPct(),
		OpenPositions:     s.OpenPositions(),
		PortfolioHeatPct:  s.Heat(defaultStopPct),
	}
}

// Parse reads the payloads returned by broker.Exchange. Numbers may be JSON
// numbers or decimal strings.
func Parse(acct map[string]any, positions []map[string]any, now time.Time) (Snapshot, error) {
	equity, err := cast.ToFloat64E(acct["equity"])
	if err != nil {
		return Snapshot{}, fmt.Errorf("account equity: %w", err)
	}
	s := Snapshot{
		Equity:     equity,
		LastEquity: cast.ToFloat64(acct["last_equity"]),
		Currency:   cast.ToString(acct["currency"]),
		TakenAt:    now,
	}
	for _, p := range positions {
		s.Positions = append(s.Positions, Position{
			Symbol:        strings.ToUpper(cast.ToString(p["symbol"])),
			Qty:           cast.ToFloat64(p["qty"]),
			AvgEntryPrice: cast.ToFloat64(p["avg_entry_price"]),
			MarketValue:   cast.ToFloat64(p["market_value"]),
		})
	}
	sort.Slice(s.Positions, func(i, j int) bool { return s.Positions[i].Symbol < s.Positions[j].Symbol })
	return s, nil
}

// Source fetches fresh snapshots from an exchange.
type Source struct {
	Exchange broker.Exchange
	Policy   *risk.Policy
	Now      func() time.Time
}

func (s *Source) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		acct      map[string]any
		positions []map[string]any
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		acct, err = s.Exchange.GetAccount(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		positions, err = s.Exchange.GetPositions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("account snapshot: %w", err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return Parse(acct, positions, now())
}

// EquityContext takes a new snapshot on every call so each order sees the
// fills of the ones before it.
func (s *Source) EquityContext(ctx context.Context, symbol string) (risk.EquityContext, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return risk.EquityContext{}, err
	}
	return snap.EquityContext(symbol, s.Policy.DefaultStopLossPct), nil
}
