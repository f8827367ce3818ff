package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/equitytrader/broker"
)

func pct(x float64) string {
	return fmt.Sprintf("%.2f%%", 100*x)
}

// Evaluate gates or resizes one proposed order. Rules run in a fixed order
// and the first failing rule decides. It has no side effects.
func Evaluate(
	p *Policy,
	req broker.OrderRequest,
	quote broker.Quote,
	eq EquityContext,
	marketOpen bool,
) Decision {
	if !marketOpen && !p.AllowAfterHours {
		return Reject{Why: "Market closed and after-hours trading is disabled"}
	}

	pnl := eq.DayRealizedPnLPct
	if pnl <= -math.Abs(p.DailyLossCapPct) {
		return Reject{Why: fmt.Sprintf("Daily loss cap reached (%s)", pct(pnl))}
	}
	if pnl <= -math.Abs(p.DailyLossTierBlockPct) && req.Side == broker.Buy {
		return Reject{
			Why:             fmt.Sprintf("Daily loss tier block reached (%s); new entries blocked", pct(pnl)),
			BlockNewEntries: true,
		}
	}

	ref, ok := quote.Reference()
	if !ok {
		return Reject{Why: "No reference price available"}
	}
	if ref < p.MinPrice {
		return Reject{Why: fmt.Sprintf("Price %.2f below min %.2f", ref, p.MinPrice)}
	}

	if quote.Bid != nil && quote.Ask != nil {
		if spread, ok := SpreadPct(*quote.Bid, *quote.Ask); ok && spread > p.MaxSpreadPct {
			return Reject{Why: fmt.Sprintf("Spread %s exceeds max %s", pct(spread), pct(p.MaxSpreadPct))}
		}
	}

	if req.Side == broker.Buy && eq.OpenPositions >= p.MaxPositions {
		return Reject{Why: fmt.Sprintf("Max positions %d reached", p.MaxPositions)}
	}

	warn := pnl <= -math.Abs(p.DailyLossTierWarnPct)

	if req.StopPrice != nil {
		if perShare := PerShareRisk(ref, *req.StopPrice); perShare > 0 {
			maxQty := MaxQtyByRisk(p.MaxPositionRiskPct, eq.Equity, perShare)
			if req.Qty > maxQty {
				return Resize{
					Qty:  maxQty,
					Why:  fmt.Sprintf("Qty exceeds risk cap; max %.6f", maxQty),
					Warn: warn,
				}
			}

			addedHeat := RiskPct(MaxRiskAmount(p.MaxPositionRiskPct, eq.Equity), eq.Equity)
			if req.Side == broker.Buy && eq.PortfolioHeatPct+addedHeat > p.MaxPortfolioHeatPct {
				return Reject{Why: fmt.Sprintf("Portfolio heat would exceed %s", pct(p.MaxPortfolioHeatPct)), Warn: warn}
			}
		}
	}

	notional := ref * math.Max(req.Qty, 0)
	if notional > p.MaxNotionalPerTrade {
		scaled := math.Max(0, p.MaxNotionalPerTrade/ref)
		return Resize{
			Qty:  scaled,
			Why:  fmt.Sprintf("Notional %.2f exceeds per-trade cap %.2f", notional, p.MaxNotionalPerTrade),
			Warn: warn,
		}
	}

	if req.Side == broker.Buy {
		next := eq.SymbolExposure + RiskPct(notional, eq.Equity)
		if next > p.MaxSymbolExposurePct {
			return Reject{Why: fmt.Sprintf("Symbol exposure %s exceeds cap %s", pct(next), pct(p.MaxSymbolExposurePct)), Warn: warn}
		}
	}

	return Approve{Warn: warn}
}
