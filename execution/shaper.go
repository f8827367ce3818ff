package execution

import (
	"time"

	"github.com/rustyeddy/equitytrader/broker"
	"github.com/rustyeddy/equitytrader/internal/id"
	"github.com/rustyeddy/equitytrader/internal/logging"
	"github.com/rustyeddy/equitytrader/plan"
	"github.com/rustyeddy/equitytrader/risk"
	"go.uber.org/zap"
)

// Shaper turns a plan item into a concrete order request: it attaches a
// protective stop when the policy requires one, caps the quantity by the
// per-position risk budget and assigns a client order token.
type Shaper struct {
	Policy *risk.Policy
	Prefix string
	Log    *zap.Logger
}

// Shape never fails; anything it cannot decide is left for risk.Evaluate.
func (s Shaper) Shape(item plan.Item, quote broker.Quote, eq risk.EquityContext, now time.Time) broker.OrderRequest {
	req := broker.OrderRequest{
		Symbol:          item.Symbol,
		Side:            broker.ParseSide(item.Side),
		Qty:             item.Qty,
		Type:            item.OrderType(),
		TimeInForce:     broker.Day,
		LimitPrice:      item.LimitPrice,
		StopPrice:       item.StopPrice,
		TakeProfitPrice: item.TakeProfitPrice,
		ClientOrderID:   item.ClientOrderID,
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = id.ClientOrderID(s.Prefix, now)
	}

	ref, hasRef := quote.Reference()

	if req.StopPrice == nil && s.Policy.RequireBracket && req.Side == broker.Buy && hasRef {
		req.StopPrice = broker.Float(ref * (1 - s.Policy.DefaultStopLossPct))
		s.log().Debug("derived protective stop",
			zap.String("symbol", req.Symbol),
			zap.Float64("ref", ref),
			zap.Float64("stop", *req.StopPrice),
		)
	}

	if req.StopPrice != nil && hasRef && req.Qty > 0 {
		perShare := risk.PerShareRisk(ref, *req.StopPrice)
		maxQty := risk.MaxQtyByRisk(s.Policy.MaxPositionRiskPct, eq.Equity, perShare)
		if maxQty < req.Qty {
			s.log().Info("qty reduced by risk budget",
				zap.String("symbol", req.Symbol),
				zap.Float64("from", req.Qty),
				zap.Float64("to", maxQty),
			)
			req.Qty = maxQty
		}
	}

	if req.Side == broker.Buy && req.StopPrice != nil {
		req.OrderClass = broker.OrderClassBracket
	}
	return req
}

func (s Shaper) log() *zap.Logger { return logging.OrNop(s.Log) }
