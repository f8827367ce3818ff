package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/rustyeddy/equitytrader/broker"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var _ broker.Exchange = (*Client)(nil)

func (c *Client) GetAccount(ctx context.Context) (map[string]any, error) {
	b, err := c.trading(ctx, http.MethodGet, "/v2/account", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	m, ok := gjson.ParseBytes(b).Value().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("get account: unexpected payload")
	}
	return m, nil
}

func (c *Client) GetPositions(ctx context.Context) ([]map[string]any, error) {
	b, err := c.trading(ctx, http.MethodGet, "/v2/positions", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	var out []map[string]any
	for _, p := range gjson.ParseBytes(b).Array() {
		if m, ok := p.Value().(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetQuote reads the latest NBBO quote. Alpaca reports a missing side as 0,
// which is mapped to nil. Last is left empty.
func (c *Client) GetQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	b, err := c.data(ctx, "/v2/stocks/"+url.PathEscape(symbol)+"/quotes/latest", nil)
	if err != nil {
		return broker.Quote{}, fmt.Errorf("get quote %s: %w", symbol, err)
	}
	q := gjson.GetBytes(b, "quote")
	return broker.Quote{
		Symbol: symbol,
		Bid:    positive(q.Get("bp")),
		Ask:    positive(q.Get("ap")),
		Time:   q.Get("t").Time(),
	}, nil
}

func (c *Client) IsMarketOpen(ctx context.Context) (bool, error) {
	b, err := c.trading(ctx, http.MethodGet, "/v2/clock", nil, nil)
	if err != nil {
		return false, fmt.Errorf("get clock: %w", err)
	}
	return gjson.GetBytes(b, "is_open").Bool(), nil
}

// Bars returns up to limit of the most recent daily bars, oldest first.
func (c *Client) Bars(ctx context.Context, symbol string, limit int) ([]broker.Bar, error) {
	// Without a start the API only returns today's bars. Two calendar days
	// per bar plus a week covers weekends and holidays.
	start := time.Now().UTC().AddDate(0, 0, -(2*limit + 7))
	q := url.Values{}
	q.Set("timeframe", "1Day")
	q.Set("start", start.Format("2006-01-02"))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "desc")
	q.Set("adjustment", "raw")
	b, err := c.data(ctx, "/v2/stocks/"+url.PathEscape(symbol)+"/bars", q)
	if err != nil {
		return nil, fmt.Errorf("get bars %s: %w", symbol, err)
	}
	var bars []broker.Bar
	for _, r := range gjson.GetBytes(b, "bars").Array() {
		bars = append(bars, broker.Bar{
			Time:   r.Get("t").Time(),
			Open:   number(r.Get("o")),
			High:   number(r.Get("h")),
			Low:    number(r.Get("l")),
			Close:  number(r.Get("c")),
			Volume: number(r.Get("v")),
		})
	}
	slices.Reverse(bars)
	return bars, nil
}

// PlaceOrder validates req locally before sending it. Alpaca only takes
// fractional quantities on simple orders, so an order with a stop leg is
// floored to whole shares and refused when less than one share remains.
func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResponse, error) {
	if err := broker.ValidateOrder(req); err != nil {
		return broker.OrderResponse{}, err
	}
	if legged(req) {
		whole := wholeShares(req.Qty)
		if whole <= 0 {
			return broker.OrderResponse{}, fmt.Errorf("%w: %s qty %g is under one whole share, required with a stop leg",
				broker.ErrInvalidOrder, req.Symbol, req.Qty)
		}
		if whole != req.Qty {
			c.log.Warn("qty floored to whole shares for legged order",
				zap.String("symbol", req.Symbol),
				zap.Float64("from", req.Qty),
				zap.Float64("to", whole),
			)
			req.Qty = whole
		}
	}
	b, err := c.trading(ctx, http.MethodPost, "/v2/orders", nil, orderBody(req))
	if err != nil {
		return broker.OrderResponse{}, fmt.Errorf("place order %s: %w", req.Symbol, err)
	}
	return parseOrder(b)
}

func (c *Client) GetOrder(ctx context.Context, id string) (broker.OrderResponse, error) {
	b, err := c.trading(ctx, http.MethodGet, "/v2/orders/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return broker.OrderResponse{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return parseOrder(b)
}

func (c *Client) ListOpenOrders(ctx context.Context) ([]broker.OrderResponse, error) {
	b, err := c.trading(ctx, http.MethodGet, "/v2/orders", url.Values{"status": {"open"}}, nil)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	var out []broker.OrderResponse
	for _, r := range gjson.ParseBytes(b).Array() {
		o, err := parseOrder([]byte(r.Raw))
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (c *Client) CancelOrder(ctx context.Context, id string) error {
	if _, err := c.trading(ctx, http.MethodDelete, "/v2/orders/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", id, err)
	}
	return nil
}

// orderBody builds the submit payload. A bracket with no take-profit leg is
// sent as "oto" since Alpaca requires both legs on a bracket.
func orderBody(req broker.OrderRequest) map[string]any {
	tif := req.TimeInForce
	if tif == "" {
		tif = broker.Day
	}
	body := map[string]any{
		"symbol":        req.Symbol,
		"qty":           qtyString(req.Qty),
		"side":          string(req.Side),
		"type":          string(req.Type),
		"time_in_force": string(tif),
	}
	if req.ClientOrderID != "" {
		body["client_order_id"] = req.ClientOrderID
	}
	if req.LimitPrice != nil {
		body["limit_price"] = priceString(*req.LimitPrice)
	}
	if req.StopPrice != nil && (req.Type == broker.Stop || req.Type == broker.StopLimit) {
		body["stop_price"] = priceString(*req.StopPrice)
	}

	if legged(req) {
		body["stop_loss"] = map[string]any{"stop_price": priceString(*req.StopPrice)}
		if req.TakeProfitPrice != nil {
			body["order_class"] = "bracket"
			body["take_profit"] = map[string]any{"limit_price": priceString(*req.TakeProfitPrice)}
		} else {
			body["order_class"] = "oto"
		}
	}
	return body
}

// legged reports whether req is sent with an attached stop_loss leg.
func legged(req broker.OrderRequest) bool {
	return req.OrderClass == broker.OrderClassBracket && req.StopPrice != nil
}

// wholeShares drops the fractional part, after rounding away float noise
// past Alpaca's 9 decimal places.
func wholeShares(q float64) float64 {
	return decimal.NewFromFloat(q).Round(9).Floor().InexactFloat64()
}

func parseOrder(b []byte) (broker.OrderResponse, error) {
	r := gjson.ParseBytes(b)
	if !r.IsObject() || !r.Get("id").Exists() {
		return broker.OrderResponse{}, fmt.Errorf("alpaca: unexpected order payload")
	}
	o := broker.OrderResponse{
		ID:          r.Get("id").String(),
		Symbol:      r.Get("symbol").String(),
		Side:        broker.ParseSide(r.Get("side").String()),
		Qty:         number(r.Get("qty")),
		FilledQty:   number(r.Get("filled_qty")),
		Status:      r.Get("status").String(),
		SubmittedAt: r.Get("submitted_at").Time(),
		UpdatedAt:   r.Get("updated_at").Time(),
	}
	if p := r.Get("filled_avg_price"); p.Exists() && p.Type != gjson.Null {
		o.AvgFillPrice = broker.Float(number(p))
	}
	o.Raw, _ = r.Value().(map[string]any)
	return o, nil
}

// number reads Alpaca's numeric fields, which arrive as JSON strings or
// numbers. Missing or malformed values read as 0.
func number(v gjson.Result) float64 {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

func positive(v gjson.Result) *float64 {
	if f := number(v); f > 0 {
		return broker.Float(f)
	}
	return nil
}

// Alpaca accepts up to 9 decimal places on fractional quantities.
func qtyString(q float64) string {
	return decimal.NewFromFloat(q).Round(9).String()
}

// Prices at or above $1 are limited to whole cents.
func priceString(p float64) string {
	d := decimal.NewFromFloat(p)
	if p >= 1 {
		return d.Round(2).String()
	}
	return d.Round(4).String()
}
