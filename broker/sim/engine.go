// Package sim is an in-memory paper exchange. Orders are accepted as "new"
// and fill at the current quote after a configurable number of polls.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rustyeddy/equitytrader/broker"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNoQuote       = errors.New("quote not found")
)

type order struct {
	req     broker.OrderRequest
	resp    broker.OrderResponse
	polls   int
	applied bool
}

type position struct {
	qty      float64
	avgEntry float64
}

// Exchange is safe for concurrent use.
type Exchange struct {
	mu         sync.Mutex
	quotes     map[string]broker.Quote
	open       bool
	equity     float64
	lastEquity float64
	orders     map[string]*order
	seq        []string
	positions  map[string]*position
	fillAfter  int
	now        func() time.Time
}

type Option func(*Exchange)

// WithFillAfter fills orders on the n-th GetOrder call. n < 0 never fills.
func WithFillAfter(n int) Option {
	return func(e *Exchange) { e.fillAfter = n }
}

// WithEquity sets current and prior-close equity.
func WithEquity(equity, lastEquity float64) Option {
	return func(e *Exchange) {
		e.equity = equity
		e.lastEquity = lastEquity
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Exchange) { e.now = now }
}

func NewExchange(opts ...Option) *Exchange {
	e := &Exchange{
		quotes:     make(map[string]broker.Quote),
		open:       true,
		equity:     100000,
		lastEquity: 100000,
		orders:     make(map[string]*order),
		positions:  make(map[string]*position),
		fillAfter:  1,
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Exchange) SetQuote(q broker.Quote) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quotes[q.Symbol] = q
}

func (e *Exchange) SetMarketOpen(open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = open
}

// Orders returns every request accepted so far, in submission order.
func (e *Exchange) Orders() []broker.OrderRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]broker.OrderRequest, 0, len(e.seq))
	for _, id := range e.seq {
		out = append(out, e.orders[id].req)
	}
	return out
}

func (e *Exchange) GetAccount(ctx context.Context) (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return map[string]any{
		"equity":      e.equity,
		"last_equity": e.lastEquity,
		"currency":    "USD",
	}, nil
}

func (e *Exchange) GetPositions(ctx context.Context) ([]map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]map[string]any, 0, len(e.positions))
	for sym, p := range e.positions {
		if p.qty == 0 {
			continue
		}
		price := p.avgEntry
		if q, ok := e.quotes[sym]; ok {
			if ref, ok := q.Reference(); ok {
				price = ref
			}
		}
		out = append(out, map[string]any{
			"symbol":          sym,
			"qty":             p.qty,
			"avg_entry_price": p.avgEntry,
			"market_value":    p.qty * price,
		})
	}
	return out, nil
}

func (e *Exchange) GetQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.quotes[symbol]
	if !ok {
		return broker.Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	return q, nil
}

// Bars synthesizes one bar from the current quote: high at the ask, low at
// the bid, close at the reference price.
func (e *Exchange) Bars(ctx context.Context, symbol string, limit int) ([]broker.Bar, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	ref, ok := q.Reference()
	if !ok {
		return nil, nil
	}
	b := broker.Bar{Time: e.now(), Open: ref, High: ref, Low: ref, Close: ref}
	if q.Ask != nil {
		b.High = math.Max(b.High, *q.Ask)
	}
	if q.Bid != nil {
		b.Low = math.Min(b.Low, *q.Bid)
	}
	return []broker.Bar{b}, nil
}

func (e *Exchange) IsMarketOpen(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open, nil
}

func (e *Exchange) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResponse, error) {
	if err := broker.ValidateOrder(req); err != nil {
		return broker.OrderResponse{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	resp := broker.OrderResponse{
		ID:          uuid.NewString(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Qty:         req.Qty,
		Status:      broker.StatusNew,
		SubmittedAt: now,
		UpdatedAt:   now,
		Raw:         map[string]any{"client_order_id": req.ClientOrderID, "order_class": req.OrderClass},
	}
	e.orders[resp.ID] = &order{req: req, resp: resp}
	e.seq = append(e.seq, resp.ID)
	return resp, nil
}

func (e *Exchange) GetOrder(ctx context.Context, id string) (broker.OrderResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[id]
	if !ok {
		return broker.OrderResponse{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	o.polls++
	if o.resp.Status == broker.StatusNew && e.fillAfter >= 0 && o.polls >= e.fillAfter {
		e.fillLocked(o)
	}
	return o.resp, nil
}

func (e *Exchange) ListOpenOrders(ctx context.Context) ([]broker.OrderResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.OrderResponse
	for _, id := range e.seq {
		if o := e.orders[id]; !broker.IsTerminal(o.resp.Status) {
			out = append(out, o.resp)
		}
	}
	return out, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if broker.IsTerminal(o.resp.Status) {
		return fmt.Errorf("cancel order: %s is already %s", id, o.resp.Status)
	}
	o.resp.Status = broker.StatusCanceled
	o.resp.UpdatedAt = e.now()
	return nil
}

// fillLocked fills at the ask for buys and the bid for sells, falling back
// to the reference price.
func (e *Exchange) fillLocked(o *order) {
	q := e.quotes[o.req.Symbol]
	price, _ := q.Reference()
	if o.req.Side == broker.Buy && q.Ask != nil {
		price = *q.Ask
	}
	if o.req.Side == broker.Sell && q.Bid != nil {
		price = *q.Bid
	}

	o.resp.Status = broker.StatusFilled
	o.resp.FilledQty = o.req.Qty
	o.resp.AvgFillPrice = broker.Float(price)
	o.resp.UpdatedAt = e.now()

	if o.applied {
		return
	}
	o.applied = true

	p, ok := e.positions[o.req.Symbol]
	if !ok {
		p = &position{}
		e.positions[o.req.Symbol] = p
	}
	signed := o.req.Qty
	if o.req.Side == broker.Sell {
		signed = -signed
	}
	next := p.qty + signed
	switch {
	case p.qty != 0 && next != 0 && (p.qty > 0) != (next > 0):
		// flipped through flat: the remainder opened at this fill
		p.avgEntry = price
	case math.Abs(next) > math.Abs(p.qty):
		p.avgEntry = (p.avgEntry*math.Abs(p.qty) + price*o.req.Qty) / math.Abs(next)
	}
	p.qty = next
}
