package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Exchange is the brokerage capability consumed by the execution core.
// Every call may block and may fail; implementations used from more than one
// goroutine must be safe for concurrent use.
type Exchange interface {
	GetAccount(ctx context.Context) (map[string]any, error)
	GetPositions(ctx context.Context) ([]map[string]any, error)
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	IsMarketOpen(ctx context.Context) (bool, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
	GetOrder(ctx context.Context, id string) (OrderResponse, error)
	ListOpenOrders(ctx context.Context) ([]OrderResponse, error)
	CancelOrder(ctx context.Context, id string) error
}

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide maps anything starting with "b" to Buy and everything else to Sell.
func ParseSide(s string) Side {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "b") {
		return Buy
	}
	return Sell
}

type OrderType string

const (
	Market    OrderType = "market"
	Limit     OrderType = "limit"
	Stop      OrderType = "stop"
	StopLimit OrderType = "stop_limit"
)

type TimeInForce string

const (
	Day TimeInForce = "day"
	GTC TimeInForce = "gtc"
	OPG TimeInForce = "opg"
	CLS TimeInForce = "cls"
	IOC TimeInForce = "ioc"
	FOK TimeInForce = "fok"
)

// OrderClassBracket marks an entry order carrying a protective stop leg.
const OrderClassBracket = "bracket"

// Order statuses the reconciliation loop treats as final.
const (
	StatusNew             = "new"
	StatusAccepted        = "accepted"
	StatusFilled          = "filled"
	StatusPartiallyFilled = "partially_filled"
	StatusCanceled        = "canceled"
	StatusReplaced        = "replaced"
	StatusRejected        = "rejected"
)

// IsTerminal reports whether status ends the polling loop. partially_filled
// counts as terminal here.
func IsTerminal(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusFilled, StatusPartiallyFilled, StatusCanceled, StatusReplaced, StatusRejected:
		return true
	}
	return false
}

type Quote struct {
	Symbol string
	Bid    *float64
	Ask    *float64
	Last   *float64
	Time   time.Time
}

// Mid returns the bid/ask midpoint when both sides are known.
func (q Quote) Mid() (float64, bool) {
	if q.Bid == nil || q.Ask == nil {
		return 0, false
	}
	return (*q.Bid + *q.Ask) / 2, true
}

// Reference prefers the last trade and falls back to the midpoint.
// A zero last trade is treated as missing.
func (q Quote) Reference() (float64, bool) {
	if q.Last != nil && *q.Last != 0 {
		return *q.Last, true
	}
	return q.Mid()
}

// Bar is one daily OHLCV candle, used by the research screener.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// OrderRequest may be modified until it is handed to PlaceOrder.
type OrderRequest struct {
	Symbol          string
	Side            Side
	Qty             float64
	Type            OrderType
	TimeInForce     TimeInForce
	LimitPrice      *float64
	StopPrice       *float64
	ClientOrderID   string
	OrderClass      string
	TakeProfitPrice *float64
}

type OrderResponse struct {
	ID           string
	Symbol       string
	Side         Side
	Qty          float64
	FilledQty    float64
	Status       string
	AvgFillPrice *float64
	SubmittedAt  time.Time
	UpdatedAt    time.Time
	Raw          map[string]any
}

var ErrInvalidOrder = errors.New("invalid order")

// ValidateOrder checks the shape of req without touching the network.
func ValidateOrder(req OrderRequest) error {
	if strings.TrimSpace(req.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	}
	if req.Side != Buy && req.Side != Sell {
		return fmt.Errorf("%w: unsupported side %q", ErrInvalidOrder, req.Side)
	}
	if req.Qty <= 0 {
		return fmt.Errorf("%w: qty must be positive", ErrInvalidOrder)
	}
	switch req.Type {
	case Market:
	case Limit:
		if req.LimitPrice == nil {
			return fmt.Errorf("%w: limit_price required for limit orders", ErrInvalidOrder)
		}
	case Stop:
		if req.StopPrice == nil {
			return fmt.Errorf("%w: stop_price required for stop orders", ErrInvalidOrder)
		}
	case StopLimit:
		if req.StopPrice == nil || req.LimitPrice == nil {
			return fmt.Errorf("%w: stop_price and limit_price required for stop_limit orders", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: unsupported order type %q", ErrInvalidOrder, req.Type)
	}
	switch req.TimeInForce {
	case "", Day, GTC, OPG, CLS, IOC, FOK:
	default:
		return fmt.Errorf("%w: unsupported time_in_force %q", ErrInvalidOrder, req.TimeInForce)
	}
	return nil
}

// Float returns a pointer to v, for the optional price fields.
func Float(v float64) *float64 { return &v }

// FormatOptional renders an optional value, or "" when absent.
func FormatOptional(v *float64, format func(float64) string) string {
	if v == nil {
		return ""
	}
	return format(*v)
}
