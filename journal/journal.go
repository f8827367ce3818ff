// Package journal writes the append-only execution audit trail.
package journal

import (
	"strconv"
	"time"

	"github.com/rustyeddy/equitytrader/broker"
)

// SchemaVersion is bumped whenever the audit columns change.
const SchemaVersion = 1

// Header lists the audit columns in file order.
var Header = []string{
	"timestamp",
	"symbol",
	"side",
	"qty",
	"type",
	"time_in_force",
	"client_order_id",
	"status",
	"filled_qty",
	"avg_fill_price",
	"order_id",
	"order_class",
	"stop_price",
	"take_profit_price",
}

// AuditRecord is one execution attempt: the request as submitted and the
// last order state the executor observed.
type AuditRecord struct {
	Time            time.Time
	Symbol          string
	Side            string
	Qty             float64
	Type            string
	TimeInForce     string
	ClientOrderID   string
	Status          string
	FilledQty       float64
	AvgFillPrice    *float64
	OrderID         string
	OrderClass      string
	StopPrice       *float64
	TakeProfitPrice *float64
}

func NewAuditRecord(now time.Time, req broker.OrderRequest, resp broker.OrderResponse) AuditRecord {
	return AuditRecord{
		Time:            now,
		Symbol:          req.Symbol,
		Side:            string(req.Side),
		Qty:             req.Qty,
		Type:            string(req.Type),
		TimeInForce:     string(req.TimeInForce),
		ClientOrderID:   req.ClientOrderID,
		Status:          resp.Status,
		FilledQty:       resp.FilledQty,
		AvgFillPrice:    resp.AvgFillPrice,
		OrderID:         resp.ID,
		OrderClass:      req.OrderClass,
		StopPrice:       req.StopPrice,
		TakeProfitPrice: req.TakeProfitPrice,
	}
}

// Row renders r in Header order. Absent optional values are empty strings.
func (r AuditRecord) Row() []string {
	return []string{
		strconv.FormatInt(r.Time.Unix(), 10),
		r.Symbol,
		r.Side,
		f(r.Qty),
		r.Type,
		r.TimeInForce,
		r.ClientOrderID,
		r.Status,
		f(r.FilledQty),
		broker.FormatOptional(r.AvgFillPrice, f),
		r.OrderID,
		r.OrderClass,
		broker.FormatOptional(r.StopPrice, f),
		broker.FormatOptional(r.TakeProfitPrice, f),
	}
}

// Journal receives exactly one record per execution attempt.
type Journal interface {
	Record(AuditRecord) error
	Close() error
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
