// Package execution places one planned trade at a time: it shapes the order,
// runs it past the risk engine, submits it with retries, polls it to a
// terminal state and writes exactly one audit record per submitted attempt.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/equitytrader/broker"
	"github.com/rustyeddy/equitytrader/internal/clock"
	"github.com/rustyeddy/equitytrader/internal/logging"
	"github.com/rustyeddy/equitytrader/journal"
	"github.com/rustyeddy/equitytrader/plan"
	"github.com/rustyeddy/equitytrader/risk"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultSubmitAttempts = 5
	DefaultBackoffMin     = 500 * time.Millisecond
	DefaultBackoffMax     = 5 * time.Second
	DefaultMaxPolls       = 20
	DefaultPollInterval   = time.Second
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor is not safe for concurrent PlaceAndReconcile calls on the same
// plan item; distinct items may run in parallel if the Exchange allows it.
type Executor struct {
	ex      broker.Exchange
	policy  *risk.Policy
	journal journal.Journal
	log     *zap.Logger
	shaper  Shaper

	sleep SleepFunc
	now   func() time.Time

	submitAttempts int
	backoffMin     time.Duration
	backoffMax     time.Duration
	maxPolls       int
	pollInterval   time.Duration
}

type Option func(*Executor)

func WithJournal(j journal.Journal) Option {
	return func(e *Executor) { e.journal = j }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithSleep replaces the wall-clock sleep used between retries and polls.
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) { e.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func WithClientIDPrefix(prefix string) Option {
	return func(e *Executor) { e.shaper.Prefix = prefix }
}

func WithRetry(attempts int, min, max time.Duration) Option {
	return func(e *Executor) {
		e.submitAttempts = attempts
		e.backoffMin = min
		e.backoffMax = max
	}
}

func WithPolling(maxPolls int, interval time.Duration) Option {
	return func(e *Executor) {
		e.maxPolls = maxPolls
		e.pollInterval = interval
	}
}

func New(ex broker.Exchange, policy *risk.Policy, opts ...Option) *Executor {
	e := &Executor{
		ex:             ex,
		policy:         policy,
		sleep:          clock.Sleep,
		now:            time.Now,
		submitAttempts: DefaultSubmitAttempts,
		backoffMin:     DefaultBackoffMin,
		backoffMax:     DefaultBackoffMax,
		maxPolls:       DefaultMaxPolls,
		pollInterval:   DefaultPollInterval,
	}
	for _, o := range opts {
		o(e)
	}
	e.log = logging.OrNop(e.log)
	e.shaper.Policy = policy
	e.shaper.Log = e.log
	return e
}

// Result is what one attempt produced. Response holds the last observed
// order state; TimedOut is set when polling ran out before a terminal status.
type Result struct {
	Item     plan.Item
	Request  broker.OrderRequest
	Response broker.OrderResponse
	Decision risk.Decision
	TimedOut bool
}

// PlaceAndReconcile runs one plan item through shaping, risk, submission and
// polling. A risk rejection returns a *RejectedError and submits nothing.
// Once an order has been accepted an audit record is written whatever
// happens next.
func (e *Executor) PlaceAndReconcile(ctx context.Context, item plan.Item, eq risk.EquityContext) (*Result, error) {
	item = item.Normalize()
	if err := validateItem(item); err != nil {
		return nil, err
	}
	log := e.log.With(zap.String("symbol", item.Symbol), zap.String("side", item.Side))

	quote, err := e.ex.GetQuote(ctx, item.Symbol)
	if err != nil {
		return nil, fmt.Errorf("get quote %s: %w", item.Symbol, err)
	}
	open, err := e.ex.IsMarketOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("market clock: %w", err)
	}

	req := e.shaper.Shape(item, quote, eq, e.now())
	res := &Result{Item: item, Request: req}

	dec := risk.Evaluate(e.policy, req, quote, eq, open)
	res.Decision = dec
	if dec.Warned() {
		log.Warn("daily loss warning tier reached", zap.Float64("day_pnl_pct", eq.DayRealizedPnLPct))
	}
	switch d := dec.(type) {
	case risk.Approve:
	case risk.Resize:
		if d.Qty <= 0 {
			return res, &RejectedError{Reason: d.Why}
		}
		log.Info("risk resized order", zap.Float64("from", req.Qty), zap.Float64("to", d.Qty), zap.String("reason", d.Why))
		req.Qty = d.Qty
		res.Request = req
	case risk.Reject:
		log.Warn("risk rejected order", zap.String("reason", d.Why))
		return res, &RejectedError{Reason: d.Why, BlockNewEntries: d.BlockNewEntries}
	}

	if err := broker.ValidateOrder(req); err != nil {
		return res, err
	}

	placed, err := e.submit(ctx, req)
	if err != nil {
		return res, err
	}
	log = log.With(zap.String("order_id", placed.ID))
	log.Info("order submitted", zap.Float64("qty", req.Qty), zap.String("client_order_id", req.ClientOrderID))

	last, timedOut, pollErr := e.poll(ctx, placed, log)
	res.Response = last
	res.TimedOut = timedOut

	if err := e.audit(req, last); err != nil {
		log.Error("audit write failed", zap.Error(err))
		return res, multierr.Append(pollErr, fmt.Errorf("%w: %w", ErrAudit, err))
	}
	return res, pollErr
}

// poll returns the first terminal state, or the last state seen when the
// budget runs out. Failed polls count against the budget. Only context
// cancellation is returned as an error.
func (e *Executor) poll(ctx context.Context, placed broker.OrderResponse, log *zap.Logger) (broker.OrderResponse, bool, error) {
	last := placed
	for try := 0; try < e.maxPolls; try++ {
		if err := e.sleep(ctx, e.pollInterval); err != nil {
			return last, false, err
		}
		o, err := e.ex.GetOrder(ctx, placed.ID)
		if err != nil {
			log.Warn("poll failed", zap.Int("try", try+1), zap.Error(err))
			continue
		}
		last = o
		if broker.IsTerminal(o.Status) {
			log.Info("order reached terminal status", zap.String("status", o.Status), zap.Float64("filled_qty", o.FilledQty))
			return last, false, nil
		}
	}
	log.Warn("order still open after polling", zap.Int("polls", e.maxPolls), zap.String("status", last.Status))
	return last, true, nil
}

func (e *Executor) audit(req broker.OrderRequest, resp broker.OrderResponse) error {
	if e.journal == nil {
		return nil
	}
	return e.journal.Record(journal.NewAuditRecord(e.now(), req, resp))
}

// validateItem catches malformed items before any exchange call. A stop or
// stop_limit entry must carry its own trigger; the derived protective stop
// never stands in for it.
func validateItem(item plan.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %w", broker.ErrInvalidOrder, err)
	}
	t := item.OrderType()
	switch t {
	case broker.Market, broker.Limit, broker.Stop, broker.StopLimit:
	default:
		return fmt.Errorf("%w: unsupported order type %q", broker.ErrInvalidOrder, t)
	}
	if (t == broker.Limit || t == broker.StopLimit) && item.LimitPrice == nil {
		return fmt.Errorf("%w: %s order requires limit_price", broker.ErrInvalidOrder, t)
	}
	if (t == broker.Stop || t == broker.StopLimit) && item.StopPrice == nil {
		return fmt.Errorf("%w: %s order requires stop_price", broker.ErrInvalidOrder, t)
	}
	return nil
}
