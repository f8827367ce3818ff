package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/equitytrader/broker"
	"github.com/rustyeddy/equitytrader/broker/sim"
	"github.com/rustyeddy/equitytrader/journal"
	"github.com/rustyeddy/equitytrader/plan"
	"github.com/rustyeddy/equitytrader/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 4, 10, 14, 30, 0, 0, time.UTC)

func newSim(opts ...sim.Option) *sim.Exchange {
	ex := sim.NewExchange(opts...)
	ex.SetQuote(aaplQuote)
	return ex
}

func newExecutor(ex broker.Exchange, p *risk.Policy, opts ...Option) (*Executor, *sleepRecorder) {
	sl := &sleepRecorder{}
	opts = append([]Option{
		WithSleep(sl.Sleep),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	return New(ex, p, opts...), sl
}

func buy(qty float64) plan.Item {
	return plan.Item{Symbol: "AAPL", Side: "buy", Qty: qty}
}

func TestPlaceAndReconcileFillsAndAudits(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.csv")
	j, err := journal.NewCSV(path)
	require.NoError(t, err)

	p := risk.DefaultPolicy()
	ex := newSim()
	e, sl := newExecutor(ex, &p, WithJournal(j))

	res, err := e.PlaceAndReconcile(context.Background(), buy(10), risk.EquityContext{Equity: 1000})
	require.NoError(t, err)

	// Notional 10 x 10.1 is over the 25 cap, so the single resize applies.
	assert.IsType(t, risk.Resize{}, res.Decision)
	assert.InDelta(t, 25/10.1, res.Request.Qty, 1e-9)
	assert.Equal(t, broker.OrderClassBracket, res.Request.OrderClass)
	require.NotNil(t, res.Request.StopPrice)
	assert.InDelta(t, 9.09, *res.Request.StopPrice, 1e-9)

	assert.Equal(t, broker.StatusFilled, res.Response.Status)
	assert.False(t, res.TimedOut)
	assert.Equal(t, []time.Duration{time.Second}, sl.Calls())

	orders := ex.Orders()
	require.Len(t, orders, 1)
	assert.InDelta(t, 25/10.1, orders[0].Qty, 1e-9)

	recs, err := journal.ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "AAPL", recs[0].Symbol)
	assert.Equal(t, broker.StatusFilled, recs[0].Status)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "AAPL")
	assert.Contains(t, string(raw), "filled")
}

func TestPlaceAndReconcileApprovedAsIs(t *testing.T) {
	t.Parallel()

	p := risk.DefaultPolicy()
	ex := newSim()
	j := &memJournal{}
	e, _ := newExecutor(ex, &p, WithJournal(j))

	res, err := e.PlaceAndReconcile(context.Background(), buy(2), risk.EquityContext{Equity: 1000})
	require.NoError(t, err)
	assert.IsType(t, risk.Approve{}, res.Decision)
	assert.Equal(t, 2.0, res.Request.Qty)
	assert.Len(t, j.Records(), 1)
}

func TestRiskRejectSubmitsNothing(t *testing.T) {
	t.Parallel()

	p := risk.DefaultPolicy()
	ex := newSim()
	ex.SetMarketOpen(false)
	j := &memJournal{}
	e, _ := newExecutor(ex, &p, WithJournal(j))

	_, err := e.PlaceAndReconcile(context.Background(), buy(1), risk.EquityContext{Equity: 1000})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRiskRejected)

	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "Market closed and after-hours trading is disabled", rej.Reason)

	assert.Empty(t, ex.Orders())
	assert.Empty(t, j.Records())
}

func TestTierBlockMarksBlockNewEntries(t *testing.T) {
	t.Parallel()

	p := risk.DefaultPolicy()
	ex := newSim()
	e, _ := newExecutor(ex, &p)

	_, err := e.PlaceAndReconcile(context.Background(), buy(1), risk.EquityContext{Equity: 1000, DayRealizedPnLPct: -0.055})
	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.True(t, rej.BlockNewEntries)
	assert.Empty(t, ex.Orders())
}

func TestZeroResizeIsRejected(t *testing.T) {
	t.Parallel()

	p := risk.DefaultPolicy()
	p.MaxNotionalPerTrade = 0
	ex := newSim()
	e, _ := newExecutor(ex, &p)

	_, err := e.PlaceAndReconcile(context.Background(), buy(1), risk.EquityContext{Equity: 1000})
	assert.ErrorIs(t, err, ErrRiskRejected)
	assert.ErrorContains(t, err, "per-trade cap")
	assert.Empty(t, ex.Orders())
}

func TestInvalidItemMakesNoExchangeCalls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		item plan.Item
	}{
		{"limit without price", plan.Item{Symbol: "AAPL", Side: "buy", Qty: 1, Type: "limit"}},
		{"stop_limit without limit", plan.Item{Symbol: "AAPL", Side: "buy", Qty: 1, Type: "stop_limit", StopPrice: broker.Float(9)}},
		{"stop without stop_price", plan.Item{Symbol: "AAPL", Side: "sell", Qty: 1, Type: "stop"}},
		{"stop_limit without stop", plan.Item{Symbol: "AAPL", Side: "buy", Qty: 1, Type: "stop_limit", LimitPrice: broker.Float(10)}},
		{"unknown type", plan.Item{Symbol: "AAPL", Side: "buy", Qty: 1, Type: "trailing"}},
		{"zero qty", plan.Item{Symbol: "AAPL", Side: "buy", Qty: 0}},
		{"no symbol", plan.Item{Side: "buy", Qty: 1}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := &mockExchange{}
			p := risk.DefaultPolicy()
			e, _ := newExecutor(m, &p)

			_, err := e.PlaceAndReconcile(context.Background(), tt.item, risk.EquityContext{Equity: 1000})
			assert.ErrorIs(t, err, broker.ErrInvalidOrder)
			m.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything)
			m.AssertNotCalled(t, "IsMarketOpen", mock.Anything)
			m.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
		})
	}
}

func expectQuote(m *mockExchange) {
	m.On("GetQuote", mock.Anything, "AAPL").Return(aaplQuote, nil)
	m.On("IsMarketOpen", mock.Anything).Return(true, nil)
}

func TestSubmitRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	m := &mockExchange{}
	expectQuote(m)
	m.On("PlaceOrder", mock.Anything, mock.Anything).Return(broker.OrderResponse{}, errors.New("503 service unavailable")).Times(4)
	m.On("PlaceOrder", mock.Anything, mock.Anything).Return(broker.OrderResponse{ID: "o-1", Status: broker.StatusNew}, nil).Once()
	m.On("GetOrder", mock.Anything, "o-1").Return(broker.OrderResponse{ID: "o-1", Symbol: "AAPL", Status: broker.StatusFilled, FilledQty: 1}, nil)

	p := risk.DefaultPolicy()
	j := &memJournal{}
	e, sl := newExecutor(m, &p, WithJournal(j))

	res, err := e.PlaceAndReconcile(context.Background(), buy(1), risk.EquityContext{Equity: 1000})
	require.NoError(t, err)
	assert.Equal(t, broker.StatusFilled, res.Response.Status)

	m.AssertNumberOfCalls(t, "PlaceOrder", 5)
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		time.Second, // first poll
	}, sl.Calls())
	assert.Len(t, j.Records(), 1)
}

func TestSubmitGivesUpAfterFiveAttempts(t *testing.T) {
	t.Parallel()

	m := &mockExchange{}
	expectQuote(m)
	m.On("PlaceOrder", mock.Anything, mock.Anything).Return(broker.OrderResponse{}, errors.New("connection reset"))

	p := risk.DefaultPolicy()
	j := &memJournal{}
	e, sl := newExecutor(m, &p, WithJournal(j))

	_, err := e.PlaceAndReconcile(context.Background(), buy(1), risk.EquityContext{Equity: 1000})
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")
	assert.ErrorContains(t, err, "after 5 attempts")

	m.AssertNumberOfCalls(t, "PlaceOrder", 5)
	assert.Len(t, sl.Calls(), 4)
	assert.Empty(t, j.Records())
}

func TestBackoffIsCapped(t *testing.T) {
	t.Parallel()

	m := &mockExchange{}
	expectQuote(m)
	m.On("PlaceOrder", mock.Anything, mock.Anything).Return(broker.OrderResponse{}, errors.New("timeout"))

	p := risk.DefaultPolicy()
	e, sl := newExecutor(m, &p, WithRetry(6, DefaultBackoffMin, DefaultBackoffMax))

	_, err := e.PlaceAndReconcile(context.Background(), buy(1), risk.EquityContext{Equity: 1000})
	require.Error(t, err)
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
	}, sl.Calls())
}

func TestInvalidOrderIsNotRetried(t *testing.T) {
	t.Parallel()

	m := &mockExchange{}
	expectQuote(m)
	m.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(broker.OrderResponse{}, fmt.Errorf("%w: insufficient buying power", broker.ErrInvalidOrder)).Once()

	p := risk.DefaultPolicy()
	e, sl := newExecutor(m, &p)

	_, err := e.PlaceAndReconcile(context.Background(), buy(1), risk.EquityContext{Equity: 1000})
	assert.ErrorIs(t, err, broker.ErrInvalidOrder)
	m.AssertNumberOfCalls(t, "PlaceOrder", 1)
	assert.Empty(t, sl.Calls())
}

func TestPollErrorsAreTolerated(t *testing.T) {
	t.Parallel()

	m := &mockExchange{}
	expectQuote(m)
	m.On("PlaceOrder", mock.Anything, mock.Anything).Return(broker.OrderResponse{ID: "o-1", Status: broker.StatusNew}, nil).Once()
	m.On("GetOrder", mock.Anything, "o-1").Return(broker.OrderResponse{}, errors.New("502 bad gateway")).Twice()
	m.On("GetOrder", mock.Anything, "o-1").Return(broker.OrderResponse{ID: "o-1", Status: broker.StatusCanceled}, nil).Once()

	p := risk.DefaultPolicy()
	j := &memJournal{}
	e, sl := newExecutor(m, &p, WithJournal(j))

	res, err := e.PlaceAndReconcile(context.Background(), buy(1), risk.EquityContext{Equity: 1000})
	require.NoError(t, err)
	assert.Equal(t, broker.StatusCanceled, res.Response.Status)
	m.AssertNumberOfCalls(t, "GetOrder", 3)
	assert.Len(t, sl.Calls(), 3)

	recs := j.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, broker.StatusCanceled, recs[0].Status)
}

func TestPollTimeoutAuditsLastState(t *testing.T) {
	t.Parallel()

	p := risk.DefaultPolicy()
	ex := newSim(sim.WithFillAfter(-1))
	j := &memJournal{}
	e, sl := newExecutor(ex, &p, WithJournal(j))

	res, err := e.PlaceAndReconcile(context.Background(), buy(1), risk.EquityContext{Equity: 1000})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, broker.StatusNew, res.Response.Status)
	assert.Len(t, sl.Calls(), DefaultMaxPolls)

	recs := j.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, broker.StatusNew, recs[0].Status)
	assert.Equal(t, res.Response.ID, recs[0].OrderID)
	assert.True(t, recs[0].Time.Equal(fixedNow))
}

type brokenJournal struct{}

func (brokenJournal) Record(journal.AuditRecord) error { return errors.New("disk full") }
func (brokenJournal) Close() error                     { return nil }

func TestAuditFailureStillReturnsState(t *testing.T) {
	t.Parallel()

	p := risk.DefaultPolicy()
	e, _ := newExecutor(newSim(), &p, WithJournal(brokenJournal{}))

	res, err := e.PlaceAndReconcile(context.Background(), buy(1), risk.EquityContext{Equity: 1000})
	assert.ErrorIs(t, err, ErrAudit)
	require.NotNil(t, res)
	assert.Equal(t, broker.StatusFilled, res.Response.Status)
}

func TestQuoteFailureAborts(t *testing.T) {
	t.Parallel()

	p := risk.DefaultPolicy()
	ex := newSim()
	e, _ := newExecutor(ex, &p)

	_, err := e.PlaceAndReconcile(context.Background(), plan.Item{Symbol: "MSFT", Side: "buy", Qty: 1}, risk.EquityContext{Equity: 1000})
	assert.ErrorIs(t, err, sim.ErrNoQuote)
	assert.Empty(t, ex.Orders())
}
