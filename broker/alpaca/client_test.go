package alpaca

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rustyeddy/equitytrader/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderJSON = `{
	"id": "61e69015-8549-4bfd-b9c3-01e75843f47d",
	"client_order_id": "eqt-01hv",
	"symbol": "AAPL",
	"side": "buy",
	"qty": "2.5",
	"filled_qty": "2.5",
	"filled_avg_price": "10.2",
	"status": "filled",
	"submitted_at": "2024-04-10T14:30:00.123Z",
	"updated_at": "2024-04-10T14:30:01Z"
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, DataURL: srv.URL, KeyID: "key", SecretKey: "secret", RequestsPerMinute: 6000}, nil)
	require.NoError(t, err)
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestPaperDetection(t *testing.T) {
	t.Parallel()

	assert.True(t, Config{BaseURL: "https://paper-api.alpaca.markets"}.Paper())
	assert.True(t, Config{}.Paper())
	assert.False(t, Config{BaseURL: LiveURL}.Paper())

	u, err := BaseURL("live")
	require.NoError(t, err)
	assert.Equal(t, LiveURL, u)
	_, err = BaseURL("moon")
	assert.Error(t, err)
}

func TestPlaceOrderBracket(t *testing.T) {
	t.Parallel()

	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(b, &body))
		_, _ = w.Write([]byte(orderJSON))
	})

	resp, err := c.PlaceOrder(context.Background(), broker.OrderRequest{
		Symbol:          "AAPL",
		Side:            broker.Buy,
		Qty:             2.5,
		Type:            broker.Market,
		TimeInForce:     broker.Day,
		StopPrice:       broker.Float(10.1 * 0.9),
		TakeProfitPrice: broker.Float(12),
		ClientOrderID:   "eqt-01hv",
		OrderClass:      broker.OrderClassBracket,
	})
	require.NoError(t, err)

	// legged orders go out in whole shares
	assert.Equal(t, "2", body["qty"])
	assert.Equal(t, "market", body["type"])
	assert.Equal(t, "day", body["time_in_force"])
	assert.Equal(t, "eqt-01hv", body["client_order_id"])
	assert.Equal(t, "bracket", body["order_class"])
	assert.Equal(t, map[string]any{"stop_price": "9.09"}, body["stop_loss"])
	assert.Equal(t, map[string]any{"limit_price": "12"}, body["take_profit"])
	assert.NotContains(t, body, "stop_price")

	assert.Equal(t, "61e69015-8549-4bfd-b9c3-01e75843f47d", resp.ID)
	assert.Equal(t, broker.StatusFilled, resp.Status)
	assert.Equal(t, broker.Buy, resp.Side)
	assert.Equal(t, 2.5, resp.FilledQty)
	require.NotNil(t, resp.AvgFillPrice)
	assert.Equal(t, 10.2, *resp.AvgFillPrice)
	assert.Equal(t, 123000000, resp.SubmittedAt.Nanosecond())
	assert.Equal(t, "eqt-01hv", resp.Raw["client_order_id"])
}

func TestOrderBodyStopOnlyIsOTO(t *testing.T) {
	t.Parallel()

	body := orderBody(broker.OrderRequest{
		Symbol:     "AAPL",
		Side:       broker.Buy,
		Qty:        1,
		Type:       broker.Limit,
		LimitPrice: broker.Float(10.004),
		StopPrice:  broker.Float(9),
		OrderClass: broker.OrderClassBracket,
	})
	assert.Equal(t, "oto", body["order_class"])
	assert.Equal(t, "10", body["limit_price"])
	assert.NotContains(t, body, "take_profit")
	assert.Equal(t, "day", body["time_in_force"])

	body = orderBody(broker.OrderRequest{Symbol: "X", Side: broker.Sell, Qty: 1, Type: broker.Stop, StopPrice: broker.Float(0.12345)})
	assert.Equal(t, "0.1235", body["stop_price"])
	assert.NotContains(t, body, "order_class")
}

func TestLeggedOrderNeedsWholeShare(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := c.PlaceOrder(context.Background(), broker.OrderRequest{
		Symbol:      "AAPL",
		Side:        broker.Buy,
		Qty:         0.99,
		Type:        broker.Market,
		TimeInForce: broker.Day,
		StopPrice:   broker.Float(9),
		OrderClass:  broker.OrderClassBracket,
	})
	assert.ErrorIs(t, err, broker.ErrInvalidOrder)
	assert.Zero(t, calls.Load())

	assert.Equal(t, 2.0, wholeShares(2.475))
	assert.Equal(t, 3.0, wholeShares(2.9999999999))
	assert.Equal(t, 0.0, wholeShares(0.5))
}

func TestSimpleOrderKeepsFractionalQty(t *testing.T) {
	t.Parallel()

	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(b, &body))
		_, _ = w.Write([]byte(orderJSON))
	})

	_, err := c.PlaceOrder(context.Background(), broker.OrderRequest{
		Symbol:      "AAPL",
		Side:        broker.Buy,
		Qty:         2.475,
		Type:        broker.Market,
		TimeInForce: broker.Day,
	})
	require.NoError(t, err)
	assert.Equal(t, "2.475", body["qty"])
	assert.NotContains(t, body, "order_class")
}

func TestPlaceOrderValidatesLocally(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := c.PlaceOrder(context.Background(), broker.OrderRequest{Symbol: "AAPL", Side: broker.Buy, Qty: 1, Type: broker.Limit})
	assert.ErrorIs(t, err, broker.ErrInvalidOrder)
	assert.Zero(t, calls.Load())
}

func TestRejectionMapsToInvalidOrder(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":40310000,"message":"insufficient buying power"}`))
	})

	_, err := c.PlaceOrder(context.Background(), broker.OrderRequest{Symbol: "AAPL", Side: broker.Buy, Qty: 1, Type: broker.Market})
	assert.ErrorIs(t, err, broker.ErrInvalidOrder)
	assert.ErrorContains(t, err, "insufficient buying power")
}

func TestServerErrorIsRetriable(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	})

	_, err := c.GetOrder(context.Background(), "abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, broker.ErrInvalidOrder)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
}

func TestGetQuoteAndClock(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/stocks/AAPL/quotes/latest":
			_, _ = w.Write([]byte(`{"symbol":"AAPL","quote":{"t":"2024-04-10T14:30:00Z","bp":10.0,"ap":10.2,"bs":1,"as":3}}`))
		case "/v2/stocks/MSFT/quotes/latest":
			_, _ = w.Write([]byte(`{"symbol":"MSFT","quote":{"t":"2024-04-10T14:30:00Z","bp":0,"ap":410.5}}`))
		case "/v2/clock":
			_, _ = w.Write([]byte(`{"is_open":true}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	q, err := c.GetQuote(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, q.Bid)
	require.NotNil(t, q.Ask)
	assert.Equal(t, 10.0, *q.Bid)
	assert.Equal(t, 10.2, *q.Ask)
	assert.Nil(t, q.Last)
	ref, ok := q.Reference()
	assert.True(t, ok)
	assert.InDelta(t, 10.1, ref, 1e-9)

	q, err = c.GetQuote(ctx, "MSFT")
	require.NoError(t, err)
	assert.Nil(t, q.Bid)
	_, ok = q.Reference()
	assert.False(t, ok)

	open, err := c.IsMarketOpen(ctx)
	require.NoError(t, err)
	assert.True(t, open)

	_, err = c.GetQuote(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountPositionsAndOrders(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/account":
			_, _ = w.Write([]byte(`{"equity":"1000.50","last_equity":"1010","currency":"USD"}`))
		case r.URL.Path == "/v2/positions":
			_, _ = w.Write([]byte(`[{"symbol":"AAPL","qty":"2","market_value":"20.4"}]`))
		case r.URL.Path == "/v2/orders" && r.Method == http.MethodGet:
			assert.Equal(t, "open", r.URL.Query().Get("status"))
			_, _ = w.Write([]byte(`[` + orderJSON + `]`))
		case r.URL.Path == "/v2/orders/abc" && r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	acct, err := c.GetAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1000.50", acct["equity"])

	pos, err := c.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, "AAPL", pos[0]["symbol"])

	open, err := c.ListOpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "AAPL", open[0].Symbol)

	assert.NoError(t, c.CancelOrder(ctx, "abc"))
	assert.ErrorIs(t, c.CancelOrder(ctx, "zzz"), ErrNotFound)
}

func TestBars(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/AAPL/bars", r.URL.Path)
		assert.Equal(t, "1Day", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "desc", r.URL.Query().Get("sort"))
		assert.NotEmpty(t, r.URL.Query().Get("start"))
		_, _ = w.Write([]byte(`{"bars":[
			{"t":"2024-04-09T04:00:00Z","o":10.5,"h":12,"l":10,"c":11.5,"v":2000},
			{"t":"2024-04-08T04:00:00Z","o":10,"h":11,"l":9.5,"c":10.5,"v":1000}
		],"symbol":"AAPL"}`))
	})

	bars, err := c.Bars(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 11.5, bars[1].Close)
	assert.Equal(t, 2000.0, bars[1].Volume)
	assert.Equal(t, 8, bars[0].Time.Day())
}
