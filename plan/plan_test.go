package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rustyeddy/equitytrader/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plan.json")
	body := `{"orders":[
		{"symbol":"aapl","side":"BUY","qty":2},
		{"symbol":"MSFT","side":"sell","qty":1.5,"type":"limit","limit_price":410.5,"client_order_id":"mine-1"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	items, err := Load(path)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "AAPL", items[0].Symbol)
	assert.Equal(t, "buy", items[0].Side)
	assert.Equal(t, broker.Market, items[0].OrderType())
	assert.Nil(t, items[0].StopPrice)

	assert.Equal(t, broker.Limit, items[1].OrderType())
	require.NotNil(t, items[1].LimitPrice)
	assert.Equal(t, 410.5, *items[1].LimitPrice)
	assert.Equal(t, "mine-1", items[1].ClientOrderID)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plan.yaml")
	body := `
orders:
  - symbol: nvda
    side: buy
    qty: 1
    stop_price: 100
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	items, err := Load(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "NVDA", items[0].Symbol)
	require.NotNil(t, items[0].StopPrice)
	assert.Equal(t, 100.0, *items[0].StopPrice)
}

func TestParseRejectsBadItems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing symbol", `{"orders":[{"side":"buy","qty":1}]}`, "symbol is required"},
		{"bad side", `{"orders":[{"symbol":"A","side":"hold","qty":1}]}`, "side must be buy or sell"},
		{"zero qty", `{"orders":[{"symbol":"A","side":"buy","qty":0}]}`, "qty must be positive"},
		{"not json", `{`, "parse plan json"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.body), ".json")
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestNormalizeSide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"BUY", "buy"},
		{"b", "buy"},
		{" Long ", "buy"},
		{"sell", "sell"},
		{"S", "sell"},
		{"short", "sell"},
		{"hold", "hold"},
		{"", ""},
	}
	for _, tt := range tests {
		got := Item{Symbol: "a", Side: tt.in, Qty: 1}.Normalize()
		assert.Equal(t, tt.want, got.Side, tt.in)
	}

	items, err := Parse([]byte(`{"orders":[{"symbol":"aapl","side":"long","qty":1}]}`), ".json")
	require.NoError(t, err)
	assert.Equal(t, "buy", items[0].Side)
}

func TestEmptyPlan(t *testing.T) {
	t.Parallel()

	items, err := Parse([]byte(`{}`), ".json")
	require.NoError(t, err)
	assert.Empty(t, items)
}
