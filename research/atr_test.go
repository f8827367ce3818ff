package research

import (
	"testing"

	"github.com/rustyeddy/equitytrader/broker"
	"github.com/stretchr/testify/assert"
)

func TestATRWilderSmoothing(t *testing.T) {
	t.Parallel()

	bars := []broker.Bar{
		{High: 10, Low: 10, Close: 10},
		{High: 11, Low: 9, Close: 10},    // TR 2
		{High: 10.5, Low: 10, Close: 10}, // TR 0.5
		{High: 13, Low: 10, Close: 12},   // TR 3
	}

	a := NewATR(2)
	assert.Equal(t, "ATR(2)", a.Name())
	assert.Equal(t, 3, a.Warmup())

	a.Update(bars[0])
	a.Update(bars[1])
	assert.False(t, a.Ready())
	assert.Equal(t, 0.0, a.Value())

	a.Update(bars[2])
	assert.True(t, a.Ready())
	assert.InDelta(t, 1.25, a.Value(), 1e-9)

	a.Update(bars[3])
	assert.InDelta(t, 2.125, a.Value(), 1e-9)

	assert.InDelta(t, 2.125/12, ATRPct(bars, 2), 1e-9)
	assert.Equal(t, 0.0, ATRPct(bars[:2], 2))
	assert.Equal(t, 0.0, ATRPct(nil, 2))
}
