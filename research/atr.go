package research

import (
	"fmt"
	"math"

	"github.com/rustyeddy/equitytrader/broker"
)

// ATRPeriod is the lookback used for candidate volatility.
const ATRPeriod = 14

// ATR is a streaming Average True Range using Wilder's smoothing.
type ATR struct {
	period    int
	atr       float64
	count     int
	warmupSum float64
	prev      broker.Bar
	hasPrev   bool
}

func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.period)
}

// Warmup is the number of bars needed before Ready; the first bar only
// seeds the previous close.
func (a *ATR) Warmup() int {
	return a.period + 1
}

func (a *ATR) Update(b broker.Bar) {
	if !a.hasPrev {
		a.prev = b
		a.hasPrev = true
		return
	}

	tr := trueRange(b, a.prev)
	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
	} else {
		a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	}
	a.prev = b
}

func (a *ATR) Ready() bool {
	return a.period > 0 && a.count >= a.period
}

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

// ATRPct is the ATR over bars as a fraction of the last close, or 0 when
// there are too few bars.
func ATRPct(bars []broker.Bar, period int) float64 {
	if len(bars) == 0 {
		return 0
	}
	a := NewATR(period)
	for _, b := range bars {
		a.Update(b)
	}
	last := bars[len(bars)-1].Close
	if !a.Ready() || last <= 0 {
		return 0
	}
	return a.Value() / last
}

func trueRange(cur, prev broker.Bar) float64 {
	highLow := cur.High - cur.Low
	highClose := math.Abs(cur.High - prev.Close)
	lowClose := math.Abs(cur.Low - prev.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}
