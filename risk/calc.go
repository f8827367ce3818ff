package risk

import "math"

// Epsilon floors equity before it is used as a divisor.
const Epsilon = 1e-9

func floorEquity(equity float64) float64 {
	return math.Max(equity, Epsilon)
}

// PerShareRisk is the absolute distance between the reference price and the stop.
func PerShareRisk(ref, stop float64) float64 {
	return math.Abs(ref - stop)
}

// MaxRiskAmount is the dollar amount one position may put at risk.
func MaxRiskAmount(riskPct, equity float64) float64 {
	return riskPct * floorEquity(equity)
}

// MaxQtyByRisk returns the largest quantity whose stop-out loss stays within
// riskPct of equity. It returns +Inf when perShareRisk is not positive.
func MaxQtyByRisk(riskPct, equity, perShareRisk float64) float64 {
	if perShareRisk <= 0 {
		return math.Inf(1)
	}
	return MaxRiskAmount(riskPct, equity) / perShareRisk
}

// RiskPct expresses a dollar amount as a fraction of equity.
func RiskPct(amount, equity float64) float64 {
	return amount / floorEquity(equity)
}

// SpreadPct is (ask-bid)/ask. ok is false when ask is not positive.
func SpreadPct(bid, ask float64) (pct float64, ok bool) {
	if ask <= 0 {
		return 0, false
	}
	return (ask - bid) / ask, true
}
