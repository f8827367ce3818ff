package research

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/equitytrader/risk"
)

const systemPrompt = "You are a disciplined equities trading assistant."

// BuildPrompt asks for at most two ideas as strict JSON over the screened
// universe.
func BuildPrompt(symbols []string, strategy string, p *risk.Policy) string {
	var b strings.Builder
	b.WriteString("You are an equity trading assistant focused on US micro-cap momentum with strict risk controls.\n")
	b.WriteString("Given a small candidate universe, output up to 2 high-conviction trade ideas in strict JSON only.\n")
	b.WriteString("Respect constraints: avoid illiquid names, prefer tight spreads, use hard stops at entry.\n")
	fmt.Fprintf(&b, "Universe: %s\n", strings.Join(symbols, ", "))
	fmt.Fprintf(&b, "Strategy summary: %s\n", strategy)
	fmt.Fprintf(&b, "Limits: min price %.2f, max spread %.2f%%, default stop %.2f%% below entry.\n",
		p.MinPrice, 100*p.MaxSpreadPct, 100*p.DefaultStopLossPct)
	b.WriteString(`Output strict JSON with this schema:
{
  "ideas": [
    {
      "symbol": "TICKER",
      "side": "buy" | "sell",
      "entry_type": "market" | "limit",
      "entry": number | null,
      "stop": number | null,
      "take_profit": number | null,
      "confidence": number,
      "rationale": "brief reason"
    }
  ]
}
Rules:
- If side is buy, include a stop <= entry; if entry_type is market, entry can be null.
- Do not include any text outside of valid JSON. No markdown, no code fences.
`)
	return b.String()
}

// CandidateNotes lists the screened figures for each candidate.
func CandidateNotes(cs []Candidate) string {
	if len(cs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Candidates:\n")
	for _, c := range cs {
		atr := "n/a"
		if c.ATRPct > 0 {
			atr = fmt.Sprintf("%.2f%%", 100*c.ATRPct)
		}
		fmt.Fprintf(&b, "- %s close %.2f range %.2f%% atr %s\n", c.Symbol, c.Close, 100*c.SpreadProxy, atr)
	}
	return b.String()
}
