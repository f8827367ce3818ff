package research

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rustyeddy/equitytrader/broker"
	"github.com/rustyeddy/equitytrader/plan"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const ideasSchema = `{
	"type": "object",
	"required": ["ideas"],
	"properties": {
		"ideas": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["symbol", "side"],
				"properties": {
					"symbol": {"type": "string", "minLength": 1},
					"side": {"type": "string", "pattern": "^(?i:buy|sell)$"},
					"entry_type": {"type": "string", "pattern": "^(?i:market|limit)$"},
					"entry": {"type": ["number", "null"]},
					"stop": {"type": ["number", "null"]},
					"take_profit": {"type": ["number", "null"]},
					"confidence": {"type": "number"},
					"rationale": {"type": "string"}
				}
			}
		}
	}
}`

var ideasValidator = jsonschema.MustCompileString("ideas.json", ideasSchema)

// Idea is one model suggestion.
type Idea struct {
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	EntryType  string   `json:"entry_type"`
	Entry      *float64 `json:"entry"`
	Stop       *float64 `json:"stop"`
	TakeProfit *float64 `json:"take_profit"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

// ParseIdeas validates the model reply against the ideas schema and
// normalizes case. A reply wrapped in a markdown code fence is unwrapped.
func ParseIdeas(content string) ([]Idea, error) {
	content = stripFence(content)

	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parse ideas: %w", err)
	}
	if err := ideasValidator.Validate(raw); err != nil {
		return nil, fmt.Errorf("ideas do not match schema: %w", err)
	}

	var doc struct {
		Ideas []Idea `json:"ideas"`
	}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("parse ideas: %w", err)
	}
	for i := range doc.Ideas {
		it := &doc.Ideas[i]
		it.Symbol = strings.ToUpper(strings.TrimSpace(it.Symbol))
		it.Side = strings.ToLower(it.Side)
		it.EntryType = strings.ToLower(it.EntryType)
		if it.EntryType == "" {
			it.EntryType = string(broker.Market)
		}
	}
	return doc.Ideas, nil
}

// IdeasToPlans makes one unit-quantity item per idea. A limit idea without
// an entry price becomes a market order.
func IdeasToPlans(ideas []Idea) []plan.Item {
	items := make([]plan.Item, 0, len(ideas))
	for _, idea := range ideas {
		it := plan.Item{
			Symbol:          idea.Symbol,
			Side:            idea.Side,
			Qty:             1,
			Type:            string(broker.Market),
			StopPrice:       idea.Stop,
			TakeProfitPrice: idea.TakeProfit,
		}
		if idea.EntryType == string(broker.Limit) && idea.Entry != nil {
			it.Type = string(broker.Limit)
			it.LimitPrice = idea.Entry
		}
		items = append(items, it)
	}
	return items
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
