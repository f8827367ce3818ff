// Package plan holds caller-facing trade proposals and loads them from plan files.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rustyeddy/equitytrader/broker"
	"gopkg.in/yaml.v3"
)

// Item is one trade proposal, consumed once per execution attempt.
type Item struct {
	Symbol          string   `json:"symbol" yaml:"symbol"`
	Side            string   `json:"side" yaml:"side"`
	Qty             float64  `json:"qty" yaml:"qty"`
	Type            string   `json:"type,omitempty" yaml:"type,omitempty"`
	LimitPrice      *float64 `json:"limit_price,omitempty" yaml:"limit_price,omitempty"`
	StopPrice       *float64 `json:"stop_price,omitempty" yaml:"stop_price,omitempty"`
	TakeProfitPrice *float64 `json:"take_profit_price,omitempty" yaml:"take_profit_price,omitempty"`
	ClientOrderID   string   `json:"client_order_id,omitempty" yaml:"client_order_id,omitempty"`
}

func (it Item) String() string {
	return fmt.Sprintf("%s %s %g %s", it.Symbol, it.Side, it.Qty, it.OrderType())
}

// OrderType defaults to market.
func (it Item) OrderType() broker.OrderType {
	t := strings.ToLower(strings.TrimSpace(it.Type))
	if t == "" {
		return broker.Market
	}
	return broker.OrderType(t)
}

// Normalize upper-cases the symbol, lower-cases the type and maps the side
// onto buy or sell. Sides that map to neither are left for Validate.
func (it Item) Normalize() Item {
	it.Symbol = strings.ToUpper(strings.TrimSpace(it.Symbol))
	it.Side = normalizeSide(it.Side)
	it.Type = string(it.OrderType())
	return it
}

// normalizeSide accepts anything starting with "b" or "s", plus long.
func normalizeSide(side string) string {
	side = strings.ToLower(strings.TrimSpace(side))
	switch {
	case side == "long", strings.HasPrefix(side, "b"):
		return string(broker.Buy)
	case strings.HasPrefix(side, "s"):
		return string(broker.Sell)
	}
	return side
}

func (it Item) Validate() error {
	if it.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if it.Side != string(broker.Buy) && it.Side != string(broker.Sell) {
		return fmt.Errorf("%s: side must be buy or sell, got %q", it.Symbol, it.Side)
	}
	if it.Qty <= 0 {
		return fmt.Errorf("%s: qty must be positive", it.Symbol)
	}
	return nil
}

// File is the on-disk plan layout: {"orders": [...]}.
type File struct {
	Orders []Item `json:"orders" yaml:"orders"`
}

// Load reads a plan from a JSON or YAML file (chosen by extension, JSON
// otherwise) and returns its normalized, validated items.
func Load(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

func Parse(data []byte, ext string) ([]Item, error) {
	var pf File
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("parse plan yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("parse plan json: %w", err)
		}
	}

	items := make([]Item, 0, len(pf.Orders))
	for i, it := range pf.Orders {
		it = it.Normalize()
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("plan order %d: %w", i, err)
		}
		items = append(items, it)
	}
	return items, nil
}
