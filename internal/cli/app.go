package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rustyeddy/equitytrader/account"
	"github.com/rustyeddy/equitytrader/broker"
	"github.com/rustyeddy/equitytrader/broker/alpaca"
	"github.com/rustyeddy/equitytrader/broker/sim"
	"github.com/rustyeddy/equitytrader/config"
	"github.com/rustyeddy/equitytrader/execution"
	"github.com/rustyeddy/equitytrader/internal/logging"
	"github.com/rustyeddy/equitytrader/plan"
	"github.com/rustyeddy/equitytrader/research"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	rc  *RootConfig
	cfg *config.Config
	log *zap.Logger
	in  io.Reader
	out io.Writer

	ex broker.Exchange
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.rc.ConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("mode") {
		cfg.SetMode(a.rc.Mode)
	}
	if cmd.Flags().Changed("log-level") || cfg.Log.Level == "" {
		cfg.Log.Level = a.rc.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	a.cfg = cfg
	a.log = logging.New(cfg.Log)
	if cfg.ModeFallback != "" {
		a.log.Warn("unknown mode, using dry-run", zap.String("mode", cfg.ModeFallback))
	}
	a.log.Debug("config loaded",
		zap.String("mode", string(cfg.Mode)),
		zap.String("exchange", cfg.Exchange),
		zap.String("journal", cfg.Journal.Type),
	)
	return nil
}

// exchange builds the configured exchange once per process.
func (a *app) exchange() (broker.Exchange, error) {
	if a.ex != nil {
		return a.ex, nil
	}
	switch a.cfg.Exchange {
	case "alpaca":
		c, err := alpaca.New(a.cfg.Alpaca, a.log)
		if err != nil {
			return nil, err
		}
		a.log.Info("alpaca exchange", zap.Bool("paper", c.Paper()))
		a.ex = c
	case "sim":
		a.ex = newSimExchange(a.cfg.Sim)
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", a.cfg.Exchange)
	}
	return a.ex, nil
}

func newSimExchange(sc config.SimConfig) *sim.Exchange {
	ex := sim.NewExchange(sim.WithEquity(sc.Equity, sc.LastEquity))
	ex.SetMarketOpen(sc.MarketOpen)
	for sym, q := range sc.Quotes {
		quote := broker.Quote{Symbol: strings.ToUpper(sym)}
		if q.Bid > 0 {
			quote.Bid = broker.Float(q.Bid)
		}
		if q.Ask > 0 {
			quote.Ask = broker.Float(q.Ask)
		}
		if q.Last > 0 {
			quote.Last = broker.Float(q.Last)
		}
		ex.SetQuote(quote)
	}
	return ex
}

func (a *app) barSource(ex broker.Exchange) (research.BarSource, error) {
	src, ok := ex.(research.BarSource)
	if !ok {
		return nil, fmt.Errorf("exchange %s has no bar data", a.cfg.Exchange)
	}
	return src, nil
}

func (a *app) researcher(ex broker.Exchange) (*research.Researcher, error) {
	bars, err := a.barSource(ex)
	if err != nil {
		return nil, err
	}
	gen, err := research.NewOpenAIGenerator(a.cfg.OpenAI, a.log)
	if err != nil {
		return nil, err
	}
	return &research.Researcher{
		Gen:     gen,
		Bars:    bars,
		Policy:  &a.cfg.Risk,
		LogPath: a.cfg.Research.LogPath,
		Log:     a.log,
	}, nil
}

func (a *app) confirm(n int) bool {
	fmt.Fprintf(a.out, "About to submit %d orders. Continue? [y/N]: ", n)
	line, _ := bufio.NewReader(a.in).ReadString('\n')
	return strings.ToLower(strings.TrimSpace(line)) == "y"
}

func (a *app) printDryRun(items []plan.Item) {
	for _, it := range items {
		fmt.Fprintf(a.out, "[DRY-RUN] Would place: %s %s %g %s\n", it.Symbol, it.Side, it.Qty, it.OrderType())
	}
}

// execute runs items against the exchange and prints one line per item.
// Item failures are reported, not returned; only cancellation is an error.
func (a *app) execute(ctx context.Context, items []plan.Item) error {
	if a.cfg.Mode == config.DryRun {
		a.printDryRun(items)
		return nil
	}

	ex, err := a.exchange()
	if err != nil {
		return err
	}
	j, err := a.cfg.Journal.Open()
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	opts := []execution.Option{
		execution.WithJournal(j),
		execution.WithLogger(a.log),
		execution.WithClientIDPrefix(a.cfg.Execution.ClientIDPrefix),
	}
	if n := a.cfg.Execution.SubmitAttempts; n > 0 {
		opts = append(opts, execution.WithRetry(n, execution.DefaultBackoffMin, execution.DefaultBackoffMax))
	}
	if n := a.cfg.Execution.MaxPolls; n > 0 {
		opts = append(opts, execution.WithPolling(n, execution.DefaultPollInterval))
	}
	exec := execution.New(ex, &a.cfg.Risk, opts...)
	src := &account.Source{Exchange: ex, Policy: &a.cfg.Risk}

	results, err := exec.RunBatch(ctx, items, src)
	for _, res := range results {
		if res == nil || res.Response.ID == "" {
			continue
		}
		r := res.Response
		fmt.Fprintf(a.out, "Order: %s %s status=%s filled=%g avg=%s\n",
			r.Symbol, r.Side, r.Status, r.FilledQty, formatPrice(r.AvgFillPrice))
	}
	for _, e := range multierr.Errors(err) {
		fmt.Fprintf(a.out, "Failed to place order for %v\n", e)
	}
	return ctx.Err()
}

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *p)
}
