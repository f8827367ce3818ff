package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/equitytrader/journal"
	"github.com/spf13/cobra"
)

func newJournalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the order audit trail",
		Long: `Query and display audit records as org-mode blocks. Records are read from
SQLite when it is configured, otherwise from the CSV file.

Subcommands:
  list   - Most recent records
  today  - Records written today
  day    - Records written on a specific day

Examples:
  trader journal list --limit 20 --symbol AAPL
  trader journal today
  trader journal day 2024-01-15`,
	}

	var (
		limit  int
		symbol string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := a.readAudits(time.Time{}, time.Time{})
			if err != nil {
				return err
			}
			if symbol != "" {
				recs = filterSymbol(recs, symbol)
			}
			sort.SliceStable(recs, func(i, j int) bool { return recs[i].Time.After(recs[j].Time) })
			if limit > 0 && len(recs) > limit {
				recs = recs[:limit]
			}
			fmt.Fprintln(a.out, journal.FormatAuditsOrg(recs))
			return nil
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "max records")
	listCmd.Flags().StringVar(&symbol, "symbol", "", "only this symbol")

	todayCmd := &cobra.Command{
		Use:   "today",
		Short: "List records written today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := time.Local
			return a.printDay(loc, time.Now().In(loc).Format("2006-01-02"))
		},
	}

	dayCmd := &cobra.Command{
		Use:   "day <YYYY-MM-DD>",
		Short: "List records written on a specific day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printDay(time.Local, args[0])
		},
	}

	cmd.AddCommand(listCmd, todayCmd, dayCmd)
	return cmd
}

func (a *app) printDay(loc *time.Location, day string) error {
	start, end, err := dayBounds(loc, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	recs, err := a.readAudits(start, end)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, journal.FormatAuditsOrg(recs))
	return nil
}

// readAudits returns records in [start, end); zero bounds mean unbounded.
func (a *app) readAudits(start, end time.Time) ([]journal.AuditRecord, error) {
	jc := a.cfg.Journal
	if jc.Type == "sqlite" || jc.Type == "both" {
		db, err := journal.NewSQLite(jc.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		if start.IsZero() && end.IsZero() {
			return db.Recent(-1)
		}
		return db.ListBetween(start, end)
	}

	recs, err := journal.ReadCSV(jc.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("read audit csv: %w", err)
	}
	if start.IsZero() && end.IsZero() {
		return recs, nil
	}
	out := recs[:0]
	for _, r := range recs {
		if !r.Time.Before(start) && r.Time.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func filterSymbol(recs []journal.AuditRecord, symbol string) []journal.AuditRecord {
	var out []journal.AuditRecord
	for _, r := range recs {
		if strings.EqualFold(r.Symbol, symbol) {
			out = append(out, r)
		}
	}
	return out
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
