package journal

import (
	"database/sql"
	"time"
)

const selectAudit = `
	SELECT time, symbol, side, qty, type, time_in_force, client_order_id,
	       status, filled_qty, avg_fill_price, order_id, order_class, stop_price, take_profit_price
	FROM audit`

// ListBetween returns records written within [start, end), oldest first.
func (j *SQLite) ListBetween(start, end time.Time) ([]AuditRecord, error) {
	rows, err := j.db.Query(selectAudit+`
	WHERE time >= ? AND time < ?
	ORDER BY time ASC, id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return scanAudit(rows)
}

// Recent returns the newest n records, newest first. A negative n returns
// every record.
func (j *SQLite) Recent(n int) ([]AuditRecord, error) {
	rows, err := j.db.Query(selectAudit+`
	ORDER BY id DESC
	LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	return scanAudit(rows)
}

// ListBySymbol returns every record for symbol, oldest first.
func (j *SQLite) ListBySymbol(symbol string) ([]AuditRecord, error) {
	rows, err := j.db.Query(selectAudit+`
	WHERE symbol = ?
	ORDER BY id ASC`, symbol)
	if err != nil {
		return nil, err
	}
	return scanAudit(rows)
}

func scanAudit(rows *sql.Rows) ([]AuditRecord, error) {
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var (
			rec           AuditRecord
			avg, stop, tp sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.Time,
			&rec.Symbol,
			&rec.Side,
			&rec.Qty,
			&rec.Type,
			&rec.TimeInForce,
			&rec.ClientOrderID,
			&rec.Status,
			&rec.FilledQty,
			&avg,
			&rec.OrderID,
			&rec.OrderClass,
			&stop,
			&tp,
		); err != nil {
			return nil, err
		}
		rec.AvgFillPrice = fromNullable(avg)
		rec.StopPrice = fromNullable(stop)
		rec.TakeProfitPrice = fromNullable(tp)
		out = append(out, rec)
	}
	return out, rows.Err()
}
