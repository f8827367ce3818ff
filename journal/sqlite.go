package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite keeps the audit trail in an insert-only table.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) Record(r AuditRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO audit
		(schema_version, time, symbol, side, qty, type, time_in_force, client_order_id,
		 status, filled_qty, avg_fill_price, order_id, order_class, stop_price, take_profit_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		SchemaVersion, r.Time.UTC(), r.Symbol, r.Side, r.Qty, r.Type, r.TimeInForce, r.ClientOrderID,
		r.Status, r.FilledQty, nullable(r.AvgFillPrice), r.OrderID, r.OrderClass,
		nullable(r.StopPrice), nullable(r.TakeProfitPrice),
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	x := v.Float64
	return &x
}
