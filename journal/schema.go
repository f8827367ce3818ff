package journal

const Schema = `
CREATE TABLE IF NOT EXISTS audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	schema_version INTEGER NOT NULL,
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	qty REAL NOT NULL,
	type TEXT NOT NULL,
	time_in_force TEXT NOT NULL,
	client_order_id TEXT NOT NULL,
	status TEXT NOT NULL,
	filled_qty REAL NOT NULL,
	avg_fill_price REAL,
	order_id TEXT NOT NULL,
	order_class TEXT NOT NULL,
	stop_price REAL,
	take_profit_price REAL
);

CREATE INDEX IF NOT EXISTS idx_audit_time ON audit(time);
CREATE INDEX IF NOT EXISTS idx_audit_symbol ON audit(symbol);
`
