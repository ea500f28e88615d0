// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS audits (
	decision_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	date DATETIME NOT NULL,
	action TEXT NOT NULL,
	quantity REAL NOT NULL,
	confidence REAL NOT NULL,
	status TEXT NOT NULL,
	status_reason TEXT NOT NULL,
	decision_json TEXT NOT NULL,
	transaction_id TEXT,
	transaction_json TEXT,
	stored_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audits_symbol_date ON audits(symbol, date);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	cash REAL NOT NULL,
	total_value REAL NOT NULL,
	positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
