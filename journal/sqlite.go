package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// SaveAudit stores the scalar columns for querying plus the full decision
// and transaction as JSON.
func (j *SQLite) SaveAudit(r AuditRecord) error {
	decisionJSON, err := json.Marshal(r.Decision)
	if err != nil {
		return fmt.Errorf("journal: marshal decision %s: %w", r.Decision.ID, err)
	}

	var txnID sql.NullString
	var txnJSON sql.NullString
	if r.Transaction != nil {
		b, err := json.Marshal(r.Transaction)
		if err != nil {
			return fmt.Errorf("journal: marshal transaction %s: %w", r.Transaction.ID, err)
		}
		txnID = sql.NullString{String: r.Transaction.ID, Valid: true}
		txnJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err = j.db.Exec(`
		INSERT INTO audits
		(decision_id, symbol, date, action, quantity, confidence, status, status_reason, decision_json, transaction_id, transaction_json, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Decision.ID, r.Symbol, r.Decision.Date, string(r.Decision.Action),
		r.Decision.Quantity, r.Decision.Confidence,
		string(r.Decision.Status), r.Decision.StatusReason,
		string(decisionJSON), txnID, txnJSON, r.StoredAt,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, cash, total_value, positions)
		VALUES (?, ?, ?, ?)`,
		e.Time, e.Cash, e.TotalValue, e.Positions,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
