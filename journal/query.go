package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rustyeddy/agentsim/decision"
)

// GetAudit returns a single audit record by decision ID.
func (j *SQLite) GetAudit(decisionID string) (AuditRecord, error) {
	row := j.db.QueryRow(`
		SELECT symbol, decision_json, transaction_json, stored_at
		FROM audits
		WHERE decision_id = ?`, decisionID)

	rec, err := scanAudit(row.Scan)
	if err == sql.ErrNoRows {
		return AuditRecord{}, fmt.Errorf("journal: decision %q not found", decisionID)
	}
	return rec, err
}

// ListAuditsBySymbol returns a symbol's audit trail ordered by date.
func (j *SQLite) ListAuditsBySymbol(symbol string) ([]AuditRecord, error) {
	rows, err := j.db.Query(`
		SELECT symbol, decision_json, transaction_json, stored_at
		FROM audits
		WHERE symbol = ?
		ORDER BY date ASC, decision_id ASC`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityBetween returns equity snapshots with time in [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, cash, total_value, positions
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Time, &e.Cash, &e.TotalValue, &e.Positions); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanAudit(scan func(...any) error) (AuditRecord, error) {
	var (
		rec          AuditRecord
		decisionJSON string
		txnJSON      sql.NullString
	)
	if err := scan(&rec.Symbol, &decisionJSON, &txnJSON, &rec.StoredAt); err != nil {
		return AuditRecord{}, err
	}
	if err := json.Unmarshal([]byte(decisionJSON), &rec.Decision); err != nil {
		return AuditRecord{}, fmt.Errorf("journal: decode decision: %w", err)
	}
	if txnJSON.Valid {
		var txn decision.Transaction
		if err := json.Unmarshal([]byte(txnJSON.String), &txn); err != nil {
			return AuditRecord{}, fmt.Errorf("journal: decode transaction: %w", err)
		}
		rec.Transaction = &txn
	}
	return rec, nil
}
