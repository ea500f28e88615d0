// journal/csv.go
package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// CSVJournal writes the audit trail and equity curve as two flat files,
// one row per record. It keeps only the scalar decision fields; use the
// SQLite journal when the full opinion payloads matter.
type CSVJournal struct {
	audits *csv.Writer
	equity *csv.Writer
	af, ef *os.File
}

func NewCSV(auditsPath, equityPath string) (*CSVJournal, error) {
	af, err := os.Create(auditsPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		af.Close()
		return nil, err
	}

	aw := csv.NewWriter(af)
	ew := csv.NewWriter(ef)

	if err := aw.Write([]string{"decision_id", "symbol", "date", "action", "quantity", "confidence", "status", "status_reason", "transaction_id", "fill_price", "total_cost", "stored_at"}); err != nil {
		return nil, err
	}
	if err := ew.Write([]string{"time", "cash", "total_value", "positions"}); err != nil {
		return nil, err
	}

	aw.Flush()
	if err := aw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{aw, ew, af, ef}, nil
}

func (j *CSVJournal) SaveAudit(r AuditRecord) error {
	txnID, fill, total := "", "", ""
	if r.Transaction != nil {
		txnID = r.Transaction.ID
		fill = f(r.Transaction.FillPrice)
		total = f(r.Transaction.TotalCost)
	}

	err := j.audits.Write([]string{
		r.Decision.ID,
		r.Symbol,
		r.Decision.Date.Format(time.RFC3339),
		string(r.Decision.Action),
		f(r.Decision.Quantity),
		f(r.Decision.Confidence),
		string(r.Decision.Status),
		r.Decision.StatusReason,
		txnID,
		fill,
		total,
		r.StoredAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	j.audits.Flush()
	return j.audits.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Cash),
		f(e.TotalValue),
		strconv.Itoa(e.Positions),
	})
	if err != nil {
		return err
	}

	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.audits.Flush()
	if err := j.audits.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.af.Close(); err != nil {
		return err
	}
	if err := j.ef.Close(); err != nil {
		return err
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
