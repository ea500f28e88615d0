package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/agentsim/decision"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	assert.NoError(t, err)

	return j, path
}

func testAudit() AuditRecord {
	date := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	txn := decision.Transaction{
		ID:         "T1",
		Time:       date,
		Symbol:     "AAPL",
		Action:     decision.Buy,
		Quantity:   100,
		FillPrice:  200,
		Commission: 20,
		Slippage:   20,
		TotalCost:  20040,
		DecisionID: "D1",
	}
	return AuditRecord{
		Symbol: "AAPL",
		Decision: decision.Decision{
			ID:         "D1",
			Symbol:     "AAPL",
			Date:       date,
			Action:     decision.Buy,
			Quantity:   100,
			Confidence: 0.675,
			Status:     decision.StatusFilled,
		},
		Transaction: &txn,
		StoredAt:    date.Add(time.Hour),
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('audits','equity')`)
	assert.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["audits"])
	assert.True(t, found["equity"])
}

func TestSQLiteSaveAudit(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	rec := testAudit()
	assert.NoError(t, j.SaveAudit(rec))

	got, err := j.GetAudit("D1")
	assert.NoError(t, err)

	assert.Equal(t, rec.Symbol, got.Symbol)
	assert.Equal(t, rec.Decision.ID, got.Decision.ID)
	assert.Equal(t, rec.Decision.Action, got.Decision.Action)
	assert.InDelta(t, rec.Decision.Confidence, got.Decision.Confidence, 1e-9)
	assert.NotNil(t, got.Transaction)
	assert.Equal(t, "T1", got.Transaction.ID)
	assert.InDelta(t, 20040.0, got.Transaction.TotalCost, 1e-6)
	assert.True(t, got.StoredAt.Equal(rec.StoredAt))
}

func TestSQLiteSaveAuditWithoutTransaction(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	rec := testAudit()
	rec.Decision.ID = "D2"
	rec.Decision.Action = decision.Hold
	rec.Decision.Status = decision.StatusSkipped
	rec.Transaction = nil
	assert.NoError(t, j.SaveAudit(rec))

	got, err := j.GetAudit("D2")
	assert.NoError(t, err)
	assert.Nil(t, got.Transaction)
	assert.Equal(t, decision.StatusSkipped, got.Decision.Status)
}

func TestSQLiteGetAuditNotFound(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	_, err := j.GetAudit("nope")
	assert.Error(t, err)
}

func TestSQLiteRecordEquity(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	ts := time.Date(2024, 6, 3, 21, 0, 0, 0, time.UTC)
	rec := EquitySnapshot{Time: ts, Cash: 79960, TotalValue: 99960, Positions: 1}
	assert.NoError(t, j.RecordEquity(rec))

	got, err := j.ListEquityBetween(ts.Add(-time.Hour), ts.Add(time.Hour))
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.True(t, got[0].Time.Equal(ts))
	assert.InDelta(t, rec.Cash, got[0].Cash, 1e-6)
	assert.InDelta(t, rec.TotalValue, got[0].TotalValue, 1e-6)
	assert.Equal(t, 1, got[0].Positions)
}
