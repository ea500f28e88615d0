package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/agentsim/decision"
)

func TestListAuditsBySymbolOrdered(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"D1", "D2", "D3"} {
		rec := testAudit()
		rec.Decision.ID = id
		rec.Decision.Date = base.AddDate(0, 0, i)
		rec.Transaction = nil
		assert.NoError(t, j.SaveAudit(rec))
	}

	// A second symbol must not leak into the listing.
	other := testAudit()
	other.Symbol = "MSFT"
	other.Decision.ID = "D4"
	other.Decision.Symbol = "MSFT"
	other.Transaction = nil
	assert.NoError(t, j.SaveAudit(other))

	got, err := j.ListAuditsBySymbol("AAPL")
	assert.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "D1", got[0].Decision.ID)
	assert.Equal(t, "D3", got[2].Decision.ID)
	for _, r := range got {
		assert.Equal(t, "AAPL", r.Symbol)
	}
}

func TestMemoryJournal(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	rec := testAudit()
	assert.NoError(t, m.SaveAudit(rec))
	assert.NoError(t, m.RecordEquity(EquitySnapshot{Cash: 100, TotalValue: 100}))
	assert.NoError(t, m.Close())

	assert.Len(t, m.Audits(), 1)
	assert.Equal(t, decision.Buy, m.Audits()[0].Decision.Action)
	assert.Len(t, m.Equity(), 1)
}
