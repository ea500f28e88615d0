// journal/journal.go
package journal

import (
	"sync"
	"time"

	"github.com/rustyeddy/agentsim/decision"
)

// AuditRecord is one appended entry of the per-symbol audit trail: the
// decision a cycle produced and the transaction it caused, if any.
type AuditRecord struct {
	Symbol      string
	Decision    decision.Decision
	Transaction *decision.Transaction
	StoredAt    time.Time
}

// EquitySnapshot is the end-of-day portfolio valuation.
type EquitySnapshot struct {
	Time       time.Time
	Cash       float64
	TotalValue float64
	Positions  int
}

type Journal interface {
	SaveAudit(AuditRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Memory keeps everything in slices. Used by tests and by runs that do not
// need persistence.
type Memory struct {
	mu     sync.Mutex
	audits []AuditRecord
	equity []EquitySnapshot
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) SaveAudit(r AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, r)
	return nil
}

func (m *Memory) RecordEquity(e EquitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = append(m.equity, e)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Audits() []AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditRecord(nil), m.audits...)
}

func (m *Memory) Equity() []EquitySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EquitySnapshot(nil), m.equity...)
}
