package backtest

import (
	"time"

	"github.com/rustyeddy/agentsim/decision"
	"github.com/rustyeddy/agentsim/journal"
	"github.com/rustyeddy/agentsim/portfolio"
	"github.com/rustyeddy/agentsim/risk"
)

// Result is everything a run produced: the final book, the ordered
// transaction history, the per-cycle decision audit, the risk picture each
// cycle saw, and the equity curve. Downstream metrics stages (Sharpe,
// drawdown, win rate) consume this; they live outside the engine.
type Result struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	TradingDays int  `json:"trading_days"`
	Cancelled   bool `json:"cancelled,omitempty"`

	FinalState    portfolio.State          `json:"final_state"`
	Transactions  []decision.Transaction   `json:"transactions"`
	Decisions     []decision.Decision      `json:"decisions"`
	RiskSnapshots []risk.Metrics           `json:"risk_snapshots,omitempty"`
	Equity        []journal.EquitySnapshot `json:"equity"`
}

// Return is the whole-run fractional return against the initial value.
func (r Result) Return(initialCapital float64) float64 {
	if initialCapital <= 0 {
		return 0
	}
	return (r.FinalState.TotalValue - initialCapital) / initialCapital
}

// Filled counts decisions that resulted in a committed transaction.
func (r Result) Filled() int {
	n := 0
	for _, d := range r.Decisions {
		if d.Status == decision.StatusFilled {
			n++
		}
	}
	return n
}
