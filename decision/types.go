// Package decision defines the trading decision produced once per
// (symbol, date) cycle and the orchestrator that produces it.
package decision

import (
	"time"

	"github.com/rustyeddy/agentsim/agent"
	"github.com/rustyeddy/agentsim/risk"
)

// Action is what the pipeline wants done.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// OrderKind is how a fill is modeled. The simulator fills everything as a
// market order at the day's close; the field is carried for the audit trail.
type OrderKind string

const (
	MarketOrder OrderKind = "MARKET"
)

// Stance is the risk posture chosen by the risk-discussion phase.
type Stance string

const (
	Aggressive   Stance = "AGGRESSIVE"
	Neutral      Stance = "NEUTRAL"
	Conservative Stance = "CONSERVATIVE"
)

// SizeMultiplier scales the provisional position size by posture.
func (s Stance) SizeMultiplier() float64 {
	switch s {
	case Aggressive:
		return 1.2
	case Conservative:
		return 0.6
	default:
		return 1.0
	}
}

// Assessment is the outcome of the risk-discussion phase.
type Assessment struct {
	Stance            Stance       `json:"stance"`
	AggressiveScore   float64      `json:"aggressive_score"`
	ConservativeScore float64      `json:"conservative_score"`
	NeutralScore      float64      `json:"neutral_score"`
	KeyRisks          []string     `json:"key_risks,omitempty"`
	Metrics           risk.Metrics `json:"metrics"`
}

// Status records what became of a decision once it reached the portfolio.
type Status string

const (
	StatusProposed Status = "proposed"
	StatusFilled   Status = "filled"
	StatusRejected Status = "rejected"
	StatusSkipped  Status = "skipped" // HOLD, nothing to execute
)

// Decision is the immutable product of one cycle. Quantity zero means
// "size determined downstream" by the position manager.
type Decision struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Date      time.Time `json:"date"`

	Action     Action    `json:"action"`
	Quantity   float64   `json:"quantity"`
	Kind       OrderKind `json:"kind"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale"`

	PositionSizePct float64 `json:"position_size_pct"`
	StopLossPct     float64 `json:"stop_loss_pct"`
	TakeProfitPct   float64 `json:"take_profit_pct"`

	Risk     Assessment      `json:"risk"`
	Opinions []agent.Opinion `json:"opinions,omitempty"`

	Status       Status `json:"status"`
	StatusReason string `json:"status_reason,omitempty"`
}

// Transaction is one committed (or synthesized forced-exit) fill.
// Append-only; owned by the position manager.
type Transaction struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Quantity   float64   `json:"quantity"`
	FillPrice  float64   `json:"fill_price"`
	Commission float64   `json:"commission"`
	Slippage   float64   `json:"slippage"`
	TotalCost  float64   `json:"total_cost"` // signed: positive consumes cash
	DecisionID string    `json:"decision_id"`
	Reason     string    `json:"reason,omitempty"` // StopLoss / TakeProfit for forced exits
}
