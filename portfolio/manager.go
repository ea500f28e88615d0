// Package portfolio owns all mutable portfolio state. Every mutation goes
// through Manager under one mutex; everything else sees immutable
// snapshots, so decision cycles may run concurrently while fills stay
// serialized.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/agentsim/decision"
	"github.com/rustyeddy/agentsim/pkg/id"
	"github.com/rustyeddy/agentsim/pkg/ring"
)

var (
	// ErrInsufficientFunds rejects a BUY whose total cost exceeds cash.
	ErrInsufficientFunds = errors.New("portfolio: insufficient funds")
	// ErrInsufficientPosition rejects a SELL of more than is held.
	ErrInsufficientPosition = errors.New("portfolio: insufficient position")
	// ErrNothingToExecute rejects decisions with no executable quantity.
	ErrNothingToExecute = errors.New("portfolio: nothing to execute")
)

// Position is one open holding. Unrealized P&L is always computed from a
// current price, never stored.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entry_price"` // volume-weighted average
	EntryDate     time.Time `json:"entry_date"`
	StopLossPct   float64   `json:"stop_loss_pct"`
	TakeProfitPct float64   `json:"take_profit_pct"`
	DecisionID    string    `json:"decision_id"`
}

// UnrealizedPL is the open P&L at price.
func (p Position) UnrealizedPL(price float64) float64 {
	return p.Quantity * (price - p.EntryPrice)
}

// UnrealizedReturn is the fractional return at price.
func (p Position) UnrealizedReturn(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// State is an immutable portfolio snapshot handed to readers.
type State struct {
	Cash       float64             `json:"cash"`
	Positions  map[string]Position `json:"positions"`
	TotalValue float64             `json:"total_value"`
	Time       time.Time           `json:"time"`
}

// Config sizes and prices the book.
type Config struct {
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
	CommissionRate float64 `json:"commission_rate" yaml:"commission_rate"`
	SlippageRate   float64 `json:"slippage_rate" yaml:"slippage_rate"`

	// Per-position bounds as fractions of total value.
	MinPositionPct float64 `json:"min_position_pct" yaml:"min_position_pct"`
	MaxPositionPct float64 `json:"max_position_pct" yaml:"max_position_pct"`

	// Capacity of the append-only transaction history.
	TransactionCapacity int `json:"transaction_capacity" yaml:"transaction_capacity"`
}

func DefaultConfig() Config {
	return Config{
		InitialCapital:      100_000,
		CommissionRate:      0.001,
		SlippageRate:        0.001,
		MinPositionPct:      0.05,
		MaxPositionPct:      0.30,
		TransactionCapacity: 10_000,
	}
}

func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("portfolio: initial_capital must be positive, got %v", c.InitialCapital)
	}
	if c.CommissionRate < 0 || c.SlippageRate < 0 {
		return fmt.Errorf("portfolio: commission/slippage rates must be >= 0")
	}
	if c.MinPositionPct < 0 || c.MaxPositionPct <= 0 || c.MinPositionPct > c.MaxPositionPct {
		return fmt.Errorf("portfolio: position bounds invalid: min %v max %v", c.MinPositionPct, c.MaxPositionPct)
	}
	if c.TransactionCapacity <= 0 {
		return fmt.Errorf("portfolio: transaction_capacity must be positive, got %d", c.TransactionCapacity)
	}
	return nil
}

// Manager is the exclusive owner of cash, positions and the transaction
// log.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	cash       float64
	positions  map[string]*Position
	archived   []Position
	lastPrices map[string]float64
	txns       *ring.Buffer[decision.Transaction]
	asOf       time.Time
	log        *zap.Logger
}

func NewManager(cfg Config, log *zap.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	txns, err := ring.New[decision.Transaction](cfg.TransactionCapacity)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:        cfg,
		cash:       cfg.InitialCapital,
		positions:  make(map[string]*Position),
		lastPrices: make(map[string]float64),
		txns:       txns,
		log:        log,
	}, nil
}

// MarkPrice records the latest valuation price for symbol.
func (m *Manager) MarkPrice(symbol string, price float64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPrices[symbol] = price
	if at.After(m.asOf) {
		m.asOf = at
	}
}

// Execute atomically applies a BUY or SELL decision at fill price. All
// validation happens before any mutation, so a rejected transaction leaves
// the state untouched. Business-rule failures come back as typed errors.
func (m *Manager) Execute(_ context.Context, d *decision.Decision, fill float64) (decision.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fill <= 0 {
		return decision.Transaction{}, fmt.Errorf("%w: fill price %v", ErrNothingToExecute, fill)
	}
	qty := d.Quantity
	if qty <= 0 || d.Action == decision.Hold {
		return decision.Transaction{}, fmt.Errorf("%w: %s qty %v", ErrNothingToExecute, d.Action, qty)
	}

	gross := qty * fill
	commission := gross * m.cfg.CommissionRate
	slippage := gross * m.cfg.SlippageRate

	txn := decision.Transaction{
		ID:         id.New(),
		Time:       d.Date,
		Symbol:     d.Symbol,
		Action:     d.Action,
		Quantity:   qty,
		FillPrice:  fill,
		Commission: commission,
		Slippage:   slippage,
		DecisionID: d.ID,
	}

	switch d.Action {
	case decision.Buy:
		txn.TotalCost = gross + commission + slippage
		if txn.TotalCost > m.cash {
			return decision.Transaction{}, fmt.Errorf("%w: need %.2f, have %.2f",
				ErrInsufficientFunds, txn.TotalCost, m.cash)
		}
		m.cash -= txn.TotalCost
		m.applyBuyLocked(d, qty, fill)

	case decision.Sell:
		pos, ok := m.positions[d.Symbol]
		if !ok || pos.Quantity < qty {
			held := 0.0
			if ok {
				held = pos.Quantity
			}
			return decision.Transaction{}, fmt.Errorf("%w: want %.4f, hold %.4f",
				ErrInsufficientPosition, qty, held)
		}
		proceeds := gross - commission - slippage
		txn.TotalCost = -proceeds
		m.cash += proceeds
		m.applySellLocked(pos, qty)

	default:
		return decision.Transaction{}, fmt.Errorf("%w: action %q", ErrNothingToExecute, d.Action)
	}

	m.lastPrices[d.Symbol] = fill
	if d.Date.After(m.asOf) {
		m.asOf = d.Date
	}
	m.txns.Append(txn)

	m.log.Info("transaction committed",
		zap.String("symbol", txn.Symbol),
		zap.String("action", string(txn.Action)),
		zap.Float64("quantity", txn.Quantity),
		zap.Float64("fill", txn.FillPrice),
		zap.Float64("cash", m.cash))

	return txn, nil
}

func (m *Manager) applyBuyLocked(d *decision.Decision, qty, fill float64) {
	pos, ok := m.positions[d.Symbol]
	if !ok {
		m.positions[d.Symbol] = &Position{
			Symbol:        d.Symbol,
			Quantity:      qty,
			EntryPrice:    fill,
			EntryDate:     d.Date,
			StopLossPct:   d.StopLossPct,
			TakeProfitPct: d.TakeProfitPct,
			DecisionID:    d.ID,
		}
		return
	}
	// Average in; the newest decision's exit levels govern the position.
	total := pos.Quantity + qty
	pos.EntryPrice = (pos.EntryPrice*pos.Quantity + fill*qty) / total
	pos.Quantity = total
	pos.StopLossPct = d.StopLossPct
	pos.TakeProfitPct = d.TakeProfitPct
	pos.DecisionID = d.ID
}

func (m *Manager) applySellLocked(pos *Position, qty float64) {
	pos.Quantity -= qty
	if pos.Quantity <= 1e-9 {
		archived := *pos
		archived.Quantity = 0
		m.archived = append(m.archived, archived)
		delete(m.positions, pos.Symbol)
	}
}

// SizeFor converts a decision's position_size_pct into a whole-share
// quantity: pct × total value / price, scaled by the risk factor, then
// clamped so the resulting notional stays inside the configured
// [min, max] share of the portfolio.
func (m *Manager) SizeFor(d *decision.Decision, riskFactor, price float64) float64 {
	if price <= 0 {
		return 0
	}

	m.mu.Lock()
	total := m.totalValueLocked()
	m.mu.Unlock()
	if total <= 0 {
		return 0
	}

	notional := d.PositionSizePct * total * riskFactor
	if min := m.cfg.MinPositionPct * total; notional < min {
		notional = min
	}
	if max := m.cfg.MaxPositionPct * total; notional > max {
		notional = max
	}

	return math.Floor(notional / price)
}

// ForcedExit is a stop-loss or take-profit closure synthesized by
// CheckExits.
type ForcedExit struct {
	Transaction decision.Transaction
	Reason      string // "StopLoss" or "TakeProfit"
}

// CheckExits sweeps every open position against prices, closing in full
// any whose unrealized return breaches its stop or take level. When both
// would trigger the stop wins.
func (m *Manager) CheckExits(at time.Time, prices map[string]float64) []ForcedExit {
	m.mu.Lock()
	defer m.mu.Unlock()

	symbols := make([]string, 0, len(m.positions))
	for s := range m.positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var exits []ForcedExit
	for _, sym := range symbols {
		pos := m.positions[sym]
		price, ok := prices[sym]
		if !ok || price <= 0 {
			continue
		}

		ret := pos.UnrealizedReturn(price)
		reason := ""
		switch {
		case pos.StopLossPct > 0 && ret <= -pos.StopLossPct:
			reason = "StopLoss"
		case pos.TakeProfitPct > 0 && ret >= pos.TakeProfitPct:
			reason = "TakeProfit"
		}
		if reason == "" {
			continue
		}

		qty := pos.Quantity
		gross := qty * price
		commission := gross * m.cfg.CommissionRate
		slippage := gross * m.cfg.SlippageRate
		proceeds := gross - commission - slippage

		txn := decision.Transaction{
			ID:         id.New(),
			Time:       at,
			Symbol:     sym,
			Action:     decision.Sell,
			Quantity:   qty,
			FillPrice:  price,
			Commission: commission,
			Slippage:   slippage,
			TotalCost:  -proceeds,
			DecisionID: pos.DecisionID,
			Reason:     reason,
		}

		m.cash += proceeds
		m.applySellLocked(pos, qty)
		m.lastPrices[sym] = price
		if at.After(m.asOf) {
			m.asOf = at
		}
		m.txns.Append(txn)

		m.log.Info("forced exit",
			zap.String("symbol", sym),
			zap.String("reason", reason),
			zap.Float64("return", ret))

		exits = append(exits, ForcedExit{Transaction: txn, Reason: reason})
	}
	return exits
}

// Snapshot returns an immutable copy of the current state, valued at the
// last marked prices.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	positions := make(map[string]Position, len(m.positions))
	for s, p := range m.positions {
		positions[s] = *p
	}
	return State{
		Cash:       m.cash,
		Positions:  positions,
		TotalValue: m.totalValueLocked(),
		Time:       m.asOf,
	}
}

func (m *Manager) totalValueLocked() float64 {
	total := m.cash
	for s, p := range m.positions {
		price, ok := m.lastPrices[s]
		if !ok {
			price = p.EntryPrice
		}
		total += p.Quantity * price
	}
	return total
}

// HeldSymbols lists open positions in sorted order.
func (m *Manager) HeldSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.positions))
	for s := range m.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Transactions returns the retained transaction history, oldest first.
func (m *Manager) Transactions() []decision.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txns.All()
}

// Archived returns positions that have been fully closed.
func (m *Manager) Archived() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Position(nil), m.archived...)
}
