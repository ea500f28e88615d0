package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/agentsim/decision"
)

var testDay = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(DefaultConfig(), nil)
	require.NoError(t, err)
	return m
}

func buyDecision(symbol string, qty float64) *decision.Decision {
	return &decision.Decision{
		ID:       "dec-" + symbol,
		Symbol:   symbol,
		Date:     testDay,
		Action:   decision.Buy,
		Quantity: qty,
		Kind:     decision.MarketOrder,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }, false},
		{"negative commission", func(c *Config) { c.CommissionRate = -0.1 }, false},
		{"min above max", func(c *Config) { c.MinPositionPct = 0.5 }, false},
		{"zero txn capacity", func(c *Config) { c.TransactionCapacity = 0 }, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

// A 20% allocation of 100k at price 200 with 0.1% commission and 0.1%
// slippage: 100 shares, 20 commission, 20 slippage, 20,040 total.
func TestExecute_BuyCostArithmetic(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	m.MarkPrice("AAPL", 200, testDay)

	d := buyDecision("AAPL", 0)
	d.PositionSizePct = 0.20
	d.Quantity = m.SizeFor(d, 1.0, 200)
	require.Equal(t, 100.0, d.Quantity)

	txn, err := m.Execute(context.Background(), d, 200)
	require.NoError(t, err)

	assert.InDelta(t, 20.0, txn.Commission, 1e-9)
	assert.InDelta(t, 20.0, txn.Slippage, 1e-9)
	assert.InDelta(t, 20_040.0, txn.TotalCost, 1e-9)

	st := m.Snapshot()
	assert.InDelta(t, 79_960.0, st.Cash, 1e-9)
	require.Contains(t, st.Positions, "AAPL")
	assert.Equal(t, 100.0, st.Positions["AAPL"].Quantity)
	assert.Equal(t, 200.0, st.Positions["AAPL"].EntryPrice)
}

// A rejected transaction must leave every field of the state untouched.
func TestExecute_InsufficientFundsRollsBack(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	before := m.Snapshot()

	d := buyDecision("TSLA", 10_000) // 10k shares at 100 = 1M, way past 100k
	_, err := m.Execute(context.Background(), d, 100)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	after := m.Snapshot()
	assert.Equal(t, before.Cash, after.Cash)
	assert.Empty(t, after.Positions)
	assert.Empty(t, m.Transactions())
}

func TestExecute_SellMoreThanHeld(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	d := buyDecision("MSFT", 50)
	_, err := m.Execute(context.Background(), d, 100)
	require.NoError(t, err)

	sell := &decision.Decision{
		ID:       "dec-sell",
		Symbol:   "MSFT",
		Date:     testDay,
		Action:   decision.Sell,
		Quantity: 60,
	}
	_, err = m.Execute(context.Background(), sell, 110)
	require.ErrorIs(t, err, ErrInsufficientPosition)

	// Still fully held.
	st := m.Snapshot()
	assert.Equal(t, 50.0, st.Positions["MSFT"].Quantity)
}

func TestExecute_RoundTripArchivesPosition(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	_, err := m.Execute(context.Background(), buyDecision("NVDA", 10), 500)
	require.NoError(t, err)

	sell := &decision.Decision{
		ID:       "dec-close",
		Symbol:   "NVDA",
		Date:     testDay.AddDate(0, 0, 1),
		Action:   decision.Sell,
		Quantity: 10,
	}
	txn, err := m.Execute(context.Background(), sell, 550)
	require.NoError(t, err)
	assert.Negative(t, txn.TotalCost) // proceeds credit cash

	st := m.Snapshot()
	assert.Empty(t, st.Positions)
	require.Len(t, m.Archived(), 1)
	assert.Equal(t, "NVDA", m.Archived()[0].Symbol)
	assert.Len(t, m.Transactions(), 2)
}

func TestExecute_HoldIsNotExecutable(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	d := &decision.Decision{Symbol: "AAPL", Action: decision.Hold, Quantity: 1, Date: testDay}
	_, err := m.Execute(context.Background(), d, 100)
	assert.ErrorIs(t, err, ErrNothingToExecute)
}

func TestSizeFor_ClampedToBounds(t *testing.T) {
	t.Parallel()

	m := newTestManager(t) // min 5%, max 30% of 100k
	price := 100.0

	tests := []struct {
		name    string
		pct     float64
		factor  float64
		wantQty float64
	}{
		{"nominal", 0.20, 1.0, 200},
		{"risk scaled down", 0.20, 0.5, 100},
		{"tiny request clamps up to min", 0.01, 1.0, 50},
		{"huge request clamps to max", 0.90, 1.0, 300},
		{"aggressive stance over max clamps", 0.30, 1.2, 300},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &decision.Decision{Symbol: "X", PositionSizePct: tt.pct}
			qty := m.SizeFor(d, tt.factor, price)
			assert.Equal(t, tt.wantQty, qty)

			value := qty * price
			assert.GreaterOrEqual(t, value, 0.05*100_000-price)
			assert.LessOrEqual(t, value, 0.30*100_000)
		})
	}
}

func TestCheckExits_StopWinsOverTake(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	d := buyDecision("AMD", 100)
	d.StopLossPct = 0.05
	d.TakeProfitPct = 0.10
	_, err := m.Execute(context.Background(), d, 100)
	require.NoError(t, err)

	// No breach: nothing happens.
	exits := m.CheckExits(testDay, map[string]float64{"AMD": 102})
	assert.Empty(t, exits)

	// Down 6%: stop fires and closes the whole position.
	exits = m.CheckExits(testDay.AddDate(0, 0, 1), map[string]float64{"AMD": 94})
	require.Len(t, exits, 1)
	assert.Equal(t, "StopLoss", exits[0].Reason)
	assert.Equal(t, 100.0, exits[0].Transaction.Quantity)
	assert.Equal(t, "dec-AMD", exits[0].Transaction.DecisionID)
	assert.Empty(t, m.Snapshot().Positions)
}

func TestCheckExits_TakeProfit(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	d := buyDecision("INTC", 100)
	d.TakeProfitPct = 0.10
	_, err := m.Execute(context.Background(), d, 50)
	require.NoError(t, err)

	exits := m.CheckExits(testDay, map[string]float64{"INTC": 55.5})
	require.Len(t, exits, 1)
	assert.Equal(t, "TakeProfit", exits[0].Reason)
}

// cash + Σ qty×price must equal total value after any sequence of fills.
func TestSnapshot_ValueInvariant(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Execute(ctx, buyDecision("AAA", 100), 50)
	require.NoError(t, err)
	_, err = m.Execute(ctx, buyDecision("BBB", 20), 200)
	require.NoError(t, err)

	m.MarkPrice("AAA", 60, testDay.AddDate(0, 0, 1))
	m.MarkPrice("BBB", 180, testDay.AddDate(0, 0, 1))

	st := m.Snapshot()
	want := st.Cash
	for s, p := range st.Positions {
		switch s {
		case "AAA":
			want += p.Quantity * 60
		case "BBB":
			want += p.Quantity * 180
		}
	}
	assert.InDelta(t, want, st.TotalValue, 1e-9)
	assert.GreaterOrEqual(t, st.Cash, 0.0)

	assert.Equal(t, []string{"AAA", "BBB"}, m.HeldSymbols())
}

func TestBuy_AveragesEntryPrice(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Execute(ctx, buyDecision("XYZ", 100), 10)
	require.NoError(t, err)
	_, err = m.Execute(ctx, buyDecision("XYZ", 100), 20)
	require.NoError(t, err)

	pos := m.Snapshot().Positions["XYZ"]
	assert.Equal(t, 200.0, pos.Quantity)
	assert.InDelta(t, 15.0, pos.EntryPrice, 1e-9)
}
