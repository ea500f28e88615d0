package market

import (
	"context"
	"errors"
	"time"
)

// ErrNotAvailable is returned by a Provider when it has no snapshot for the
// requested (symbol, date). The engine treats it as "market closed / no
// data" and skips the cycle rather than failing the run.
var ErrNotAvailable = errors.New("market: snapshot not available")

// Indicators carries the derived values a data collaborator attaches to a
// snapshot. Zero values mean "not computed".
type Indicators struct {
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	SMA20      float64 `json:"sma_20"`
	SMA50      float64 `json:"sma_50"`
	ATR        float64 `json:"atr"`
}

// Snapshot is one symbol-day of market state. Snapshots are produced by the
// data collaborator and consumed read-only; nothing in the engine mutates
// one after creation.
type Snapshot struct {
	Symbol     string     `json:"symbol"`
	Date       time.Time  `json:"date"`
	Open       float64    `json:"open"`
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Close      float64    `json:"close"`
	Volume     int64      `json:"volume"`
	Indicators Indicators `json:"indicators"`
}

// Provider supplies snapshots for the simulation. Implementations must be
// read-only and deterministic for a given (symbol, date) within one run.
type Provider interface {
	Get(ctx context.Context, symbol string, date time.Time) (Snapshot, error)
}

// DateKey is the canonical string form for a trading date.
func DateKey(t time.Time) string { return t.Format("2006-01-02") }

// Returns computes day-over-day close returns from snapshots ordered oldest
// first. Days with a non-positive previous close are skipped.
func Returns(snaps []Snapshot) []float64 {
	if len(snaps) < 2 {
		return nil
	}
	out := make([]float64, 0, len(snaps)-1)
	for i := 1; i < len(snaps); i++ {
		prev := snaps[i-1].Close
		if prev <= 0 {
			continue
		}
		out = append(out, (snaps[i].Close-prev)/prev)
	}
	return out
}

// StaticProvider serves snapshots from memory. Used by tests and by callers
// that preload a dataset.
type StaticProvider struct {
	snaps map[string]Snapshot // symbol|date -> snapshot
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{snaps: make(map[string]Snapshot)}
}

// Add registers a snapshot, replacing any previous one for the same day.
func (p *StaticProvider) Add(s Snapshot) {
	p.snaps[s.Symbol+"|"+DateKey(s.Date)] = s
}

func (p *StaticProvider) Get(_ context.Context, symbol string, date time.Time) (Snapshot, error) {
	s, ok := p.snaps[symbol+"|"+DateKey(date)]
	if !ok {
		return Snapshot{}, ErrNotAvailable
	}
	return s, nil
}
