package risk

import "github.com/rustyeddy/agentsim/market"

// Metrics bundles everything one decision cycle needs from the analyzer.
type Metrics struct {
	Gap         GapMetrics         `json:"gap"`
	Correlation CorrelationMetrics `json:"correlation"`
	ValueAtRisk float64            `json:"value_at_risk"`
	Score       float64            `json:"score"` // composite, 0..100
	SizeFactor  float64            `json:"size_factor"`
	Advisories  []string           `json:"advisories,omitempty"`
}

// Analyzer evaluates a symbol's history against the current holdings. It
// carries only configuration and is safe for concurrent use.
type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Assess computes the full metric set for one cycle. history is the
// candidate symbol's recent snapshots (oldest first); heldReturns maps each
// held symbol, candidate included if held, to its return series.
func (a *Analyzer) Assess(history []market.Snapshot, heldReturns map[string][]float64) Metrics {
	gap := a.cfg.GapRisk(history)
	corr := a.cfg.CorrelationRisk(heldReturns)
	valueAtRisk := a.cfg.ValueAtRisk(market.Returns(history), gap)

	return Metrics{
		Gap:         gap,
		Correlation: corr,
		ValueAtRisk: valueAtRisk,
		Score:       a.cfg.Score(gap, corr),
		SizeFactor:  a.cfg.SizeAdjustment(gap, corr),
		Advisories:  a.cfg.Advisories(gap, corr, valueAtRisk),
	}
}
