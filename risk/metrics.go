// Package risk computes the per-cycle risk picture: overnight gap behavior,
// cross-position correlation, value-at-risk and the position-size
// adjustment derived from them. Everything here is a pure function of price
// history and configuration; nothing holds mutable state between cycles.
package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/rustyeddy/agentsim/market"
)

// Config holds the thresholds and sensitivities. Values are fractions
// (0.02 = 2%) unless noted.
type Config struct {
	GapThreshold       float64 `json:"gap_threshold" yaml:"gap_threshold"`
	SlippageMultiplier float64 `json:"slippage_multiplier" yaml:"slippage_multiplier"`

	VaRConfidence     float64 `json:"var_confidence" yaml:"var_confidence"`           // e.g. 0.95
	GapWideningWeight float64 `json:"gap_widening_weight" yaml:"gap_widening_weight"` // VaR widening per unit of max gap

	GapSensitivity         float64 `json:"gap_sensitivity" yaml:"gap_sensitivity"`
	CorrelationSensitivity float64 `json:"correlation_sensitivity" yaml:"correlation_sensitivity"`
	MinSizeFactor          float64 `json:"min_size_factor" yaml:"min_size_factor"` // floor on any size factor

	// Composite score weights; normalized internally.
	GapWeight           float64 `json:"gap_weight" yaml:"gap_weight"`
	CorrelationWeight   float64 `json:"correlation_weight" yaml:"correlation_weight"`
	ConcentrationWeight float64 `json:"concentration_weight" yaml:"concentration_weight"`

	HighCorrelationThreshold float64 `json:"high_correlation_threshold" yaml:"high_correlation_threshold"`
}

func DefaultConfig() Config {
	return Config{
		GapThreshold:             0.02,
		SlippageMultiplier:       0.5,
		VaRConfidence:            0.95,
		GapWideningWeight:        2.0,
		GapSensitivity:           3.0,
		CorrelationSensitivity:   0.5,
		MinSizeFactor:            0.3,
		GapWeight:                0.4,
		CorrelationWeight:        0.35,
		ConcentrationWeight:      0.25,
		HighCorrelationThreshold: 0.8,
	}
}

func (c Config) Validate() error {
	if c.GapThreshold <= 0 {
		return fmt.Errorf("risk: gap_threshold must be positive, got %v", c.GapThreshold)
	}
	if c.VaRConfidence <= 0 || c.VaRConfidence >= 1 {
		return fmt.Errorf("risk: var_confidence must be in (0,1), got %v", c.VaRConfidence)
	}
	if c.MinSizeFactor <= 0 || c.MinSizeFactor > 1 {
		return fmt.Errorf("risk: min_size_factor must be in (0,1], got %v", c.MinSizeFactor)
	}
	return nil
}

// GapMetrics describes overnight open-vs-previous-close behavior.
type GapMetrics struct {
	MaxGap             float64 `json:"max_gap"`
	MeanSignificantGap float64 `json:"mean_significant_gap"`
	Frequency          float64 `json:"frequency"` // significant days / total transitions
	ExpectedSlippage   float64 `json:"expected_slippage"`
	SignificantDays    int     `json:"significant_days"`
	TotalDays          int     `json:"total_days"`
}

// GapRisk measures gaps over snapshots ordered oldest first. TotalDays
// counts day transitions with a valid previous close.
func (c Config) GapRisk(snaps []market.Snapshot) GapMetrics {
	var m GapMetrics
	var sigSum float64

	for i := 1; i < len(snaps); i++ {
		prev := snaps[i-1].Close
		if prev <= 0 {
			continue
		}
		m.TotalDays++

		gap := math.Abs(snaps[i].Open-prev) / prev
		if gap > m.MaxGap {
			m.MaxGap = gap
		}
		if gap > c.GapThreshold {
			m.SignificantDays++
			sigSum += gap
		}
	}

	if m.SignificantDays > 0 {
		m.MeanSignificantGap = sigSum / float64(m.SignificantDays)
	}
	if m.TotalDays > 0 {
		m.Frequency = float64(m.SignificantDays) / float64(m.TotalDays)
	}
	m.ExpectedSlippage = m.MeanSignificantGap * c.SlippageMultiplier
	return m
}

// CorrelationMetrics describes how the held symbols move together.
type CorrelationMetrics struct {
	Symbols              []string    `json:"symbols"`
	Matrix               [][]float64 `json:"matrix"`
	PortfolioCorrelation float64     `json:"portfolio_correlation"` // mean off-diagonal
	MaxPairCorrelation   float64     `json:"max_pair_correlation"`
	Concentration        float64     `json:"concentration"`
	DiversificationRatio float64     `json:"diversification_ratio"`
}

// CorrelationRisk computes the pairwise picture over per-symbol return
// series. Symbols are processed in sorted order so the matrix layout is
// deterministic. An empty portfolio yields a zero value with ratio 1.
func (c Config) CorrelationRisk(returns map[string][]float64) CorrelationMetrics {
	symbols := make([]string, 0, len(returns))
	for s := range returns {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	n := len(symbols)
	m := CorrelationMetrics{Symbols: symbols, DiversificationRatio: 1}
	if n == 0 {
		return m
	}

	m.Matrix = make([][]float64, n)
	for i := range m.Matrix {
		m.Matrix[i] = make([]float64, n)
		m.Matrix[i][i] = 1
	}

	variances := make([]float64, n)
	for i, s := range symbols {
		variances[i] = variance(returns[s])
	}

	var offSum, sqSum float64
	pairs := 0
	sqSum = float64(n) // diagonal contributes n ones

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			corr := pearson(returns[symbols[i]], returns[symbols[j]])
			m.Matrix[i][j] = corr
			m.Matrix[j][i] = corr

			offSum += corr
			sqSum += 2 * corr * corr
			pairs++
			if corr > m.MaxPairCorrelation {
				m.MaxPairCorrelation = corr
			}
		}
	}

	if pairs > 0 {
		m.PortfolioCorrelation = offSum / float64(pairs)
	}
	// Σ corr² × equal weights: every cell weighted 1/n².
	m.Concentration = sqSum / float64(n*n)

	// Equal-weight portfolio variance vs mean individual variance.
	avgVar := mean(variances)
	if avgVar > 0 {
		var pv float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				cov := m.Matrix[i][j] * math.Sqrt(variances[i]) * math.Sqrt(variances[j])
				pv += cov
			}
		}
		pv /= float64(n * n)
		if pv < 0 {
			// Float noise on a perfectly hedged book.
			pv = 0
		}
		m.DiversificationRatio = math.Sqrt(pv / avgVar)
	}
	return m
}

// ValueAtRisk returns the loss percentile of the historical returns at the
// configured confidence, widened for gap exposure. Result is a positive
// fraction (0.03 = 3% one-day VaR); zero when there is no history.
func (c Config) ValueAtRisk(returns []float64, gap GapMetrics) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)

	// The (1-confidence) quantile of the return distribution.
	idx := int(math.Floor((1 - c.VaRConfidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	v := sorted[idx]
	if v > 0 {
		return 0
	}
	widening := 1 + gap.MaxGap*c.GapWideningWeight
	return -v * widening
}

// Score folds the sub-scores into a composite [0,100] risk score.
func (c Config) Score(gap GapMetrics, corr CorrelationMetrics) float64 {
	gapScore := clamp01(gap.MaxGap/0.10) * 100
	corrScore := clamp01(corr.PortfolioCorrelation) * 100
	concScore := clamp01(corr.Concentration) * 100

	wSum := c.GapWeight + c.CorrelationWeight + c.ConcentrationWeight
	if wSum <= 0 {
		return 0
	}
	score := (gapScore*c.GapWeight + corrScore*c.CorrelationWeight + concScore*c.ConcentrationWeight) / wSum
	return clamp(score, 0, 100)
}

// SizeAdjustment is the multiplicative factor applied to a base position
// size: gap factor × correlation factor × diversification bonus. Each
// dampening factor is clamp(1 − metric × sensitivity) with the configured
// floor; the product never drops below the floor either.
func (c Config) SizeAdjustment(gap GapMetrics, corr CorrelationMetrics) float64 {
	gapFactor := clamp(1-gap.MaxGap*c.GapSensitivity, c.MinSizeFactor, 1)
	corrFactor := clamp(1-corr.PortfolioCorrelation*c.CorrelationSensitivity, c.MinSizeFactor, 1)

	// Lower diversification ratio means the book diversifies better than
	// its parts; reward it with up to +20%.
	bonus := clamp(1+(1-corr.DiversificationRatio)*0.2, 1, 1.2)

	return clamp(gapFactor*corrFactor*bonus, c.MinSizeFactor, bonus)
}

// Advisories returns the deterministic human-readable warnings for the
// current metrics, in a fixed order.
func (c Config) Advisories(gap GapMetrics, corr CorrelationMetrics, valueAtRisk float64) []string {
	var out []string
	if gap.MaxGap > 2*c.GapThreshold {
		out = append(out, fmt.Sprintf("large overnight gaps detected (max %.1f%%); widen stops or reduce size", gap.MaxGap*100))
	}
	if gap.Frequency > 0.25 {
		out = append(out, fmt.Sprintf("gaps exceed threshold on %.0f%% of days; expect slippage near %.2f%%", gap.Frequency*100, gap.ExpectedSlippage*100))
	}
	if corr.MaxPairCorrelation > c.HighCorrelationThreshold {
		out = append(out, fmt.Sprintf("extremely high correlation between positions (%.2f); concentration risk", corr.MaxPairCorrelation))
	}
	if corr.DiversificationRatio > 0.9 && len(corr.Symbols) > 1 {
		out = append(out, "portfolio provides little diversification benefit")
	}
	if valueAtRisk > 0.05 {
		out = append(out, fmt.Sprintf("one-day value-at-risk %.1f%% exceeds 5%%", valueAtRisk*100))
	}
	return out
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a, b = a[:n], b[:n]

	ma, mb := mean(a), mean(b)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var s float64
	for _, x := range xs {
		d := x - m
		s += d * d
	}
	return s / float64(len(xs)-1)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func clamp01(x float64) float64 { return clamp(x, 0, 1) }
