package agent

import (
	"context"
	"errors"
	"time"
)

// Provider produces one opinion per call. Implementations wrap whatever
// actually forms the opinion (a hosted model, a rule set, a replay log);
// the engine only sees this interface.
type Provider interface {
	Generate(ctx context.Context, role Role, c Context) (Opinion, error)
}

var (
	// ErrTimeout is returned when a provider call exceeds its deadline.
	ErrTimeout = errors.New("agent: provider timeout")
	// ErrMalformedOutput is returned when a provider cannot produce content
	// in its expected shape at all (as opposed to returning content that
	// later fails payload validation).
	ErrMalformedOutput = errors.New("agent: malformed provider output")
)

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, role Role, c Context) (Opinion, error)

func (f ProviderFunc) Generate(ctx context.Context, role Role, c Context) (Opinion, error) {
	return f(ctx, role, c)
}

// RuleProvider is a deterministic, offline provider that reads the snapshot
// indicators. It exists so the engine runs end to end without any hosted
// model: RSI drives the analysts, stance scores lean conservative as RSI
// stretches. Useful as a wiring default and a baseline in comparisons.
type RuleProvider struct{}

func (RuleProvider) Generate(_ context.Context, role Role, c Context) (Opinion, error) {
	start := time.Now()
	rsi := c.Snapshot.Indicators.RSI

	op := Opinion{
		Role:      role,
		Timestamp: time.Now().UTC(),
	}

	switch role {
	case AggressiveStance, ConservativeStance, NeutralStance:
		op.Content = MarshalStanceView(stanceFromRSI(role, rsi))
		op.Confidence = 0.6
		op.Rationale = "rule: stance scored from RSI stretch"
	case BullResearcher:
		v := viewFromRSI(rsi)
		if v.Signal != Bullish {
			v = View{Signal: Neutral, Score: 0.3}
		}
		op.Content = MarshalView(v)
		op.Confidence = v.Score
		op.Rationale = "rule: bull case from momentum"
	case BearResearcher:
		v := viewFromRSI(rsi)
		if v.Signal != Bearish {
			v = View{Signal: Neutral, Score: 0.3}
		}
		op.Content = MarshalView(v)
		op.Confidence = v.Score
		op.Rationale = "rule: bear case from momentum"
	default:
		v := viewFromRSI(rsi)
		op.Content = MarshalView(v)
		op.Confidence = v.Score
		op.Rationale = "rule: signal from RSI"
	}

	op.Elapsed = time.Since(start)
	return op, nil
}

func viewFromRSI(rsi float64) View {
	switch {
	case rsi == 0: // indicator missing
		return View{Signal: Neutral, Score: 0.3}
	case rsi < 30:
		return View{Signal: Bullish, Score: 0.8, KeyPoints: []string{"oversold"}}
	case rsi > 70:
		return View{Signal: Bearish, Score: 0.8, KeyPoints: []string{"overbought"}}
	case rsi < 45:
		return View{Signal: Bullish, Score: 0.55}
	case rsi > 55:
		return View{Signal: Bearish, Score: 0.55}
	default:
		return View{Signal: Neutral, Score: 0.4}
	}
}

func stanceFromRSI(role Role, rsi float64) StanceView {
	// Stretch = distance from the RSI midpoint, 0..1.
	stretch := rsi - 50
	if stretch < 0 {
		stretch = -stretch
	}
	stretch /= 50

	switch role {
	case AggressiveStance:
		return StanceView{Score: 0.5 + 0.3*(1-stretch)}
	case ConservativeStance:
		return StanceView{Score: 0.4 + 0.5*stretch, Concerns: concernsFor(stretch)}
	default:
		return StanceView{Score: 0.5}
	}
}

func concernsFor(stretch float64) []string {
	if stretch > 0.4 {
		return []string{"momentum extended"}
	}
	return nil
}
