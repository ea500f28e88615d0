package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rustyeddy/agentsim/market"
)

// Role identifies which seat in the pipeline produced an opinion. Roles
// double as circuit-breaker channels and cache-key components, so their
// string values are stable.
type Role string

const (
	TechnicalAnalyst    Role = "technical_analyst"
	SentimentAnalyst    Role = "sentiment_analyst"
	NewsAnalyst         Role = "news_analyst"
	FundamentalsAnalyst Role = "fundamentals_analyst"

	BullResearcher Role = "bull_researcher"
	BearResearcher Role = "bear_researcher"

	AggressiveStance   Role = "aggressive_stance"
	ConservativeStance Role = "conservative_stance"
	NeutralStance      Role = "neutral_stance"
)

// AnalystRoles are the phase-2 fan-out seats.
func AnalystRoles() []Role {
	return []Role{TechnicalAnalyst, SentimentAnalyst, NewsAnalyst, FundamentalsAnalyst}
}

// StanceRoles are the phase-4 fan-out seats.
func StanceRoles() []Role {
	return []Role{AggressiveStance, ConservativeStance, NeutralStance}
}

// Signal is an analyst's directional read.
type Signal string

const (
	Bullish Signal = "BULLISH"
	Bearish Signal = "BEARISH"
	Neutral Signal = "NEUTRAL"
)

// Context is the market state handed to a provider for one call. It is
// read-only by convention; providers must not retain or mutate it.
type Context struct {
	Symbol   string            `json:"symbol"`
	Date     time.Time         `json:"date"`
	Snapshot market.Snapshot   `json:"snapshot"`
	History  []market.Snapshot `json:"history,omitempty"`

	// Later phases feed earlier output back in as plain text so providers
	// stay payload-agnostic.
	Briefing string `json:"briefing,omitempty"`
}

// Opinion is one provider response. Created once per invocation, never
// mutated afterwards.
type Opinion struct {
	Role       Role            `json:"role"`
	Timestamp  time.Time       `json:"timestamp"`
	Content    json.RawMessage `json:"content"`
	Confidence float64         `json:"confidence"`
	Rationale  string          `json:"rationale"`
	Elapsed    time.Duration   `json:"elapsed"`

	// Degraded marks a placeholder substituted for a failed or malformed
	// call; downstream scoring treats these as weightless.
	Degraded bool `json:"degraded,omitempty"`
}

// View is the validated payload of an analyst or researcher opinion.
type View struct {
	Signal    Signal   `json:"signal"`
	Score     float64  `json:"score"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// StanceView is the validated payload of a risk-stance opinion.
type StanceView struct {
	Score    float64  `json:"score"`
	Concerns []string `json:"concerns,omitempty"`
}

// ParseView validates an opinion's content as a View. Unknown fields,
// out-of-range scores and unknown signals are rejected; callers substitute
// a neutral placeholder on error rather than propagating it.
func ParseView(op Opinion) (View, error) {
	var v View
	if err := strictDecode(op.Content, &v); err != nil {
		return View{}, fmt.Errorf("agent: %s payload: %w", op.Role, err)
	}
	switch v.Signal {
	case Bullish, Bearish, Neutral:
	default:
		return View{}, fmt.Errorf("agent: %s payload: unknown signal %q", op.Role, v.Signal)
	}
	if v.Score < 0 || v.Score > 1 {
		return View{}, fmt.Errorf("agent: %s payload: score %.3f out of [0,1]", op.Role, v.Score)
	}
	return v, nil
}

// ParseStanceView validates an opinion's content as a StanceView.
func ParseStanceView(op Opinion) (StanceView, error) {
	var v StanceView
	if err := strictDecode(op.Content, &v); err != nil {
		return StanceView{}, fmt.Errorf("agent: %s payload: %w", op.Role, err)
	}
	if v.Score < 0 || v.Score > 1 {
		return StanceView{}, fmt.Errorf("agent: %s payload: score %.3f out of [0,1]", op.Role, v.Score)
	}
	return v, nil
}

func strictDecode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty content")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// NeutralOpinion builds the low-confidence placeholder used when a call
// fails, times out, or returns an unparseable payload.
func NeutralOpinion(role Role, reason string) Opinion {
	content, _ := json.Marshal(View{Signal: Neutral, Score: 0})
	if isStance(role) {
		content, _ = json.Marshal(StanceView{Score: 0})
	}
	return Opinion{
		Role:       role,
		Timestamp:  time.Now().UTC(),
		Content:    content,
		Confidence: 0.1,
		Rationale:  reason,
		Degraded:   true,
	}
}

func isStance(role Role) bool {
	switch role {
	case AggressiveStance, ConservativeStance, NeutralStance:
		return true
	}
	return false
}

// MarshalView is a convenience for providers that build payloads in Go.
func MarshalView(v View) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// MarshalStanceView is MarshalView for stance payloads.
func MarshalStanceView(v StanceView) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
