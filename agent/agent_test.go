package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/agentsim/market"
)

func TestParseView(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		ok      bool
	}{
		{"valid", `{"signal":"BULLISH","score":0.8,"key_points":["oversold"]}`, true},
		{"neutral no points", `{"signal":"NEUTRAL","score":0.3}`, true},
		{"unknown signal", `{"signal":"SIDEWAYS","score":0.5}`, false},
		{"score above 1", `{"signal":"BULLISH","score":1.2}`, false},
		{"negative score", `{"signal":"BEARISH","score":-0.1}`, false},
		{"unknown field", `{"signal":"BULLISH","score":0.5,"mood":"great"}`, false},
		{"empty", ``, false},
		{"not json", `nope`, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			op := Opinion{Role: TechnicalAnalyst, Content: json.RawMessage(tt.content)}
			_, err := ParseView(op)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParseStanceView(t *testing.T) {
	t.Parallel()

	op := Opinion{Role: AggressiveStance, Content: json.RawMessage(`{"score":0.7,"concerns":["gap risk"]}`)}
	v, err := ParseStanceView(op)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, v.Score, 1e-9)
	assert.Equal(t, []string{"gap risk"}, v.Concerns)

	op.Content = json.RawMessage(`{"score":1.5}`)
	_, err = ParseStanceView(op)
	assert.Error(t, err)
}

// A degraded placeholder must itself survive payload validation, for both
// payload shapes.
func TestNeutralOpinionParses(t *testing.T) {
	t.Parallel()

	op := NeutralOpinion(NewsAnalyst, "provider down")
	assert.True(t, op.Degraded)
	assert.InDelta(t, 0.1, op.Confidence, 1e-9)
	v, err := ParseView(op)
	require.NoError(t, err)
	assert.Equal(t, Neutral, v.Signal)

	sop := NeutralOpinion(ConservativeStance, "timeout")
	sv, err := ParseStanceView(sop)
	require.NoError(t, err)
	assert.Zero(t, sv.Score)
}

func TestRuleProviderDeterministic(t *testing.T) {
	t.Parallel()

	ac := Context{
		Symbol:   "X",
		Date:     time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		Snapshot: market.Snapshot{Symbol: "X", Close: 100, Indicators: market.Indicators{RSI: 25}},
	}

	p := RuleProvider{}
	first, err := p.Generate(context.Background(), TechnicalAnalyst, ac)
	require.NoError(t, err)
	second, err := p.Generate(context.Background(), TechnicalAnalyst, ac)
	require.NoError(t, err)

	v1, err := ParseView(first)
	require.NoError(t, err)
	v2, err := ParseView(second)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, Bullish, v1.Signal) // oversold
}

func TestRuleProviderRSIBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rsi  float64
		want Signal
	}{
		{25, Bullish},
		{40, Bullish},
		{50, Neutral},
		{60, Bearish},
		{75, Bearish},
		{0, Neutral}, // indicator missing
	}

	for _, tt := range tests {
		ac := Context{Snapshot: market.Snapshot{Indicators: market.Indicators{RSI: tt.rsi}}}
		op, err := RuleProvider{}.Generate(context.Background(), SentimentAnalyst, ac)
		require.NoError(t, err)
		v, err := ParseView(op)
		require.NoError(t, err)
		assert.Equal(t, tt.want, v.Signal, "rsi %.0f", tt.rsi)
	}
}

func TestRuleProviderStancePayloads(t *testing.T) {
	t.Parallel()

	ac := Context{Snapshot: market.Snapshot{Indicators: market.Indicators{RSI: 80}}}
	for _, role := range StanceRoles() {
		op, err := RuleProvider{}.Generate(context.Background(), role, ac)
		require.NoError(t, err)
		v, err := ParseStanceView(op)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v.Score, 0.0)
		assert.LessOrEqual(t, v.Score, 1.0)
	}

	// A stretched market scores the conservative seat above the aggressive.
	cons, _ := RuleProvider{}.Generate(context.Background(), ConservativeStance, ac)
	agg, _ := RuleProvider{}.Generate(context.Background(), AggressiveStance, ac)
	cv, _ := ParseStanceView(cons)
	av, _ := ParseStanceView(agg)
	assert.Greater(t, cv.Score, av.Score)
}
