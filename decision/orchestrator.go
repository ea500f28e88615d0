package decision

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/agentsim/agent"
	"github.com/rustyeddy/agentsim/cache"
	"github.com/rustyeddy/agentsim/market"
	"github.com/rustyeddy/agentsim/pkg/id"
	"github.com/rustyeddy/agentsim/pkg/ring"
	"github.com/rustyeddy/agentsim/risk"
)

// Caller is the resilient provider boundary. Satisfied by
// resilience.Caller; tests substitute scripted fakes.
type Caller interface {
	Call(ctx context.Context, role agent.Role, ac agent.Context) (agent.Opinion, error)
}

// Portfolio is the slice of the position manager the orchestrator needs.
// All mutation stays behind the manager's own lock.
type Portfolio interface {
	Execute(ctx context.Context, d *Decision, fill float64) (Transaction, error)
	SizeFor(d *Decision, riskFactor, price float64) float64
	HeldSymbols() []string
}

// OrchestratorConfig tunes the per-cycle pipeline.
type OrchestratorConfig struct {
	HistoryWindow   int     `json:"history_window" yaml:"history_window"`     // snapshots retained per symbol
	MaxWorkers      int     `json:"max_workers" yaml:"max_workers"`           // fan-out pool bound
	MinConfidence   float64 `json:"min_confidence" yaml:"min_confidence"`     // below this, BUY/SELL degrades to HOLD
	BasePositionPct float64 `json:"base_position_pct" yaml:"base_position_pct"`
	StopLossPct     float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct   float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		HistoryWindow:   30,
		MaxWorkers:      4,
		MinConfidence:   0.25,
		BasePositionPct: 0.20,
		StopLossPct:     0.05,
		TakeProfitPct:   0.10,
	}
}

func (c OrchestratorConfig) Validate() error {
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("decision: history_window must be positive, got %d", c.HistoryWindow)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("decision: max_workers must be positive, got %d", c.MaxWorkers)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("decision: min_confidence must be in [0,1], got %v", c.MinConfidence)
	}
	if c.BasePositionPct <= 0 || c.BasePositionPct > 1 {
		return fmt.Errorf("decision: base_position_pct must be in (0,1], got %v", c.BasePositionPct)
	}
	return nil
}

// Orchestrator runs the six-phase pipeline for one (symbol, date) at a
// time per call; calls for different symbols may run concurrently. Phases
// run strictly in order; only the analyst and stance fan-outs are
// parallel, bounded by MaxWorkers.
type Orchestrator struct {
	cfg       OrchestratorConfig
	market    market.Provider
	caller    Caller
	cache     *cache.Cache
	analyzer  *risk.Analyzer
	portfolio Portfolio
	log       *zap.Logger

	mu        sync.Mutex
	histories map[string]*ring.Buffer[market.Snapshot]
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	md market.Provider,
	caller Caller,
	c *cache.Cache,
	analyzer *risk.Analyzer,
	p Portfolio,
	log *zap.Logger,
) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if md == nil || caller == nil || analyzer == nil || p == nil {
		return nil, fmt.Errorf("decision: market, caller, analyzer and portfolio are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		market:    md,
		caller:    caller,
		cache:     c,
		analyzer:  analyzer,
		portfolio: p,
		log:       log,
		histories: make(map[string]*ring.Buffer[market.Snapshot]),
	}, nil
}

// RunCycle produces exactly one decision for (symbol, date). Transient and
// validation failures degrade individual opinions; the cycle itself only
// fails on unavailable market data or internal invariant breakage.
// Cancellation is honored between phases: a cancelled cycle finishes its
// current phase and returns a skipped HOLD without touching the portfolio.
func (o *Orchestrator) RunCycle(ctx context.Context, symbol string, date time.Time) (*Decision, error) {
	// Phase 1: data collection.
	snap, err := o.market.Get(ctx, symbol, date)
	if err != nil {
		return nil, fmt.Errorf("decision: %s %s: %w", symbol, market.DateKey(date), err)
	}
	history := o.observe(snap)

	d := &Decision{
		ID:        id.New(),
		Timestamp: time.Now().UTC(),
		Symbol:    symbol,
		Date:      date,
		Action:    Hold,
		Kind:      MarketOrder,
		Status:    StatusProposed,
	}

	ac := agent.Context{Symbol: symbol, Date: date, Snapshot: snap, History: history}

	if cancelled(ctx, d, "cancelled before analysis") {
		return d, nil
	}

	// Phase 2: independent analysts.
	analystOps := o.fanOut(ctx, agent.AnalystRoles(), ac)
	d.Opinions = append(d.Opinions, analystOps...)

	if cancelled(ctx, d, "cancelled before research") {
		return d, nil
	}

	// Phase 3: bull/bear advocacy and synthesis.
	ac.Briefing = analystBriefing(analystOps)
	researchOps := o.fanOut(ctx, []agent.Role{agent.BullResearcher, agent.BearResearcher}, ac)
	d.Opinions = append(d.Opinions, researchOps...)

	action, conviction, rationale := synthesize(researchOps)

	if cancelled(ctx, d, "cancelled before risk discussion") {
		return d, nil
	}

	// Phase 4: risk stances plus analyzer metrics.
	ac.Briefing = fmt.Sprintf("provisional %s with conviction %.2f; %s", action, conviction, ac.Briefing)
	stanceOps := o.fanOut(ctx, agent.StanceRoles(), ac)
	d.Opinions = append(d.Opinions, stanceOps...)

	metrics := o.analyzer.Assess(history, o.heldReturns(symbol, history))
	d.Risk = assess(stanceOps, metrics)

	// Phase 5: deterministic merge.
	d.Action = action
	d.Rationale = rationale
	d.Confidence = clamp01(conviction * 0.5 * stanceAgreement(d.Risk))
	d.PositionSizePct = o.cfg.BasePositionPct * d.Risk.Stance.SizeMultiplier()
	if d.PositionSizePct > 1 {
		d.PositionSizePct = 1
	}
	d.StopLossPct = o.cfg.StopLossPct
	d.TakeProfitPct = o.cfg.TakeProfitPct

	if d.Action != Hold && d.Confidence < o.cfg.MinConfidence {
		d.Action = Hold
		d.Rationale = fmt.Sprintf("confidence %.2f below threshold %.2f; %s",
			d.Confidence, o.cfg.MinConfidence, d.Rationale)
	}

	if cancelled(ctx, d, "cancelled before execution") {
		return d, nil
	}

	// Phase 6: execution.
	o.execute(ctx, d, snap.Close, metrics.SizeFactor)

	o.log.Debug("cycle complete",
		zap.String("symbol", symbol),
		zap.String("date", market.DateKey(date)),
		zap.String("action", string(d.Action)),
		zap.String("status", string(d.Status)),
		zap.Float64("confidence", d.Confidence))
	return d, nil
}

func (o *Orchestrator) execute(ctx context.Context, d *Decision, fill, sizeFactor float64) {
	if d.Action == Hold {
		d.Status = StatusSkipped
		d.StatusReason = "hold"
		return
	}

	d.Quantity = o.portfolio.SizeFor(d, sizeFactor, fill)
	if d.Quantity <= 0 {
		d.Status = StatusSkipped
		d.StatusReason = "sized to zero"
		return
	}

	if _, err := o.portfolio.Execute(ctx, d, fill); err != nil {
		// Business-rule rejections end here; the run continues.
		d.Status = StatusRejected
		d.StatusReason = err.Error()
		o.log.Warn("execution rejected",
			zap.String("symbol", d.Symbol),
			zap.Error(err))
		return
	}
	d.Status = StatusFilled
}

// observe appends snap to its symbol's bounded history and returns the
// current window, oldest first.
func (o *Orchestrator) observe(snap market.Snapshot) []market.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	h, ok := o.histories[snap.Symbol]
	if !ok {
		h = ring.MustNew[market.Snapshot](o.cfg.HistoryWindow)
		o.histories[snap.Symbol] = h
	}
	h.Append(snap)
	return h.All()
}

// heldReturns builds return series for the correlation picture: every held
// symbol with observed history, plus the candidate itself.
func (o *Orchestrator) heldReturns(candidate string, candidateHistory []market.Snapshot) map[string][]float64 {
	symbols := o.portfolio.HeldSymbols()

	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string][]float64, len(symbols)+1)
	if rs := market.Returns(candidateHistory); len(rs) > 0 {
		out[candidate] = rs
	}
	for _, s := range symbols {
		if s == candidate {
			continue
		}
		h, ok := o.histories[s]
		if !ok {
			continue
		}
		if rs := market.Returns(h.All()); len(rs) > 0 {
			out[s] = rs
		}
	}
	return out
}

// fanOut requests one opinion per role through the cache and the resilient
// caller, with at most MaxWorkers in flight. Failed or malformed responses
// come back as degraded neutral placeholders; the slice is always fully
// populated, ordered as roles.
func (o *Orchestrator) fanOut(ctx context.Context, roles []agent.Role, ac agent.Context) []agent.Opinion {
	out := make([]agent.Opinion, len(roles))
	sem := make(chan struct{}, o.cfg.MaxWorkers)
	var wg sync.WaitGroup

	for i, role := range roles {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, role agent.Role) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = o.opinion(ctx, role, ac)
		}(i, role)
	}
	wg.Wait()
	return out
}

func (o *Orchestrator) opinion(ctx context.Context, role agent.Role, ac agent.Context) agent.Opinion {
	key := cache.Key(role, ac.Symbol, market.DateKey(ac.Date), ac.Briefing)
	if o.cache != nil {
		if op, ok := o.cache.Get(key); ok {
			return op
		}
	}

	op, err := o.caller.Call(ctx, role, ac)
	if err != nil {
		o.log.Warn("opinion degraded",
			zap.String("role", string(role)),
			zap.Error(err))
		return agent.NeutralOpinion(role, err.Error())
	}

	if err := validatePayload(op); err != nil {
		o.log.Warn("opinion payload rejected",
			zap.String("role", string(role)),
			zap.Error(err))
		return agent.NeutralOpinion(role, err.Error())
	}

	if o.cache != nil {
		o.cache.Put(key, op)
	}
	return op
}

func validatePayload(op agent.Opinion) error {
	switch op.Role {
	case agent.AggressiveStance, agent.ConservativeStance, agent.NeutralStance:
		_, err := agent.ParseStanceView(op)
		return err
	default:
		_, err := agent.ParseView(op)
		return err
	}
}

// analystBriefing flattens phase-2 output into the plain-text context fed
// to later phases.
func analystBriefing(ops []agent.Opinion) string {
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		v, err := agent.ParseView(op)
		if err != nil {
			continue
		}
		p := fmt.Sprintf("%s: %s %.2f", op.Role, v.Signal, v.Score)
		if len(v.KeyPoints) > 0 {
			p += " (" + strings.Join(v.KeyPoints, "; ") + ")"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " | ")
}

// synthesize merges the bull and bear cases into a provisional action and
// conviction. Degraded opinions carry no weight. Equal cases hold.
func synthesize(ops []agent.Opinion) (Action, float64, string) {
	var bull, bear float64
	for _, op := range ops {
		if op.Degraded {
			continue
		}
		v, err := agent.ParseView(op)
		if err != nil {
			continue
		}
		switch op.Role {
		case agent.BullResearcher:
			if v.Signal == agent.Bullish {
				bull = v.Score
			}
		case agent.BearResearcher:
			if v.Signal == agent.Bearish {
				bear = v.Score
			}
		}
	}

	switch {
	case bull > bear:
		return Buy, bull, fmt.Sprintf("bull case %.2f over bear %.2f", bull, bear)
	case bear > bull:
		return Sell, bear, fmt.Sprintf("bear case %.2f over bull %.2f", bear, bull)
	default:
		return Hold, bull, "bull and bear cases balanced"
	}
}

// assess scores the three stances and picks the strict maximum; any tie,
// including all-degraded, lands on NEUTRAL.
func assess(ops []agent.Opinion, metrics risk.Metrics) Assessment {
	a := Assessment{Stance: Neutral, Metrics: metrics}
	a.KeyRisks = append(a.KeyRisks, metrics.Advisories...)

	for _, op := range ops {
		if op.Degraded {
			continue
		}
		v, err := agent.ParseStanceView(op)
		if err != nil {
			continue
		}
		switch op.Role {
		case agent.AggressiveStance:
			a.AggressiveScore = v.Score
		case agent.ConservativeStance:
			a.ConservativeScore = v.Score
		case agent.NeutralStance:
			a.NeutralScore = v.Score
		}
		a.KeyRisks = append(a.KeyRisks, v.Concerns...)
	}

	switch {
	case a.AggressiveScore > a.ConservativeScore && a.AggressiveScore > a.NeutralScore:
		a.Stance = Aggressive
	case a.ConservativeScore > a.AggressiveScore && a.ConservativeScore > a.NeutralScore:
		a.Stance = Conservative
	}

	sort.Strings(a.KeyRisks[len(metrics.Advisories):]) // stable concern order across fan-in
	return a
}

// stanceAgreement scales confidence by how decisively the winning stance
// scored: 1 (no signal) up to 2 (unanimous certainty).
func stanceAgreement(a Assessment) float64 {
	var winning float64
	switch a.Stance {
	case Aggressive:
		winning = a.AggressiveScore
	case Conservative:
		winning = a.ConservativeScore
	default:
		winning = a.NeutralScore
	}
	return 1 + clamp01(winning)
}

func cancelled(ctx context.Context, d *Decision, reason string) bool {
	if ctx.Err() == nil {
		return false
	}
	d.Action = Hold
	d.Status = StatusSkipped
	d.StatusReason = reason
	return true
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
