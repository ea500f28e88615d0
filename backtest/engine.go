// Package backtest drives the calendar: one decision cycle per configured
// symbol per trading date, forced-exit sweeps at each close, and the audit
// trail behind a BacktestResult.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/agentsim/agent"
	"github.com/rustyeddy/agentsim/cache"
	"github.com/rustyeddy/agentsim/config"
	"github.com/rustyeddy/agentsim/decision"
	"github.com/rustyeddy/agentsim/journal"
	"github.com/rustyeddy/agentsim/market"
	"github.com/rustyeddy/agentsim/portfolio"
	"github.com/rustyeddy/agentsim/resilience"
	"github.com/rustyeddy/agentsim/risk"
)

// Engine wires the pipeline together for one run. Decision generation for
// different symbols may run concurrently; every portfolio mutation still
// goes through the manager's single lock.
type Engine struct {
	cfg     *config.Config
	market  market.Provider
	orch    *decision.Orchestrator
	manager *portfolio.Manager
	journal journal.Journal
	log     *zap.Logger
}

// New validates cfg and assembles the engine. Configuration errors are
// fatal: they surface here, before any simulation step. A nil provider
// falls back to the deterministic rule provider; a nil journal follows the
// configured journal type.
func New(cfg *config.Config, md market.Provider, provider agent.Provider, j journal.Journal, log *zap.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("backtest: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	if md == nil {
		return nil, errors.New("backtest: market provider is required")
	}
	if provider == nil {
		provider = agent.RuleProvider{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	if j == nil {
		var err error
		if j, err = buildJournal(cfg.Journal); err != nil {
			return nil, err
		}
	}

	callerCfg, err := cfg.Caller.Build()
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	caller, err := resilience.NewCaller(provider, callerCfg, log)
	if err != nil {
		return nil, err
	}

	ttl, err := cfg.Cache.ParseTTL()
	if err != nil {
		return nil, fmt.Errorf("backtest: cache ttl: %w", err)
	}
	opCache, err := cache.New(cfg.Cache.Capacity, ttl)
	if err != nil {
		return nil, err
	}

	manager, err := portfolio.NewManager(cfg.Portfolio, log)
	if err != nil {
		return nil, err
	}

	orch, err := decision.NewOrchestrator(
		cfg.Decision, md, caller, opCache,
		risk.NewAnalyzer(cfg.Risk), manager, log,
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:     cfg,
		market:  md,
		orch:    orch,
		manager: manager,
		journal: j,
		log:     log,
	}, nil
}

func buildJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "csv":
		return journal.NewCSV(jc.AuditsFile, jc.EquityFile)
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	default:
		return journal.NewMemory(), nil
	}
}

// Manager exposes the portfolio owner, mainly for callers that report on
// the final state.
func (e *Engine) Manager() *portfolio.Manager { return e.manager }

// Run executes the full simulation. Cancellation is checked between dates;
// a cancelled run still returns the result accumulated so far. Only the
// market provider failing mid-read aborts with an error.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	start, end, err := e.cfg.Backtest.Dates()
	if err != nil {
		// Unreachable after Validate; kept so Run is safe standalone.
		return Result{}, fmt.Errorf("backtest: %w", err)
	}

	res := Result{Start: start, End: end}

	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			e.log.Info("run cancelled", zap.String("date", market.DateKey(date)))
			res.Cancelled = true
			break
		}
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}

		decisions := e.runDate(ctx, date)
		if len(decisions) == 0 {
			continue // market closed for every symbol
		}
		res.TradingDays++

		e.audit(decisions, &res)

		// Value the book at the day's closes, then sweep exit levels.
		prices := e.closingPrices(ctx, date)
		exits := e.manager.CheckExits(date, prices)
		for _, x := range exits {
			e.log.Info("position force-closed",
				zap.String("symbol", x.Transaction.Symbol),
				zap.String("reason", x.Reason))
		}

		snap := e.manager.Snapshot()
		eq := journal.EquitySnapshot{
			Time:       date,
			Cash:       snap.Cash,
			TotalValue: snap.TotalValue,
			Positions:  len(snap.Positions),
		}
		if err := e.journal.RecordEquity(eq); err != nil {
			e.log.Warn("equity journal write failed", zap.Error(err))
		}
		res.Equity = append(res.Equity, eq)

		if e.cfg.Backtest.Debug {
			e.log.Debug("day complete",
				zap.String("date", market.DateKey(date)),
				zap.Float64("cash", snap.Cash),
				zap.Float64("total_value", snap.TotalValue),
				zap.Int("positions", len(snap.Positions)))
		}
	}

	res.FinalState = e.manager.Snapshot()
	res.Transactions = e.manager.Transactions()
	return res, nil
}

// runDate produces at most one decision per symbol, in configured symbol
// order, with bounded concurrency across symbols.
func (e *Engine) runDate(ctx context.Context, date time.Time) []*decision.Decision {
	symbols := e.cfg.Backtest.Symbols
	out := make([]*decision.Decision, len(symbols))

	sem := make(chan struct{}, e.cfg.Backtest.MaxConcurrentSymbols)
	var wg sync.WaitGroup

	for i, sym := range symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sym string) {
			defer wg.Done()
			defer func() { <-sem }()

			d, err := e.orch.RunCycle(ctx, sym, date)
			if err != nil {
				if !errors.Is(err, market.ErrNotAvailable) {
					e.log.Warn("cycle failed",
						zap.String("symbol", sym),
						zap.String("date", market.DateKey(date)),
						zap.Error(err))
				}
				return
			}
			out[i] = d
		}(i, sym)
	}
	wg.Wait()

	compact := out[:0]
	for _, d := range out {
		if d != nil {
			compact = append(compact, d)
		}
	}
	return compact
}

// audit appends each decision, paired with the transaction it caused, to
// the result and the journal.
func (e *Engine) audit(decisions []*decision.Decision, res *Result) {
	byDecision := make(map[string]decision.Transaction)
	for _, txn := range e.manager.Transactions() {
		if txn.Reason == "" { // forced exits have no owning decision row
			byDecision[txn.DecisionID] = txn
		}
	}

	for _, d := range decisions {
		res.Decisions = append(res.Decisions, *d)
		res.RiskSnapshots = append(res.RiskSnapshots, d.Risk.Metrics)

		rec := journal.AuditRecord{
			Symbol:   d.Symbol,
			Decision: *d,
			StoredAt: time.Now().UTC(),
		}
		if txn, ok := byDecision[d.ID]; ok {
			rec.Transaction = &txn
		}
		if err := e.journal.SaveAudit(rec); err != nil {
			e.log.Warn("audit journal write failed",
				zap.String("decision", d.ID),
				zap.Error(err))
		}
	}
}

// closingPrices marks every symbol with data for this date and returns the
// closes for the exit sweep.
func (e *Engine) closingPrices(ctx context.Context, date time.Time) map[string]float64 {
	prices := make(map[string]float64, len(e.cfg.Backtest.Symbols))
	for _, sym := range e.cfg.Backtest.Symbols {
		snap, err := e.market.Get(ctx, sym, date)
		if err != nil {
			continue
		}
		prices[sym] = snap.Close
		e.manager.MarkPrice(sym, snap.Close, date)
	}
	return prices
}
