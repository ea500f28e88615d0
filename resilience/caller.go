package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/agentsim/agent"
)

// CallerConfig tunes the retry/breaker wrapper around a provider.
type CallerConfig struct {
	MaxRetries       int           // additional attempts after the first
	BaseDelay        time.Duration // backoff = BaseDelay * 2^attempt, capped
	MaxDelay         time.Duration
	CallTimeout      time.Duration // hard per-call deadline
	FailureThreshold int
	Cooldown         time.Duration
	RateLimit        rate.Limit // calls/sec across all channels; 0 disables
	RateBurst        int
}

// DefaultCallerConfig mirrors the engine defaults.
func DefaultCallerConfig() CallerConfig {
	return CallerConfig{
		MaxRetries:       2,
		BaseDelay:        200 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		CallTimeout:      30 * time.Second,
		FailureThreshold: 5,
		Cooldown:         time.Minute,
	}
}

// Caller wraps a Provider with retries, per-call timeouts, rate limiting
// and a per-role circuit breaker. One Caller serves all in-flight cycles.
type Caller struct {
	provider agent.Provider
	breaker  *Breaker
	limiter  *rate.Limiter
	cfg      CallerConfig
	log      *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewCaller(p agent.Provider, cfg CallerConfig, log *zap.Logger) (*Caller, error) {
	if p == nil {
		return nil, errors.New("resilience: provider is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("resilience: max retries must be >= 0, got %d", cfg.MaxRetries)
	}
	if cfg.CallTimeout <= 0 {
		return nil, fmt.Errorf("resilience: call timeout must be positive, got %v", cfg.CallTimeout)
	}
	if log == nil {
		log = zap.NewNop()
	}

	b, err := NewBreaker(cfg.FailureThreshold, cfg.Cooldown)
	if err != nil {
		return nil, err
	}

	c := &Caller{
		provider: p,
		breaker:  b,
		cfg:      cfg,
		log:      log,
		sleep:    sleepCtx,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	return c, nil
}

// Breaker exposes the underlying breaker for state inspection.
func (c *Caller) Breaker() *Breaker { return c.breaker }

// Call invokes the provider for role with retry and breaker protection.
// Returns ErrOpen without touching the provider while the role's channel is
// failing fast; returns agent.ErrTimeout (wrapped) when the caller's own
// deadline is exhausted.
func (c *Caller) Call(ctx context.Context, role agent.Role, ac agent.Context) (agent.Opinion, error) {
	channel := string(role)
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				return agent.Opinion{}, fmt.Errorf("%w: %s: %v", agent.ErrTimeout, role, lastErr)
			}
		}

		if err := c.breaker.Allow(channel); err != nil {
			return agent.Opinion{}, fmt.Errorf("%w: channel %s", ErrOpen, channel)
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				c.breaker.Failure(channel)
				return agent.Opinion{}, fmt.Errorf("%w: %s: rate wait: %v", agent.ErrTimeout, role, err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		op, err := c.provider.Generate(callCtx, role, ac)
		cancel()

		if err == nil {
			c.breaker.Success(channel)
			return op, nil
		}

		c.breaker.Failure(channel)
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s attempt %d", agent.ErrTimeout, role, attempt+1)
		}
		lastErr = err
		c.log.Warn("provider call failed",
			zap.String("role", channel),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if ctx.Err() != nil {
			return agent.Opinion{}, fmt.Errorf("%w: %s: %v", agent.ErrTimeout, role, lastErr)
		}
	}

	return agent.Opinion{}, fmt.Errorf("resilience: %s: retries exhausted: %w", role, lastErr)
}

func (c *Caller) backoff(exp int) time.Duration {
	d := c.cfg.BaseDelay
	for i := 0; i < exp; i++ {
		d *= 2
		if c.cfg.MaxDelay > 0 && d >= c.cfg.MaxDelay {
			return c.cfg.MaxDelay
		}
	}
	if c.cfg.MaxDelay > 0 && d > c.cfg.MaxDelay {
		d = c.cfg.MaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
