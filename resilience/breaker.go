// Package resilience guards the external decision-provider boundary: retry
// with exponential backoff, a per-channel circuit breaker, per-call
// timeouts, and an optional rate limit. This is the only place a decision
// cycle blocks on the outside world.
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the breaker position for one channel.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned by Allow while a channel is failing fast.
var ErrOpen = errors.New("resilience: circuit open")

type channelState struct {
	state         State
	failures      int
	openedUntil   time.Time
	trialInFlight bool
}

// Breaker tracks consecutive failures per logical channel (one per agent
// role). After threshold consecutive failures a channel opens and fails
// fast for cooldown, then admits exactly one trial call.
type Breaker struct {
	mu        sync.Mutex
	channels  map[string]*channelState
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func NewBreaker(threshold int, cooldown time.Duration) (*Breaker, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("resilience: failure threshold must be positive, got %d", threshold)
	}
	if cooldown <= 0 {
		return nil, fmt.Errorf("resilience: cooldown must be positive, got %v", cooldown)
	}
	return &Breaker{
		channels:  make(map[string]*channelState),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}, nil
}

func (b *Breaker) channel(name string) *channelState {
	cs, ok := b.channels[name]
	if !ok {
		cs = &channelState{state: StateClosed}
		b.channels[name] = cs
	}
	return cs
}

// Allow reports whether a call on the channel may proceed. In OPEN it fails
// fast until the cooldown elapses, then transitions to HALF_OPEN and admits
// a single trial; further calls fail fast until that trial resolves.
func (b *Breaker) Allow(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cs := b.channel(name)
	switch cs.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Before(cs.openedUntil) {
			return ErrOpen
		}
		cs.state = StateHalfOpen
		cs.trialInFlight = true
		return nil
	case StateHalfOpen:
		if cs.trialInFlight {
			return ErrOpen
		}
		cs.trialInFlight = true
		return nil
	}
	return nil
}

// Success records a completed call, closing the channel and resetting its
// failure count.
func (b *Breaker) Success(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cs := b.channel(name)
	cs.state = StateClosed
	cs.failures = 0
	cs.trialInFlight = false
}

// Failure records a failed call. A HALF_OPEN trial failure re-opens with a
// fresh cooldown; in CLOSED the channel opens once the threshold is hit.
func (b *Breaker) Failure(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cs := b.channel(name)
	cs.trialInFlight = false

	if cs.state == StateHalfOpen {
		cs.state = StateOpen
		cs.openedUntil = b.now().Add(b.cooldown)
		return
	}

	cs.failures++
	if cs.failures >= b.threshold {
		cs.state = StateOpen
		cs.openedUntil = b.now().Add(b.cooldown)
	}
}

// ChannelState reports the current state for a channel.
func (b *Breaker) ChannelState(name string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel(name).state
}
