// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

// Package usage records per credential/model outcomes and turns them into a
// model ordering for the call planner.
package usage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/dotsetgreg/wargabot/pkg/logger"
)

const defaultCapacityWindow = 60 * time.Second

// Counters are the recorded outcomes for one (credential, model) pair.
type Counters struct {
	Credential    string        `json:"credential"`
	Model         string        `json:"model"`
	Successes     int64         `json:"successes"`
	Failures      int64         `json:"failures"`
	RateLimits    int64         `json:"rate_limits"`
	LastLatency   time.Duration `json:"last_latency"`
	LastRateLimit time.Time     `json:"last_rate_limit,omitempty"`
}

// SuccessRate is successes over attempts, 0.5 with no data.
func (c Counters) SuccessRate() float64 {
	total := c.Successes + c.Failures
	if total == 0 {
		return 0.5
	}
	return float64(c.Successes) / float64(total)
}

type pairKey struct {
	credential string
	model      string
}

type Option func(*Tracker)

// WithCapacityWindow sets how long a rate-limited pair stays at capacity.
func WithCapacityWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracker is safe for concurrent use. None of its methods fail.
type Tracker struct {
	mu     sync.RWMutex
	pairs  map[pairKey]*Counters
	window time.Duration
	now    func() time.Time
	resets int64
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		pairs:  make(map[pairKey]*Counters),
		window: defaultCapacityWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) entry(credential, model string) *Counters {
	key := pairKey{credential: credential, model: model}
	c, ok := t.pairs[key]
	if !ok {
		c = &Counters{Credential: credential, Model: model}
		t.pairs[key] = c
	}
	return c
}

func (t *Tracker) RecordSuccess(credential, model string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.entry(credential, model)
	c.Successes++
	c.LastLatency = latency
}

func (t *Tracker) RecordFailure(credential, model string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.entry(credential, model)
	c.Failures++
	if latency > 0 {
		c.LastLatency = latency
	}
}

// MarkRateLimited records a failure and puts the pair at capacity for the
// configured window.
func (t *Tracker) MarkRateLimited(credential, model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.entry(credential, model)
	c.Failures++
	c.RateLimits++
	c.LastRateLimit = t.now()
}

// AtCapacity reports whether the pair was rate limited within the window.
func (t *Tracker) AtCapacity(credential, model string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.pairs[pairKey{credential: credential, model: model}]
	if !ok || c.LastRateLimit.IsZero() {
		return false
	}
	return t.now().Sub(c.LastRateLimit) < t.window
}

// Prioritize returns models reordered for credential: pairs at capacity
// sink to the end, the rest sort by success rate descending. Ties keep the
// declared order. The input slice is not modified.
func (t *Tracker) Prioritize(credential string, models []string) []string {
	type ranked struct {
		model    string
		index    int
		rate     float64
		capacity bool
	}

	t.mu.RLock()
	now := t.now()
	items := make([]ranked, len(models))
	for i, m := range models {
		r := ranked{model: m, index: i, rate: 0.5}
		if c, ok := t.pairs[pairKey{credential: credential, model: m}]; ok {
			r.rate = c.SuccessRate()
			r.capacity = !c.LastRateLimit.IsZero() && now.Sub(c.LastRateLimit) < t.window
		}
		items[i] = r
	}
	t.mu.RUnlock()

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].capacity != items[j].capacity {
			return !items[i].capacity
		}
		return items[i].rate > items[j].rate
	})

	out := make([]string, len(items))
	for i, r := range items {
		out[i] = r.model
	}
	return out
}

func (t *Tracker) Get(credential, model string) (Counters, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.pairs[pairKey{credential: credential, model: model}]
	if !ok {
		return Counters{}, false
	}
	return *c, true
}

// Snapshot returns a copy of every pair, sorted by credential then model.
func (t *Tracker) Snapshot() []Counters {
	t.mu.RLock()
	out := make([]Counters, 0, len(t.pairs))
	for _, c := range t.pairs {
		out = append(out, *c)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Credential != out[j].Credential {
			return out[i].Credential < out[j].Credential
		}
		return out[i].Model < out[j].Model
	})
	return out
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pairs = make(map[pairKey]*Counters)
	t.resets++
}

func (t *Tracker) Resets() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resets
}

// StartResetSchedule resets the counters on every tick of cronExpr until
// ctx is done. An invalid expression is returned immediately.
func (t *Tracker) StartResetSchedule(ctx context.Context, cronExpr string) error {
	if !gronx.New().IsValid(cronExpr) {
		return fmt.Errorf("invalid usage reset cron expression %q", cronExpr)
	}

	go func() {
		for {
			next, err := gronx.NextTickAfter(cronExpr, time.Now(), false)
			if err != nil {
				logger.ErrorCF("usage", "Cannot compute next reset", map[string]interface{}{
					"cron":  cronExpr,
					"error": err.Error(),
				})
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				t.Reset()
				logger.InfoCF("usage", "Usage counters reset", map[string]interface{}{
					"cron": cronExpr,
					"next": next.Format(time.RFC3339),
				})
			}
		}
	}()
	return nil
}
