// Package ratelimit counts requests per caller and endpoint in fixed
// time windows.
package ratelimit

import (
	"sync"
	"time"
)

// Rule is the ceiling of one endpoint: at most Limit requests per Window.
type Rule struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// Table maps endpoint identifiers to their rule.
type Table map[string]Rule

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type counterKey struct {
	caller   string
	endpoint string
}

type counter struct {
	start time.Time
	count int
}

type Limiter struct {
	mu       sync.Mutex
	table    Table
	counters map[counterKey]*counter
}

func New(table Table) *Limiter {
	copied := make(Table, len(table))
	for endpoint, rule := range table {
		copied[endpoint] = rule
	}
	return &Limiter{
		table:    copied,
		counters: make(map[counterKey]*counter),
	}
}

// Admit counts one request of caller against endpoint. Endpoints without a
// rule are always admitted. A rejected request does not consume quota.
func (l *Limiter) Admit(caller, endpoint string, now time.Time) Decision {
	rule, ok := l.table[endpoint]
	if !ok || rule.Limit <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true, Limit: -1, Remaining: -1}
	}

	start := now.Truncate(rule.Window)
	key := counterKey{caller: caller, endpoint: endpoint}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok || !c.start.Equal(start) {
		c = &counter{start: start}
		l.counters[key] = c
	}

	d := Decision{Limit: rule.Limit, ResetAt: start.Add(rule.Window)}
	if c.count >= rule.Limit {
		return d
	}
	c.count++
	d.Allowed = true
	d.Remaining = rule.Limit - c.count
	return d
}

// Sweep drops counters whose window began two or more widths before now
// and returns how many were dropped.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for key, c := range l.counters {
		rule := l.table[key.endpoint]
		if now.Sub(c.start) >= 2*rule.Window {
			delete(l.counters, key)
			dropped++
		}
	}
	return dropped
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
