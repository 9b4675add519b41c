// Package ratelimit enforces the request-rate contract imposed by data hosts
// such as SEC EDGAR. The SEC caps access at 10 requests per second; exceeding
// it gets the crawler blocked. See https://www.sec.gov/os/webmaster-faq#code-support
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerWindow is the SEC EDGAR published access cap.
	DefaultRequestsPerWindow = 10
	// DefaultWindow is the window length the cap applies to.
	DefaultWindow = time.Second
)

// Config controls the per-host hard cap.
type Config struct {
	RequestsPerWindow int           // N permits per Window per host
	Window            time.Duration // sliding window length
}

// DefaultConfig returns the SEC EDGAR compliant configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerWindow: DefaultRequestsPerWindow,
		Window:            DefaultWindow,
	}
}

// WindowCounts reports per-host request telemetry over trailing windows.
// These counters are observational only; the hard cap is enforced separately.
type WindowCounts struct {
	LastMinute int
	LastHour   int
	LastDay    int
}

// HostLimiter hands out permits per host, guaranteeing that no sliding window
// of the configured length ever contains more than the configured number of
// grants. Permits are spaced Window/N apart (burst of one), which bounds any
// window of length W to at most N permits regardless of caller alignment.
//
// Acquire never fails: when the host is over its cap the caller receives the
// wait duration until its reserved slot frees.
type HostLimiter struct {
	cfg Config

	mu    sync.Mutex
	hosts map[string]*hostState
}

type hostState struct {
	limiter *rate.Limiter
	// grant timestamps for telemetry, pruned lazily
	grants []time.Time
}

// NewHostLimiter creates a limiter with the given per-host cap.
func NewHostLimiter(cfg Config) *HostLimiter {
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = DefaultRequestsPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &HostLimiter{
		cfg:   cfg,
		hosts: make(map[string]*hostState),
	}
}

func (l *HostLimiter) state(host string) *hostState {
	st, ok := l.hosts[host]
	if !ok {
		interval := l.cfg.Window / time.Duration(l.cfg.RequestsPerWindow)
		st = &hostState{
			limiter: rate.NewLimiter(rate.Every(interval), 1),
		}
		l.hosts[host] = st
	}
	return st
}

// Acquire reserves the next permit for host and returns how long the caller
// must wait before using it. A zero duration means the permit is immediately
// usable. The reservation is binding: callers are expected to sleep and then
// proceed, not to retry Acquire.
func (l *HostLimiter) Acquire(host string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(host)
	res := st.limiter.Reserve()
	delay := res.Delay()

	grantAt := time.Now().Add(delay)
	st.grants = append(st.grants, grantAt)
	st.prune(grantAt)

	return delay
}

// Wait blocks until a permit for host is usable or ctx is done.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	delay := l.Acquire(host)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Counts returns trailing-window request telemetry for host.
func (l *HostLimiter) Counts(host string) WindowCounts {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.hosts[host]
	if !ok {
		return WindowCounts{}
	}
	now := time.Now()
	st.prune(now)

	var counts WindowCounts
	for _, ts := range st.grants {
		age := now.Sub(ts)
		if age < 0 {
			// reserved but not yet usable; counts toward every window
			age = 0
		}
		if age <= time.Minute {
			counts.LastMinute++
		}
		if age <= time.Hour {
			counts.LastHour++
		}
		counts.LastDay++
	}
	return counts
}

// prune drops grant records older than a day. Must hold l.mu.
func (st *hostState) prune(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	i := 0
	for ; i < len(st.grants); i++ {
		if st.grants[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		st.grants = append(st.grants[:0], st.grants[i:]...)
	}
}
