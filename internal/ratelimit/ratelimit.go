// Package ratelimit paces page loads per host. Each host starts at the
// configured rate, backs off when it serves a bot check and climbs back
// while pages come through clean.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	recoverFactor = 1.2
	backoffFactor = 0.5
	// A host never runs faster than ceilingFactor times the base rate nor
	// slower than floorFactor times it.
	ceilingFactor = 2
	floorFactor   = 0.25
)

// host is the pacing state of one host.
type host struct {
	limiter *rate.Limiter
	current rate.Limit
}

// Hosts paces requests with one limiter per host, created on first use.
// A nil *Hosts, or one built with a non-positive rate, never waits.
type Hosts struct {
	mu    sync.Mutex
	base  rate.Limit
	burst int
	hosts map[string]*host
}

// NewHosts creates a registry whose hosts start at perSecond requests per
// second with the given burst.
func NewHosts(perSecond float64, burst int) *Hosts {
	if burst < 1 {
		burst = 1
	}
	return &Hosts{
		base:  rate.Limit(perSecond),
		burst: burst,
		hosts: make(map[string]*host),
	}
}

// Wait blocks until rawURL's host may be requested again.
func (h *Hosts) Wait(ctx context.Context, rawURL string) error {
	hs := h.lookup(rawURL)
	if hs == nil {
		return nil
	}
	return hs.limiter.Wait(ctx)
}

// Backoff halves the pace of rawURL's host after it pushed back.
func (h *Hosts) Backoff(rawURL string) {
	rt := h.adjust(rawURL, backoffFactor)
	if rt > 0 {
		zap.L().Debug("ratelimit: host pushed back, slowing down",
			zap.String("url", rawURL),
			zap.Float64("per_sec", rt),
		)
	}
}

// Recover speeds rawURL's host up by a fifth after a clean response.
func (h *Hosts) Recover(rawURL string) {
	h.adjust(rawURL, recoverFactor)
}

// Rate returns the current pace of rawURL's host in requests per second,
// or 0 when pacing is off or the URL has no host.
func (h *Hosts) Rate(rawURL string) float64 {
	hs := h.lookup(rawURL)
	if hs == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return float64(hs.current)
}

func (h *Hosts) adjust(rawURL string, factor float64) float64 {
	hs := h.lookup(rawURL)
	if hs == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	next := hs.current * rate.Limit(factor)
	next = min(next, h.base*ceilingFactor)
	next = max(next, h.base*floorFactor)
	hs.current = next
	hs.limiter.SetLimit(next)
	return float64(next)
}

func (h *Hosts) lookup(rawURL string) *host {
	if h == nil || h.base <= 0 {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return nil
	}
	key := strings.ToLower(u.Host)

	h.mu.Lock()
	defer h.mu.Unlock()
	hs, ok := h.hosts[key]
	if !ok {
		hs = &host{limiter: rate.NewLimiter(h.base, h.burst), current: h.base}
		h.hosts[key] = hs
	}
	return hs
}
