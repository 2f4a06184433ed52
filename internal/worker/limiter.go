package worker

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a per-host token bucket for outbound search requests
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait blocks until the URL's host has a token or ctx is done
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}
	return l.get(host).Wait(ctx)
}

func (l *Limiter) get(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[host] = limiter
	return limiter
}

// ApplyCrawlDelay slows a host down to one request per delay when that is
// stricter than its current rate. Zero delays are ignored.
func (l *Limiter) ApplyCrawlDelay(rawURL string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	host, err := hostOf(rawURL)
	if err != nil {
		return
	}
	limit := rate.Every(delay)
	limiter := l.get(host)
	if limit < limiter.Limit() {
		limiter.SetLimit(limit)
		limiter.SetBurst(1)
	}
}

// Rate returns the current rate for the URL's host
func (l *Limiter) Rate(rawURL string) rate.Limit {
	host, err := hostOf(rawURL)
	if err != nil {
		return l.defaultRate
	}
	return l.get(host).Limit()
}

func hostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(parsed.Host), nil
}
