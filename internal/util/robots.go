package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const maxRobotsBytes = 512 << 10

// RobotsChecker answers robots.txt questions for outbound requests. Parsed
// files are cached per scheme and host for the checker's lifetime.
type RobotsChecker struct {
	cache      map[string]*robotstxt.RobotsData
	mu         sync.RWMutex
	httpClient *http.Client
	agent      string
	userAgent  string
}

// NewRobotsChecker creates a checker that fetches with client
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsChecker{
		cache:      make(map[string]*robotstxt.RobotsData),
		httpClient: client,
		agent:      NormalizeUserAgent(userAgent),
		userAgent:  userAgent,
	}
}

// CanFetch reports whether rawURL may be requested and the crawl delay the
// host asks for. An unreachable robots.txt allows the request.
func (r *RobotsChecker) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Host == "" {
		return false, 0, fmt.Errorf("parse URL: no host in %q", rawURL)
	}

	data, err := r.robots(ctx, parsed.Scheme, parsed.Host)
	if err != nil {
		return true, 0, nil
	}

	group := data.FindGroup(r.agent)
	if group == nil {
		return true, 0, nil
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path), group.CrawlDelay, nil
}

func (r *RobotsChecker) robots(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	origin := scheme + "://" + host

	r.mu.RLock()
	data, ok := r.cache[origin]
	r.mu.RUnlock()
	if ok {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.mu.Lock()
	r.cache[origin] = data
	r.mu.Unlock()
	return data, nil
}

// NormalizeUserAgent reduces a user agent to its product token for
// robots.txt group matching
func NormalizeUserAgent(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) == 0 {
		return ua
	}
	return strings.Split(parts[0], "/")[0]
}
