package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/assay/internal/cache"
	"github.com/ppiankov/assay/internal/logger"
	"github.com/ppiankov/assay/internal/metrics"
	"github.com/ppiankov/assay/internal/model"
	"github.com/ppiankov/assay/internal/util"
	"github.com/ppiankov/assay/internal/worker"
)

// HTTPService queries a JSON search backend:
//
//	GET {base}?q=...&limit=N[&from=YYYY-MM-DD][&to=YYYY-MM-DD]
//	{"results":[{"title","url","snippet","published_date","venue_type"}]}
//
// Responses are cached by request, requests are rate limited per host and
// the backend's robots.txt is honoured.
type HTTPService struct {
	base      *url.URL
	client    *http.Client
	limiter   *worker.Limiter
	robots    *util.RobotsChecker
	cache     cache.Cache
	cacheTTL  time.Duration
	userAgent string
	maxBytes  int64
	log       *logger.Logger
}

// HTTPOption configures an HTTPService
type HTTPOption func(*HTTPService)

// WithCache enables response caching; ttl 0 uses the cache's default
func WithCache(c cache.Cache, ttl time.Duration) HTTPOption {
	return func(s *HTTPService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithHTTPClient replaces the default proxy-aware client
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPService) { s.client = c }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) HTTPOption {
	return func(s *HTTPService) { s.log = l }
}

type httpResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Snippet       string `json:"snippet"`
		PublishedDate string `json:"published_date"`
		VenueType     string `json:"venue_type"`
	} `json:"results"`
}

// NewHTTPService creates a backend client from search config
func NewHTTPService(cfg model.SearchConfig, opts ...HTTPOption) (*HTTPService, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("search: base_url is required for the http backend")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("search: invalid base_url %q", cfg.BaseURL)
	}

	s := &HTTPService{
		base:      base,
		client:    util.NewHTTPClient(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy, 3),
		limiter:   worker.NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBodyBytes,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxBytes <= 0 {
		s.maxBytes = model.DefaultConfig().Search.MaxBodyBytes
	}
	if cfg.RespectRobots {
		s.robots = util.NewRobotsChecker(s.client, s.userAgent)
	}
	return s, nil
}

// Search runs one query. Callers bound it with a context deadline.
func (s *HTTPService) Search(ctx context.Context, req Request) ([]Result, error) {
	target := s.requestURL(req)
	key := cache.Key(target)

	if s.cache != nil {
		if raw, ok := s.cache.Get(key); ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			s.log.Debug("search cache hit", "query", req.Query)
			return s.decode(raw, req)
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	if s.robots != nil {
		allowed, delay, err := s.robots.CanFetch(ctx, target)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("search %s: %w", s.base.Host, ErrDisallowed)
		}
		s.limiter.ApplyCrawlDelay(target, delay)
	}
	if err := s.limiter.Wait(ctx, target); err != nil {
		return nil, err
	}

	raw, err := s.get(ctx, target)
	if err != nil {
		return nil, err
	}
	results, err := s.decode(raw, req)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(key, raw, s.cacheTTL); err != nil {
			s.log.Warn("search cache write failed", "error", err)
		}
	}
	return results, nil
}

func (s *HTTPService) requestURL(req Request) string {
	u := *s.base
	q := u.Query()
	q.Set("q", req.Query)
	if req.MaxResults > 0 {
		q.Set("limit", strconv.Itoa(req.MaxResults))
	}
	if req.DateRange != nil {
		if !req.DateRange.From.IsZero() {
			q.Set("from", req.DateRange.From.Format(time.DateOnly))
		}
		if !req.DateRange.To.IsZero() {
			q.Set("to", req.DateRange.To.Format(time.DateOnly))
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *HTTPService) get(ctx context.Context, target string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

func (s *HTTPService) decode(raw []byte, req Request) ([]Result, error) {
	var payload httpResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]Result, 0, len(payload.Results))
	for _, r := range payload.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		res := Result{
			Title:     CleanSnippet(r.Title),
			URL:       strings.TrimSpace(r.URL),
			Snippet:   CleanSnippet(r.Snippet),
			VenueType: strings.ToLower(strings.TrimSpace(r.VenueType)),
		}
		if t, ok := parseDate(r.PublishedDate); ok {
			res.PublishedDate = &t
		}
		if !inRange(res.PublishedDate, req.DateRange) {
			continue
		}
		results = append(results, res)
		if req.MaxResults > 0 && len(results) == req.MaxResults {
			break
		}
	}
	return results, nil
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly, "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// inRange keeps undated results; dated ones must fall inside the range
func inRange(published *time.Time, r *DateRange) bool {
	if r == nil || published == nil {
		return true
	}
	if !r.From.IsZero() && published.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && published.After(r.To) {
		return false
	}
	return true
}
