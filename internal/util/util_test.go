package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.local:3128", "", "internal.example.com")

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/search", nil)
	u, err := proxy(req)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "proxy.local:3128", u.Host)

	req = httptest.NewRequest(http.MethodGet, "http://internal.example.com/x", nil)
	u, err = proxy(req)
	require.NoError(t, err)
	assert.Nil(t, u, "no_proxy hosts bypass the proxy")
}

func TestNewProxyFunc_SeparateHTTPS(t *testing.T) {
	proxy := NewProxyFunc("http://plain.local:80", "http://secure.local:443", "")
	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/", nil)
	u, err := proxy(req)
	require.NoError(t, err)
	assert.Equal(t, &url.URL{Scheme: "http", Host: "secure.local:443"}, u)
}

func TestNormalizeUserAgent(t *testing.T) {
	assert.Equal(t, "Assay", NormalizeUserAgent("Assay/0.1 (+https://github.com/ppiankov/assay)"))
	assert.Equal(t, "bot", NormalizeUserAgent("bot"))
	assert.Equal(t, "", NormalizeUserAgent(""))
}

func TestRobotsChecker(t *testing.T) {
	var robotsHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(&robotsHits, 1)
			_, _ = w.Write([]byte("User-agent: Assay\nDisallow: /private\nCrawl-delay: 2\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := NewRobotsChecker(srv.Client(), "Assay/0.1")
	ctx := context.Background()

	allowed, delay, err := checker.CanFetch(ctx, srv.URL+"/search?q=x")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 2*time.Second, delay)

	allowed, _, err = checker.CanFetch(ctx, srv.URL+"/private/data")
	require.NoError(t, err)
	assert.False(t, allowed)

	assert.Equal(t, int32(1), atomic.LoadInt32(&robotsHits), "robots.txt is cached per origin")
}

func TestRobotsChecker_MissingFileAllows(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	checker := NewRobotsChecker(srv.Client(), "Assay/0.1")
	allowed, delay, err := checker.CanFetch(context.Background(), srv.URL+"/anything")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, delay)
}

func TestRobotsChecker_BadURL(t *testing.T) {
	checker := NewRobotsChecker(nil, "Assay/0.1")
	_, _, err := checker.CanFetch(context.Background(), "/relative/only")
	assert.Error(t, err)
}
