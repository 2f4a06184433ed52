package search

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/assay/internal/cache"
	"github.com/ppiankov/assay/internal/model"
)

const backendJSON = `{"results":[
 {"title":"Graphene <b>membranes</b>","url":"https://www.nature.com/articles/x1","snippet":"<p>Membranes &amp; salt</p><script>x()</script>","published_date":"2021-04-05","venue_type":"Journal"},
 {"title":"No URL","url":"  ","snippet":"dropped"},
 {"title":"Old preprint","url":"https://arxiv.org/abs/1","snippet":"old","published_date":"2009"},
 {"title":"Blog","url":"https://blog.example.com/p","snippet":"plain text","published_date":"2023-01-02T10:00:00Z","venue_type":"blog"}
]}`

type backend struct {
	srv      *httptest.Server
	searches int32
	robots   string
	status   int
	lastQ    atomic.Value
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{status: http.StatusOK}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			if b.robots == "" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(b.robots))
			return
		}
		atomic.AddInt32(&b.searches, 1)
		b.lastQ.Store(r.URL.RawQuery)
		if b.status != http.StatusOK {
			w.WriteHeader(b.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(backendJSON))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) service(t *testing.T, opts ...HTTPOption) *HTTPService {
	t.Helper()
	cfg := model.DefaultConfig().Search
	cfg.BaseURL = b.srv.URL + "/api/search"
	cfg.RequestsPerSecond = 0
	opts = append([]HTTPOption{WithHTTPClient(b.srv.Client())}, opts...)
	s, err := NewHTTPService(cfg, opts...)
	require.NoError(t, err)
	return s
}

func TestHTTPService_Search(t *testing.T) {
	b := newBackend(t)
	s := b.service(t)

	results, err := s.Search(context.Background(), Request{Query: "graphene desalination", MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "Graphene membranes", results[0].Title)
	assert.Equal(t, "Membranes & salt", results[0].Snippet)
	assert.Equal(t, "journal", results[0].VenueType)
	require.NotNil(t, results[0].PublishedDate)
	assert.Equal(t, 2021, results[0].PublishedDate.Year())
	assert.Equal(t, "https://blog.example.com/p", results[2].URL)

	assert.Contains(t, b.lastQ.Load().(string), "q=graphene+desalination")
	assert.Contains(t, b.lastQ.Load().(string), "limit=10")
}

func TestHTTPService_DateRangeAndLimit(t *testing.T) {
	b := newBackend(t)
	s := b.service(t)

	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	results, err := s.Search(context.Background(), Request{
		Query:      "graphene",
		MaxResults: 1,
		DateRange:  &DateRange{From: from},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://www.nature.com/articles/x1", results[0].URL)
	assert.Contains(t, b.lastQ.Load().(string), "from=2020-01-01")

	results, err = s.Search(context.Background(), Request{Query: "graphene", DateRange: &DateRange{From: from}})
	require.NoError(t, err)
	assert.Len(t, results, 2, "the 2009 preprint falls outside the range")
}

func TestHTTPService_Cache(t *testing.T) {
	b := newBackend(t)
	s := b.service(t, WithCache(cache.NewMemoryCache(time.Minute, time.Minute), 0))

	for i := 0; i < 3; i++ {
		results, err := s.Search(context.Background(), Request{Query: "graphene", MaxResults: 5})
		require.NoError(t, err)
		assert.Len(t, results, 3)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.searches))

	_, err := s.Search(context.Background(), Request{Query: "graphene", MaxResults: 4})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&b.searches), "different limit is a different cache key")
}

func TestHTTPService_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			b := newBackend(t)
			b.status = tt.status
			_, err := b.service(t).Search(context.Background(), Request{Query: "q"})
			require.Error(t, err)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.Code)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestHTTPService_RobotsDisallow(t *testing.T) {
	b := newBackend(t)
	b.robots = "User-agent: *\nDisallow: /api/\n"

	_, err := b.service(t).Search(context.Background(), Request{Query: "q"})
	require.ErrorIs(t, err, ErrDisallowed)
	assert.False(t, IsTransient(err))
	assert.Zero(t, atomic.LoadInt32(&b.searches))
}

func TestHTTPService_BadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	cfg := model.DefaultConfig().Search
	cfg.BaseURL = srv.URL
	s, err := NewHTTPService(cfg, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = s.Search(context.Background(), Request{Query: "q"})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestNewHTTPService_Validation(t *testing.T) {
	cfg := model.DefaultConfig().Search
	_, err := NewHTTPService(cfg)
	assert.Error(t, err)

	cfg.BaseURL = "not a url"
	_, err = NewHTTPService(cfg)
	assert.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(&TransientError{Err: errors.New("flaky")}))
	assert.True(t, IsTransient(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, IsTransient(errors.New("bad request")))
}

func TestCleanSnippet(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain   text\n here", "plain text here"},
		{"<p>one</p><p>two</p>", "one two"},
		{"a<br/>b", "a b"},
		{"<style>p{}</style>Visible &lt;tag&gt;", "Visible <tag>"},
		{"<b>bold</b>face", "boldface"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanSnippet(tt.in), tt.in)
	}
}

func TestFixtureService(t *testing.T) {
	f := NewFixtureService([]FixtureEntry{
		{Match: []string{"graphene"}, Result: Result{Title: "A", URL: "https://a"}},
		{Match: []string{"graphene criticism"}, Result: Result{Title: "B", URL: "https://b"}},
		{Result: Result{Title: "Any", URL: "https://any"}},
	}, nil)

	got, err := f.Search(context.Background(), Request{Query: "Graphene membrane criticism"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].Title)

	got, err = f.Search(context.Background(), Request{Query: "graphene theory", MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "Any"}, []string{got[0].Title, got[1].Title})

	got, err = f.Search(context.Background(), Request{Query: "unrelated", MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFixtureService_Outage(t *testing.T) {
	f := NewFixtureService(
		[]FixtureEntry{{Result: Result{URL: "https://x"}}},
		[]FixtureOutage{{Match: []string{"flaky"}, Failures: 2}, {Match: []string{"down"}}},
	)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.Search(ctx, Request{Query: "flaky query"})
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	}
	got, err := f.Search(ctx, Request{Query: "flaky query"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	for i := 0; i < 5; i++ {
		_, err = f.Search(ctx, Request{Query: "down again"})
		assert.Error(t, err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.Search(cancelled, Request{Query: "anything"})
	assert.ErrorIs(t, err, context.Canceled)
}
