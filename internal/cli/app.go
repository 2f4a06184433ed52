package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/assay/internal/brief"
	"github.com/ppiankov/assay/internal/cache"
	"github.com/ppiankov/assay/internal/llm"
	"github.com/ppiankov/assay/internal/logger"
	"github.com/ppiankov/assay/internal/metrics"
	"github.com/ppiankov/assay/internal/model"
	"github.com/ppiankov/assay/internal/pipeline"
	"github.com/ppiankov/assay/internal/query"
	"github.com/ppiankov/assay/internal/search"
	"github.com/ppiankov/assay/internal/store"
)

// app holds what one CLI invocation shares across sessions: the search
// backend, the narrator and the archive
type app struct {
	cfg      *model.Config
	log      *logger.Logger
	http     search.Service // Shared by every session when backend is http
	narrator *llm.Narrator
	archive  *store.Store
}

type appOptions struct {
	noCache bool
	noStore bool
}

func newApp(cfg *model.Config, log *logger.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, log: log}

	switch strings.ToLower(cfg.Search.Backend) {
	case "http":
		var httpOpts []search.HTTPOption
		httpOpts = append(httpOpts, search.WithLogger(log))
		if cfg.Cache.Enabled && !opts.noCache {
			dir := cfg.Cache.Dir
			if dir == "" {
				dir = filepath.Join(defaultDataDir(), "cache")
			}
			c := cache.NewLayeredCache(cfg.Cache.MemoryTTL, expandHome(dir), cfg.Cache.DiskTTL)
			httpOpts = append(httpOpts, search.WithCache(c, cfg.Cache.DiskTTL))
		}
		svc, err := search.NewHTTPService(cfg.Search, httpOpts...)
		if err != nil {
			return nil, err
		}
		a.http = svc
	case "fixture", "none", "":
	default:
		return nil, fmt.Errorf("unknown search backend %q (supported: fixture, http, none)", cfg.Search.Backend)
	}

	narrator, err := llm.NewNarrator(llm.ConfigFromModel(cfg.LLM, cfg.Search), log)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	a.narrator = narrator

	if cfg.Store.Enabled && !opts.noStore {
		path := cfg.Store.Path
		if path == "" {
			path = filepath.Join(defaultDataDir(), "sessions.db")
		}
		archive, err := store.Open(expandHome(path))
		if err != nil {
			return nil, err
		}
		a.archive = archive
	}
	return a, nil
}

func (a *app) Close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.log.Warn("close archive", "error", err)
		}
	}
	a.log.Sync()
}

// AnalyzeFile loads a brief and analyzes it
func (a *app) AnalyzeFile(ctx context.Context, path string) (*model.AnalysisSession, error) {
	b, err := brief.Load(path)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, b)
}

// Analyze runs one brief through the pipeline and archives the finalized
// session. A cancelled session is archived too, marked incomplete.
func (a *app) Analyze(ctx context.Context, b *brief.Brief) (*model.AnalysisSession, error) {
	opts := []pipeline.Option{
		pipeline.WithClarifier(b),
		pipeline.WithDecomposer(b),
		pipeline.WithLogger(a.log),
		pipeline.WithFetcherOptions(query.WithStanceOracle(b)),
	}
	if a.narrator != nil {
		opts = append(opts, pipeline.WithNarrator(a.narrator))
	}

	c := pipeline.New(a.cfg, a.service(b), opts...)
	s, runErr := c.Analyze(ctx, b.Idea, b.ExtraordinarinessOr(a.cfg.Analysis.Extraordinariness))
	if s == nil || !s.IsFinalized() || a.archive == nil {
		return s, runErr
	}

	// The caller's context may be the reason the run stopped
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.archive.Save(saveCtx, s); err != nil && !errors.Is(err, store.ErrAlreadyArchived) {
		return s, errors.Join(runErr, fmt.Errorf("archive session: %w", err))
	}
	return s, runErr
}

func (a *app) service(b *brief.Brief) search.Service {
	switch strings.ToLower(a.cfg.Search.Backend) {
	case "http":
		return a.http
	case "fixture", "":
		return b.SearchService()
	default:
		return nil
	}
}

// briefFromIdea builds a brief holding only an idea statement
func briefFromIdea(idea string, extraordinariness *float64) (*brief.Brief, error) {
	doc := map[string]any{"idea": idea}
	if extraordinariness != nil {
		doc["extraordinariness"] = *extraordinariness
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return brief.Parse(data)
}

// serveMetrics exposes /metrics until the returned stop function is called.
// An empty address disables the endpoint.
func serveMetrics(addr string, log *logger.Logger) (stop func(), err error) {
	if addr == "" {
		return func() {}, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "error", err)
		}
	}()
	log.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func newLogger(cfg *model.Config) (*logger.Logger, error) {
	mode := cfg.Log.Mode
	if !verbose && mode == "development" {
		// Keep the terminal quiet unless asked
		mode = "nop"
	}
	return logger.New(mode)
}
