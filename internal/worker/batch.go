package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/assay/internal/model"
)

// Analyzer runs one analysis from a brief file to a finalized session
type Analyzer interface {
	AnalyzeFile(ctx context.Context, path string) (*model.AnalysisSession, error)
}

// SessionResult is the outcome of one brief in a batch
type SessionResult struct {
	Path    string
	Session *model.AnalysisSession
	Error   error
}

// GetError returns the error from the analysis
func (r *SessionResult) GetError() error {
	return r.Error
}

// BatchRunner analyzes independent briefs in parallel. Each session is owned
// by exactly one goroutine for its lifetime.
type BatchRunner struct {
	analyzer    Analyzer
	concurrency int
}

// NewBatchRunner creates a batch runner
func NewBatchRunner(analyzer Analyzer, concurrency int) *BatchRunner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchRunner{
		analyzer:    analyzer,
		concurrency: concurrency,
	}
}

// Run analyzes every path and returns results in input order. A failed brief
// does not stop the others; per-brief errors are reported in the results.
func (b *BatchRunner) Run(ctx context.Context, paths []string) []*SessionResult {
	results := make([]*SessionResult, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, path := range paths {
		g.Go(func() error {
			session, err := b.analyzer.AnalyzeFile(gctx, path)
			mu.Lock()
			results[i] = &SessionResult{Path: path, Session: session, Error: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ReadBriefList resolves a batch source into brief paths. A directory yields
// its *.yaml and *.yml files; any other file is read as a list with one path
// per line, relative to the list's directory.
func ReadBriefList(source string) ([]string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", source, err)
	}
	if info.IsDir() {
		return globBriefs(source)
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	base := filepath.Dir(source)
	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return paths, nil
}

func globBriefs(dir string) ([]string, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}
