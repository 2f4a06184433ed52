package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/assay/internal/model"
	"github.com/ppiankov/assay/internal/report"
	"github.com/ppiankov/assay/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir|list-file>",
	Short: "Analyze many briefs in parallel",
	Long: `Batch analyzes independent briefs concurrently:
- Read briefs from a directory (*.yaml, *.yml) or a list file (one path per line)
- Run each analysis as its own session with a configurable worker count
- Write a JSON and Markdown report per brief

Example:
  assay batch ./briefs
  assay batch briefs.txt --concurrency 8 --output-dir ./reports
  assay batch ./briefs --timeout 30m --backend http`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent sessions")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./assay-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for the batch")
	addPipelineFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	source := args[0]

	paths, err := worker.ReadBriefList(source)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no briefs found in %s", source)
	}

	cfg, err := runConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, log, appOptions{noCache: noCache, noStore: noStore})
	if err != nil {
		return err
	}
	defer a.Close()

	stopMetrics, err := serveMetrics(cfg.Metrics.Addr, log)
	if err != nil {
		return err
	}
	defer stopMetrics()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Assay Batch Analysis\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Source:       %s (%d briefs)\n", source, len(paths))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Backend:      %s\n", cfg.Search.Backend)
	fmt.Fprintf(os.Stderr, "\n")

	ctx, cancel := signalContext(cmd.Context(), batchTimeout)
	defer cancel()

	results := worker.NewBatchRunner(a, concurrency).Run(ctx, paths)

	r := report.NewRenderer(!noFooter)
	var complete, partial, failed int
	used := make(map[string]int)

	for _, res := range results {
		if res.Session == nil || (res.Error != nil && !errors.Is(res.Error, model.ErrSessionCancelled)) {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Path, res.Error)
			continue
		}

		name := reportName(res.Path, used)
		if err := r.RenderJSON(res.Session, filepath.Join(outputDir, name+".json")); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", res.Path, err)
			continue
		}
		if err := r.RenderMarkdown(res.Session, filepath.Join(outputDir, name+".md")); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", res.Path, err)
			continue
		}

		if res.Session.Incomplete {
			partial++
			fmt.Fprintf(os.Stderr, "⚠ %s (incomplete: %s)\n", name, res.Session.CancelReason)
			continue
		}
		complete++
		fmt.Fprintf(os.Stderr, "✓ %s (empirical support: %s)\n", name, bucketOf(res.Session, model.DimensionEmpiricalSupport))
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:       %d briefs\n", len(results))
	fmt.Fprintf(os.Stderr, "  Complete:    %d\n", complete)
	fmt.Fprintf(os.Stderr, "  Incomplete:  %d\n", partial)
	fmt.Fprintf(os.Stderr, "  Failures:    %d\n", failed)
	fmt.Fprintf(os.Stderr, "  Output:      %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	if failed > 0 {
		return fmt.Errorf("%d of %d briefs failed", failed, len(results))
	}
	return nil
}

func bucketOf(s *model.AnalysisSession, d model.Dimension) string {
	if cd, ok := s.Dimensions[d]; ok {
		return string(cd.Bucket)
	}
	return "n/a"
}

// reportName derives a unique file stem from a brief path
func reportName(path string, used map[string]int) string {
	base := sanitizeFilename(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	used[base]++
	if n := used[base]; n > 1 {
		return fmt.Sprintf("%s-%d", base, n)
	}
	return base
}

// sanitizeFilename replaces characters that are unsafe in file names
func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "-",
	)
	s = replacer.Replace(strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		s = "report"
	}
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
