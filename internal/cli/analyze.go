package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/assay/internal/brief"
	"github.com/ppiankov/assay/internal/model"
	"github.com/ppiankov/assay/internal/report"
)

// flags shared by analyze and batch
var (
	outJSON     string
	outMD       string
	timeout     time.Duration
	backend     string
	searchURL   string
	maxLoops    int
	noCache     bool
	noStore     bool
	noFooter    bool
	llmProvider string
	llmModel    string
	metricsAddr string
)

var (
	ideaFlag              string
	extraordinarinessFlag float64
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [brief.yaml]",
	Short: "Analyze one idea and generate a confidence report",
	Long: `Analyze runs an idea through the evaluation pipeline:
- Crystallize the idea and raise clarifying questions
- Map existing knowledge with planned search queries
- Decompose it into sub-claims with logical dependencies
- Evaluate the dependency graph and gather targeted evidence
- Assess five confidence dimensions from tiered evidence

The idea comes from a brief file (idea, clarifications, sub-claims,
dependencies, evidence and optional offline search results) or from --idea.

Example:
  assay analyze brief.yaml
  assay analyze brief.yaml --json report.json --md report.md
  assay analyze --idea "Graphene membranes can desalinate seawater cheaply" --backend none
  assay analyze brief.yaml --backend http --search-url https://search.example/api`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&ideaFlag, "idea", "", "idea statement (instead of a brief file)")
	analyzeCmd.Flags().Float64Var(&extraordinarinessFlag, "extraordinariness", 0.5, "extraordinariness in [0,1] (overrides the brief)")

	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path")
	analyzeCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path")
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall analysis timeout")
	addPipelineFlags(analyzeCmd)
}

// addPipelineFlags registers the flags that override config for a run
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&backend, "backend", "", "search backend: fixture, http, none (default from config)")
	cmd.Flags().StringVar(&searchURL, "search-url", "", "search backend base URL for the http backend")
	cmd.Flags().IntVar(&maxLoops, "max-loops", -1, "maximum clarification loops (default from config)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the search response cache")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not archive sessions")
	cmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "narrative provider (openai, anthropic, ollama)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "narrative model name")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
}

// runConfig loads config and applies pipeline flag overrides
func runConfig(cmd *cobra.Command) (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Search.Backend = backend
	}
	if flags.Changed("search-url") {
		cfg.Search.BaseURL = searchURL
		if !flags.Changed("backend") {
			cfg.Search.Backend = "http"
		}
	}
	if flags.Changed("max-loops") {
		if maxLoops < 0 {
			return nil, fmt.Errorf("--max-loops must be >= 0")
		}
		cfg.Analysis.MaxLoopCount = maxLoops
	}
	if flags.Changed("llm-provider") {
		cfg.LLM.Provider = llmProvider
		cfg.LLM.APIKey = providerKey(llmProvider)
	}
	if flags.Changed("llm-model") {
		cfg.LLM.Model = llmModel
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
	return cfg, nil
}

// signalContext cancels on SIGINT/SIGTERM so an interrupted analysis is
// still finalized and reported
func signalContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		stop()
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	b, err := loadBrief(cmd, args)
	if err != nil {
		return err
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

	ctx, cancel := signalContext(cmd.Context(), timeout)
	defer cancel()

	if verbose {
		fmt.Fprintf(os.Stderr, "Analyzing: %s\n", b.Idea)
		fmt.Fprintf(os.Stderr, "Backend:   %s\n", cfg.Search.Backend)
		fmt.Fprintln(os.Stderr)
	}

	s, runErr := a.Analyze(ctx, b)
	if s == nil {
		return fmt.Errorf("analysis failed: %w", runErr)
	}
	if runErr != nil && !errors.Is(runErr, model.ErrSessionCancelled) {
		return fmt.Errorf("analysis failed: %w", runErr)
	}

	r := report.NewRenderer(!noFooter)
	if outJSON != "" {
		if err := r.RenderJSON(s, outJSON); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ JSON report: %s\n", outJSON)
	}
	if outMD != "" {
		if err := r.RenderMarkdown(s, outMD); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Markdown report: %s\n", outMD)
	}
	if outJSON == "" && outMD == "" {
		fmt.Fprint(cmd.OutOrStdout(), r.Markdown(s))
	}
	report.WriteSummary(os.Stderr, s)

	// Partial results were written; still report the interruption
	return runErr
}

func loadBrief(cmd *cobra.Command, args []string) (*brief.Brief, error) {
	var e *float64
	if cmd.Flags().Changed("extraordinariness") {
		if extraordinarinessFlag < 0 || extraordinarinessFlag > 1 {
			return nil, fmt.Errorf("--extraordinariness %v outside [0,1]", extraordinarinessFlag)
		}
		e = &extraordinarinessFlag
	}

	switch {
	case len(args) == 1 && ideaFlag != "":
		return nil, fmt.Errorf("give either a brief file or --idea, not both")
	case len(args) == 1:
		b, err := brief.Load(args[0])
		if err != nil {
			return nil, err
		}
		if e != nil {
			b.Extraordinariness = e
		}
		return b, nil
	case ideaFlag != "":
		return briefFromIdea(ideaFlag, e)
	default:
		return nil, fmt.Errorf("a brief file or --idea is required")
	}
}
