// Package llm produces the optional narrative confidence statement for an
// assessed session. The narrative is written after scoring and never feeds
// back into it; every URL it cites must come from the session's evidence.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/assay/internal/evidence"
	"github.com/ppiankov/assay/internal/model"
	"github.com/ppiankov/assay/internal/util"
)

// Provider is a text-generation backend
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize generates text for the request
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)
}

// SummarizeRequest is one generation call
type SummarizeRequest struct {
	System    string
	Prompt    string
	Model     string // Empty uses the provider default
	MaxTokens int
}

// SummarizeResponse is the generated text and its accounting
type SummarizeResponse struct {
	Summary    string
	Model      string
	TokensUsed int
}

// Config holds provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama" or empty for disabled
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  int // Seconds

	// StrictEvidence rejects a narrative that cites a URL outside the
	// session's evidence
	StrictEvidence bool
	MaxTokens      int

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// ConfigFromModel builds provider configuration. Proxy settings are shared
// with the search backend.
func ConfigFromModel(c model.LLMConfig, sc model.SearchConfig) Config {
	return Config{
		Provider:       c.Provider,
		Model:          c.Model,
		APIKey:         c.APIKey,
		BaseURL:        c.BaseURL,
		Timeout:        c.Timeout,
		StrictEvidence: c.StrictEvidence,
		MaxTokens:      c.MaxTokens,
		HTTPProxy:      sc.HTTPProxy,
		HTTPSProxy:     sc.HTTPSProxy,
		NoProxy:        sc.NoProxy,
	}
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

func (c Config) maxTokens(requested int) int {
	switch {
	case requested > 0:
		return requested
	case c.MaxTokens > 0:
		return c.MaxTokens
	default:
		return 800
	}
}

func (c Config) httpClient() *http.Client {
	client := util.NewHTTPClient(c.HTTPProxy, c.HTTPSProxy, c.NoProxy, 5)
	client.Timeout = c.timeout()
	return client
}

const systemPrompt = "You write confidence statements for an evidence assessment tool. " +
	"You describe how well an idea is supported; you never assert that it is true or false."

// maxPromptURLs caps the allowlist shown to the model
const maxPromptURLs = 20

// BuildPrompt describes the assessed session and the citation allowlist
func BuildPrompt(s *model.AnalysisSession, allowed []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a confidence statement for the idea below.\n\n")
	fmt.Fprintf(&b, "RULES:\n")
	fmt.Fprintf(&b, "1. Cite ONLY URLs from this list:%s\n", joinURLs(allowed))
	fmt.Fprintf(&b, "2. Do not cite or invent any other source.\n")
	fmt.Fprintf(&b, "3. Describe support quality per dimension; never call the idea true or false.\n")
	fmt.Fprintf(&b, "4. Say so explicitly where evidence is missing.\n\n")

	fmt.Fprintf(&b, "Idea: %s\n", s.IdeaStatement)
	fmt.Fprintf(&b, "Extraordinariness: %.2f\n", s.ExtraordinarinessScore)
	fmt.Fprintf(&b, "Evidence items: %d, failed queries: %d\n\n", len(s.Evidence), len(s.EvidenceGaps))

	fmt.Fprintf(&b, "Dimensions:\n")
	for _, d := range model.AllDimensions {
		if cd, ok := s.Dimensions[d]; ok {
			fmt.Fprintf(&b, "- %s: %.3f (%s) from %d items\n", d, cd.Posterior, cd.Bucket, cd.EvidenceCount)
		}
	}

	if n := len(s.Graph.Fallacies); n > 0 {
		fmt.Fprintf(&b, "\nCircular reasoning detected: %d\n", n)
		for _, f := range s.Graph.Fallacies {
			fmt.Fprintf(&b, "- %s\n", f.Description)
		}
	}
	if n := len(s.Graph.Contradictions); n > 0 {
		fmt.Fprintf(&b, "\nContradictions: %d\n", n)
	}
	if len(s.OpenQuestions) > 0 {
		fmt.Fprintf(&b, "\nUnresolved questions:\n")
		for _, q := range s.OpenQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}

	fmt.Fprintf(&b, "\nWrite 4-6 sentences.")
	return b.String()
}

// EvidenceURLs returns the distinct http(s) evidence sources of a session,
// best quality first
func EvidenceURLs(s *model.AnalysisSession) []string {
	items := s.EvidenceList()
	evidence.SortByQuality(items)

	seen := make(map[string]bool)
	var urls []string
	for _, item := range items {
		src := strings.TrimSpace(item.Source)
		if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
			continue
		}
		if !seen[src] {
			seen[src] = true
			urls = append(urls, src)
		}
	}
	return urls
}

func joinURLs(urls []string) string {
	if len(urls) == 0 {
		return "\n(no evidence URLs available)"
	}
	var b strings.Builder
	for i, u := range urls {
		if i == maxPromptURLs {
			fmt.Fprintf(&b, "\n... and %d more URLs", len(urls)-maxPromptURLs)
			break
		}
		fmt.Fprintf(&b, "\n- %s", u)
	}
	return b.String()
}

var urlPattern = regexp.MustCompile(`https?://[^\s\)\]>"']+`)

// extractURLs returns the distinct URLs in text, trailing punctuation trimmed
func extractURLs(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range urlPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
