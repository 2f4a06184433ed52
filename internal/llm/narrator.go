package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/assay/internal/logger"
	"github.com/ppiankov/assay/internal/model"
)

// CitationLeakError reports URLs a narrative cited from outside the
// session's evidence
type CitationLeakError struct {
	URLs []string
}

func (e *CitationLeakError) Error() string {
	return fmt.Sprintf("narrative cited %d URL(s) outside the evidence: %s", len(e.URLs), strings.Join(e.URLs, ", "))
}

// Narrator writes confidence statements with a Provider
type Narrator struct {
	provider Provider
	cfg      Config
	log      *logger.Logger
}

// NewNarrator creates a narrator for the configured provider. It returns nil
// without error when no provider is configured.
func NewNarrator(cfg Config, log *logger.Logger) (*Narrator, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	return NewNarratorWithProvider(p, cfg, log), nil
}

// NewNarratorWithProvider wraps an existing provider
func NewNarratorWithProvider(p Provider, cfg Config, log *logger.Logger) *Narrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Narrator{provider: p, cfg: cfg, log: log}
}

// Narrate asks the provider for a statement about the assessed session.
// Cited URLs are checked against the evidence: strict mode rejects the
// narrative, otherwise each stray URL becomes a warning.
func (n *Narrator) Narrate(ctx context.Context, s *model.AnalysisSession) (*model.Narrative, error) {
	allowed := EvidenceURLs(s)

	resp, err := n.provider.Summarize(ctx, SummarizeRequest{
		System: systemPrompt,
		Prompt: BuildPrompt(s, allowed),
		Model:  n.cfg.Model,
	})
	if err != nil {
		return nil, err
	}

	allow := make(map[string]bool, len(allowed))
	for _, u := range allowed {
		allow[u] = true
	}

	cited := extractURLs(resp.Summary)
	var leaked []string
	for _, u := range cited {
		if !allow[u] {
			leaked = append(leaked, u)
		}
	}

	out := &model.Narrative{
		Provider:  n.provider.Name(),
		Model:     resp.Model,
		Text:      resp.Summary,
		CitedURLs: cited,
	}
	if len(leaked) > 0 {
		if n.cfg.StrictEvidence {
			return nil, &CitationLeakError{URLs: leaked}
		}
		for _, u := range leaked {
			out.Warnings = append(out.Warnings, "cited URL not in evidence: "+u)
		}
	}

	n.log.Debug("narrative generated",
		"provider", out.Provider,
		"model", out.Model,
		"tokens", resp.TokensUsed,
		"cited", len(cited),
		"leaked", len(leaked))
	return out, nil
}
