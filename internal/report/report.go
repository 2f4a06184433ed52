// Package report renders finalized analysis sessions as JSON and Markdown.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/assay/internal/evidence"
	"github.com/ppiankov/assay/internal/model"
)

// maxEvidenceRows caps the evidence table; the JSON record has everything
const maxEvidenceRows = 15

// Renderer writes session reports
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer. The footer states what the assessment
// does not claim.
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// WriteJSON writes the session record as indented JSON
func (r *Renderer) WriteJSON(w io.Writer, s *model.AnalysisSession) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return nil
}

// RenderJSON writes the session record to path
func (r *Renderer) RenderJSON(s *model.AnalysisSession, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteJSON(w, s) })
}

// RenderMarkdown writes the Markdown report to path
func (r *Renderer) RenderMarkdown(s *model.AnalysisSession, path string) error {
	return writeFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, r.Markdown(s))
		return err
	})
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	return write(f)
}

// Markdown renders the eight-section report
func (r *Renderer) Markdown(s *model.AnalysisSession) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Assay Report\n\n")
	writeIdeaSummary(&b, s)
	writeQuestions(&b, s)
	writeKnowledgeMap(&b, s)
	writeLogicalAnalysis(&b, s)
	writeEvidenceSummary(&b, s)
	writeMeritAssessment(&b, s)
	writeResearchDirections(&b, s)
	writeConfidenceStatement(&b, s)

	if r.includeFooter {
		fmt.Fprintf(&b, "---\n\n")
		fmt.Fprintf(&b, "*Assay reports how well an idea is supported by the evidence it found. ")
		fmt.Fprintf(&b, "It does not determine whether the idea is true.*\n")
	}
	return b.String()
}

func writeIdeaSummary(b *strings.Builder, s *model.AnalysisSession) {
	fmt.Fprintf(b, "## 1. Idea Summary\n\n")
	fmt.Fprintf(b, "> %s\n\n", s.IdeaStatement)
	fmt.Fprintf(b, "- **Session:** `%s`\n", s.ID)
	fmt.Fprintf(b, "- **Status:** %s\n", status(s))
	fmt.Fprintf(b, "- **Extraordinariness:** %.2f\n", s.ExtraordinarinessScore)
	fmt.Fprintf(b, "- **Clarification loops:** %d\n", s.LoopCount)
	fmt.Fprintf(b, "- **Created:** %s\n", s.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if s.FinalizedAt != nil {
		fmt.Fprintf(b, "- **Finalized:** %s\n", s.FinalizedAt.Format("2006-01-02 15:04:05 MST"))
	}
	b.WriteString("\n")
}

func status(s *model.AnalysisSession) string {
	switch {
	case s.Incomplete:
		if s.CancelReason != "" {
			return "incomplete (" + s.CancelReason + ")"
		}
		return "incomplete"
	case s.IsFinalized():
		return "complete"
	default:
		return "in progress (" + string(s.Phase) + ")"
	}
}

func writeQuestions(b *strings.Builder, s *model.AnalysisSession) {
	fmt.Fprintf(b, "## 2. Clarifying Questions\n\n")
	if len(s.OpenQuestions) == 0 && len(s.ResolvedQuestions) == 0 {
		fmt.Fprintf(b, "No clarifying questions were raised.\n\n")
		return
	}
	for _, q := range s.OpenQuestions {
		fmt.Fprintf(b, "- [ ] %s\n", q)
	}
	for _, q := range s.ResolvedQuestions {
		fmt.Fprintf(b, "- [x] %s\n", q)
	}
	b.WriteString("\n")
}

func writeKnowledgeMap(b *strings.Builder, s *model.AnalysisSession) {
	fmt.Fprintf(b, "## 3. Knowledge Map\n\n")
	fmt.Fprintf(b, "%d queries issued, %d evidence items collected, %d queries failed.\n\n",
		len(s.Queries), len(s.Evidence), len(s.EvidenceGaps))

	if len(s.Queries) > 0 {
		fmt.Fprintf(b, "**Queries:**\n\n")
		for _, q := range s.Queries {
			fmt.Fprintf(b, "- %s\n", q)
		}
		b.WriteString("\n")
	}

	if counts := tierCounts(s); len(counts) > 0 {
		fmt.Fprintf(b, "| Source tier | Items |\n")
		fmt.Fprintf(b, "|---|---|\n")
		for _, tc := range counts {
			fmt.Fprintf(b, "| %s | %d |\n", tc.tier, tc.n)
		}
		b.WriteString("\n")
	}

	if len(s.EvidenceGaps) > 0 {
		fmt.Fprintf(b, "**Evidence gaps:**\n\n")
		for _, g := range s.EvidenceGaps {
			fmt.Fprintf(b, "- `%s` (%s): %s after %d attempts\n", g.Query, g.Strategy, g.Reason, g.Attempts)
		}
		b.WriteString("\n")
	}
}

type tierCount struct {
	tier model.SourceTier
	n    int
}

func tierCounts(s *model.AnalysisSession) []tierCount {
	m := make(map[model.SourceTier]int)
	for _, item := range s.Evidence {
		m[item.Tier]++
	}
	out := make([]tierCount, 0, len(m))
	for t, n := range m {
		out = append(out, tierCount{tier: t, n: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if wi, wj := out[i].tier.Weight(), out[j].tier.Weight(); wi != wj {
			return wi > wj
		}
		return out[i].tier < out[j].tier
	})
	return out
}

func writeLogicalAnalysis(b *strings.Builder, s *model.AnalysisSession) {
	fmt.Fprintf(b, "## 4. Logical Analysis\n\n")

	fmt.Fprintf(b, "| Claim | Polarity | Truth | Origin |\n")
	fmt.Fprintf(b, "|---|---|---|---|\n")
	for _, id := range claimOrder(s) {
		c := s.Claims[id]
		text := escapeCell(c.Text)
		if id == s.RootClaimID {
			text = "**" + text + "** (root)"
		}
		origin := string(c.Origin)
		if origin == "" {
			origin = "-"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", text, c.Polarity, c.TruthValue, origin)
	}
	b.WriteString("\n")

	if len(s.Graph.Edges) > 0 {
		fmt.Fprintf(b, "**Dependencies:**\n\n")
		for _, e := range s.Graph.Edges {
			marker := ""
			if e.Status == model.EdgeCircular {
				marker = " *(circular, excluded from inference)*"
			}
			fmt.Fprintf(b, "- %s is %s for %s%s\n", claimText(s, e.From), e.Kind, claimText(s, e.To), marker)
		}
		b.WriteString("\n")
	}

	if len(s.Graph.Fallacies) == 0 && len(s.Graph.Contradictions) == 0 {
		fmt.Fprintf(b, "No fallacies or contradictions detected.\n\n")
		return
	}
	for _, f := range s.Graph.Fallacies {
		fmt.Fprintf(b, "- ⚠️ **%s:** %s\n", f.Kind, f.Description)
	}
	for _, c := range s.Graph.Contradictions {
		fmt.Fprintf(b, "- ❌ **contradiction:** %s is %s (%s) but %s derives %s (%s)\n",
			claimText(s, c.ClaimID), c.Existing.Value, c.Existing.Origin,
			c.Edge, c.Attempted.Value, c.Attempted.Origin)
	}
	b.WriteString("\n")
}

// claimOrder puts the root first, then the rest by id
func claimOrder(s *model.AnalysisSession) []string {
	ids := []string{}
	if _, ok := s.Claims[s.RootClaimID]; ok {
		ids = append(ids, s.RootClaimID)
	}
	for _, id := range s.ClaimIDs() {
		if id != s.RootClaimID {
			ids = append(ids, id)
		}
	}
	return ids
}

func claimText(s *model.AnalysisSession, id string) string {
	if c, ok := s.Claims[id]; ok {
		return "\"" + c.Text + "\""
	}
	return "`" + id + "`"
}

func writeEvidenceSummary(b *strings.Builder, s *model.AnalysisSession) {
	fmt.Fprintf(b, "## 5. Evidence Summary\n\n")
	items := s.EvidenceList()
	if len(items) == 0 {
		fmt.Fprintf(b, "No evidence was collected.\n\n")
		return
	}
	evidence.SortByQuality(items)

	var supporting, contradicting, neutral int
	for _, item := range items {
		switch item.Stance {
		case model.StanceSupporting:
			supporting++
		case model.StanceContradicting:
			contradicting++
		default:
			neutral++
		}
	}
	fmt.Fprintf(b, "%d supporting, %d contradicting, %d neutral.\n\n", supporting, contradicting, neutral)

	fmt.Fprintf(b, "| Tier | Stance | Strength | Claim | Source |\n")
	fmt.Fprintf(b, "|---|---|---|---|---|\n")
	for i, item := range items {
		if i == maxEvidenceRows {
			break
		}
		fmt.Fprintf(b, "| %s | %s | %.2f | %s | %s |\n",
			item.Tier, item.Stance, item.Strength, escapeCell(claimLabel(s, item.ClaimID)), sourceCell(item))
	}
	if len(items) > maxEvidenceRows {
		fmt.Fprintf(b, "\n*%d more items in the JSON report.*\n", len(items)-maxEvidenceRows)
	}
	b.WriteString("\n")
}

func claimLabel(s *model.AnalysisSession, id string) string {
	if id == s.RootClaimID {
		return "root"
	}
	if c, ok := s.Claims[id]; ok {
		return c.Text
	}
	return id
}

func sourceCell(item *model.EvidenceItem) string {
	title := item.Title
	if title == "" {
		title = item.Source
	}
	if strings.HasPrefix(item.Source, "http://") || strings.HasPrefix(item.Source, "https://") {
		return "[" + escapeCell(title) + "](" + item.Source + ")"
	}
	return escapeCell(title)
}

func writeMeritAssessment(b *strings.Builder, s *model.AnalysisSession) {
	fmt.Fprintf(b, "## 6. Merit Assessment\n\n")
	if len(s.Dimensions) == 0 {
		fmt.Fprintf(b, "Not assessed.\n\n")
		return
	}

	fmt.Fprintf(b, "| Dimension | Prior | Posterior | Bucket | Evidence | Structural |\n")
	fmt.Fprintf(b, "|---|---|---|---|---|---|\n")
	for _, d := range model.AllDimensions {
		cd, ok := s.Dimensions[d]
		if !ok {
			continue
		}
		fmt.Fprintf(b, "| %s | %.3f | %.3f | %s | %d | %+.2f |\n",
			d, cd.Prior, cd.Posterior, cd.Bucket, cd.EvidenceCount, cd.Structural)
	}
	b.WriteString("\n")

	if len(s.Signals) > 0 {
		fmt.Fprintf(b, "**Signals:**\n\n")
		for _, sig := range s.Signals {
			fmt.Fprintf(b, "- %s %s\n", severityIcon(sig.Severity), sig.Description)
		}
		b.WriteString("\n")
	}
}

func severityIcon(sev model.SignalSeverity) string {
	switch sev {
	case model.SeverityCritical:
		return "❌"
	case model.SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

func writeResearchDirections(b *strings.Builder, s *model.AnalysisSession) {
	fmt.Fprintf(b, "## 7. Research Directions\n\n")

	var lines []string
	for _, g := range s.EvidenceGaps {
		lines = append(lines, fmt.Sprintf("Retry the failed query `%s`", g.Query))
	}
	for _, q := range s.OpenQuestions {
		lines = append(lines, "Answer: "+q)
	}
	for _, d := range model.AllDimensions {
		if cd, ok := s.Dimensions[d]; ok && cd.EvidenceCount == 0 {
			lines = append(lines, fmt.Sprintf("Find evidence bearing on %s", d))
		}
	}
	for _, id := range claimOrder(s) {
		c := s.Claims[id]
		if id != s.RootClaimID && c.TruthValue == model.TruthUnknown && !hasEvidence(s, id) {
			lines = append(lines, fmt.Sprintf("Establish whether \"%s\" holds", c.Text))
		}
	}

	if len(lines) == 0 {
		fmt.Fprintf(b, "No open directions.\n\n")
		return
	}
	for _, l := range lines {
		fmt.Fprintf(b, "- %s\n", l)
	}
	b.WriteString("\n")
}

func hasEvidence(s *model.AnalysisSession, claimID string) bool {
	for _, item := range s.Evidence {
		if item.ClaimID == claimID {
			return true
		}
	}
	return false
}

func writeConfidenceStatement(b *strings.Builder, s *model.AnalysisSession) {
	fmt.Fprintf(b, "## 8. Confidence Statement\n\n")
	fmt.Fprintf(b, "%s\n\n", Statement(s))

	if n := s.Narrative; n != nil && n.Text != "" {
		fmt.Fprintf(b, "**Narrative** (%s", n.Provider)
		if n.Model != "" {
			fmt.Fprintf(b, "/%s", n.Model)
		}
		fmt.Fprintf(b, "):\n\n%s\n\n", n.Text)
		for _, w := range n.Warnings {
			fmt.Fprintf(b, "- ⚠️ %s\n", w)
		}
		if len(n.Warnings) > 0 {
			b.WriteString("\n")
		}
	}
}

// Statement is a one-paragraph summary derived from the dimension buckets
func Statement(s *model.AnalysisSession) string {
	if len(s.Dimensions) == 0 {
		return "No confidence assessment is available for this session."
	}

	var parts []string
	for _, d := range model.AllDimensions {
		if cd, ok := s.Dimensions[d]; ok {
			parts = append(parts, fmt.Sprintf("%s is %s (%.2f)", strings.ReplaceAll(string(d), "_", " "), strings.ReplaceAll(string(cd.Bucket), "_", " "), cd.Posterior))
		}
	}
	out := "Confidence: " + strings.Join(parts, "; ") + "."
	if len(s.Evidence) == 0 {
		out += " Every dimension rests on the prior alone."
	}
	if s.Incomplete {
		out += " The session was interrupted, so this assessment covers partial evidence only."
	}
	return out
}

// WriteSummary prints a short terminal summary
func WriteSummary(w io.Writer, s *model.AnalysisSession) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  %s\n", s.IdeaStatement)
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Session:   %s (%s)\n", s.ID, status(s))
	fmt.Fprintf(w, "  Evidence:  %d items, %d gaps\n", len(s.Evidence), len(s.EvidenceGaps))
	fmt.Fprintf(w, "  Fallacies: %d, contradictions: %d\n", len(s.Graph.Fallacies), len(s.Graph.Contradictions))
	fmt.Fprintf(w, "\n")
	for _, d := range model.AllDimensions {
		if cd, ok := s.Dimensions[d]; ok {
			fmt.Fprintf(w, "  %-22s %.3f  %s\n", d, cd.Posterior, cd.Bucket)
		}
	}
	fmt.Fprintf(w, "\n")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
