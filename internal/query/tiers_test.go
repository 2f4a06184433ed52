package query

import (
	"testing"

	"github.com/ppiankov/assay/internal/model"
)

func TestTierClassifier_Defaults(t *testing.T) {
	classifier := NewTierClassifier(nil)

	tests := []struct {
		url      string
		venue    string
		expected model.SourceTier
		desc     string
	}{
		{"https://www.nature.com/articles/s41586", "", model.TierPeerReviewed, "peer-reviewed host with www"},
		{"https://journals.plos.org/plosone/article", "", model.TierPeerReviewed, "peer-reviewed subdomain"},
		{"https://arxiv.org/abs/2401.00001", "", model.TierPreprint, "preprint host"},
		{"https://www.biorxiv.org:443/content/1", "", model.TierPreprint, "preprint host with port"},
		{"https://old.reddit.com/r/physics", "", model.TierSocial, "social subdomain"},
		{"https://example.com/blog/post", "", model.TierGeneralWeb, "unlisted host"},
		{"https://notnature.com/x", "", model.TierGeneralWeb, "suffix without dot boundary"},
		{"https://example.com/paper", "Journal", model.TierPeerReviewed, "venue overrides host"},
		{"https://arxiv.org/abs/1", "news", model.TierGeneralWeb, "venue overrides preprint host"},
		{"https://example.com/x", "podcast", model.TierGeneralWeb, "unknown venue falls back to host"},
		{"", "", model.TierUnknown, "no URL"},
		{"not a url", "", model.TierUnknown, "relative path"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := classifier.Classify(tt.url, tt.venue); got != tt.expected {
				t.Errorf("Classify(%q, %q) = %v, want %v", tt.url, tt.venue, got, tt.expected)
			}
		})
	}
}

func TestTierClassifier_CustomConfig(t *testing.T) {
	classifier := NewTierClassifier(&model.TierConfig{
		VenueMap: map[string]string{
			" Thesis ": "preprint",
			"bogus":    "gold_standard",
		},
		PeerReviewedHosts: []string{"WWW.Journal.Example"},
		SocialHosts:       []string{"  "},
	})

	if got := classifier.Classify("https://x.org", "thesis"); got != model.TierPreprint {
		t.Errorf("expected preprint for thesis venue, got %v", got)
	}
	if got := classifier.Classify("https://x.org", "bogus"); got != model.TierGeneralWeb {
		t.Errorf("invalid tier names should be ignored, got %v", got)
	}
	if got := classifier.Classify("https://journal.example/vol1", ""); got != model.TierPeerReviewed {
		t.Errorf("expected normalized host to match, got %v", got)
	}
	if got := classifier.Classify("https://nature.com/a", ""); got != model.TierGeneralWeb {
		t.Errorf("custom config should replace defaults, got %v", got)
	}
}
