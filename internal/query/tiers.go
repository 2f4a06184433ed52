package query

import (
	"net"
	"net/url"
	"strings"

	"github.com/ppiankov/assay/internal/model"
)

// TierClassifier maps a search result to a source tier using the venue type
// the backend reports and an allowlist of hosts
type TierClassifier struct {
	venues   map[string]model.SourceTier
	peer     []string
	preprint []string
	social   []string
}

// NewTierClassifier creates a classifier; nil config uses the defaults
func NewTierClassifier(cfg *model.TierConfig) *TierClassifier {
	if cfg == nil {
		cfg = &model.DefaultConfig().Tiers
	}

	c := &TierClassifier{
		venues:   make(map[string]model.SourceTier, len(cfg.VenueMap)),
		peer:     normalizeHosts(cfg.PeerReviewedHosts),
		preprint: normalizeHosts(cfg.PreprintHosts),
		social:   normalizeHosts(cfg.SocialHosts),
	}
	for venue, tierName := range cfg.VenueMap {
		tier, err := model.ParseSourceTier(tierName)
		if err != nil {
			continue
		}
		c.venues[strings.ToLower(strings.TrimSpace(venue))] = tier
	}
	return c
}

// Classify returns the result's tier. A known venue type wins over the host;
// listed hosts match themselves and their subdomains; anything else with a
// usable URL is general_web, and results without one are unknown.
func (c *TierClassifier) Classify(rawURL, venueType string) model.SourceTier {
	if tier, ok := c.venues[strings.ToLower(strings.TrimSpace(venueType))]; ok {
		return tier
	}

	host := hostname(rawURL)
	if host == "" {
		return model.TierUnknown
	}

	switch {
	case matchHost(host, c.peer):
		return model.TierPeerReviewed
	case matchHost(host, c.preprint):
		return model.TierPreprint
	case matchHost(host, c.social):
		return model.TierSocial
	default:
		return model.TierGeneralWeb
	}
}

func hostname(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return ""
	}
	host := parsed.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func matchHost(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func normalizeHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "www.")
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}
