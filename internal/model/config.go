package model

import "time"

// Config is the complete assay configuration. Tags serve both viper
// (mapstructure) and config file rendering (yaml).
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Planner  PlannerConfig  `yaml:"planner" mapstructure:"planner"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Tiers    TierConfig     `yaml:"tiers" mapstructure:"tiers"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// AnalysisConfig controls session creation and the phase loop
type AnalysisConfig struct {
	Extraordinariness float64 `yaml:"extraordinariness" mapstructure:"extraordinariness"` // Default when a brief leaves it unrated
	MaxLoopCount      int     `yaml:"max_loop_count" mapstructure:"max_loop_count"`
	MinIdeaLength     int     `yaml:"min_idea_length" mapstructure:"min_idea_length"`
}

// PlannerConfig controls query generation
type PlannerConfig struct {
	MaxQueriesPerStrategy int      `yaml:"max_queries_per_strategy" mapstructure:"max_queries_per_strategy"`
	SimilarityThreshold   float64  `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MaxKeyTerms           int      `yaml:"max_key_terms" mapstructure:"max_key_terms"`
	MaxResults            int      `yaml:"max_results" mapstructure:"max_results"`
	RankDecay             float64  `yaml:"rank_decay" mapstructure:"rank_decay"`
	Domains               []string `yaml:"domains" mapstructure:"domains"`
}

// SearchConfig controls the search backend and fetch behaviour
type SearchConfig struct {
	Backend           string        `yaml:"backend" mapstructure:"backend"` // fixture, http, none
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"` // Per query
	Retries           int           `yaml:"retries" mapstructure:"retries"`
	Concurrency       int           `yaml:"concurrency" mapstructure:"concurrency"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy         string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy           string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// TierConfig is the allowlist mapping venues and hosts to source tiers
type TierConfig struct {
	VenueMap          map[string]string `yaml:"venue_map" mapstructure:"venue_map"` // venueType -> tier
	PeerReviewedHosts []string          `yaml:"peer_reviewed_hosts" mapstructure:"peer_reviewed_hosts"`
	PreprintHosts     []string          `yaml:"preprint_hosts" mapstructure:"preprint_hosts"`
	SocialHosts       []string          `yaml:"social_hosts" mapstructure:"social_hosts"`
}

// BucketThresholds are the exclusive upper bounds of the first four buckets
type BucketThresholds struct {
	VeryLow  float64 `yaml:"very_low" mapstructure:"very_low"`
	Low      float64 `yaml:"low" mapstructure:"low"`
	Moderate float64 `yaml:"moderate" mapstructure:"moderate"`
	High     float64 `yaml:"high" mapstructure:"high"`
}

// ScoringConfig parameterizes the default confidence update policy
type ScoringConfig struct {
	Thresholds           BucketThresholds `yaml:"thresholds" mapstructure:"thresholds"`
	FallacyPenalty       float64          `yaml:"fallacy_penalty" mapstructure:"fallacy_penalty"`
	ContradictionPenalty float64          `yaml:"contradiction_penalty" mapstructure:"contradiction_penalty"`
	RootTruthWeight      float64          `yaml:"root_truth_weight" mapstructure:"root_truth_weight"`
}

// CacheConfig controls the search response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// StoreConfig controls the session archive
type StoreConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// LLMConfig controls the optional narrative statement
type LLMConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama or empty
	Model          string `yaml:"model" mapstructure:"model"`
	APIKey         string `yaml:"-" mapstructure:"api_key"` // From environment only
	BaseURL        string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout        int    `yaml:"timeout" mapstructure:"timeout"` // Seconds
	MaxTokens      int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	StrictEvidence bool   `yaml:"strict_evidence" mapstructure:"strict_evidence"`
}

// LogConfig selects the logger mode
type LogConfig struct {
	Mode string `yaml:"mode" mapstructure:"mode"` // development, production, nop
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"` // Empty disables the endpoint
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Extraordinariness: 0.5,
			MaxLoopCount:      1,
			MinIdeaLength:     8,
		},
		Planner: PlannerConfig{
			MaxQueriesPerStrategy: 5,
			SimilarityThreshold:   0.8,
			MaxKeyTerms:           6,
			MaxResults:            10,
			RankDecay:             0.25,
		},
		Search: SearchConfig{
			Backend:           "fixture",
			Timeout:           10 * time.Second,
			Retries:           2,
			Concurrency:       4,
			RequestsPerSecond: 2,
			Burst:             4,
			UserAgent:         "Assay/0.1 (+https://github.com/ppiankov/assay)",
			MaxBodyBytes:      2_000_000,
			RespectRobots:     true,
		},
		Tiers: TierConfig{
			VenueMap: map[string]string{
				"journal":    string(TierPeerReviewed),
				"conference": string(TierPeerReviewed),
				"preprint":   string(TierPreprint),
				"repository": string(TierPreprint),
				"news":       string(TierGeneralWeb),
				"blog":       string(TierGeneralWeb),
				"forum":      string(TierSocial),
				"social":     string(TierSocial),
			},
			PeerReviewedHosts: []string{
				"nature.com", "science.org", "sciencedirect.com", "springer.com",
				"wiley.com", "cell.com", "pnas.org", "acm.org", "ieee.org",
				"nih.gov", "plos.org", "thelancet.com", "nejm.org",
			},
			PreprintHosts: []string{
				"arxiv.org", "biorxiv.org", "medrxiv.org", "ssrn.com",
				"osf.io", "chemrxiv.org", "psyarxiv.com", "researchsquare.com",
			},
			SocialHosts: []string{
				"twitter.com", "x.com", "reddit.com", "facebook.com",
				"mastodon.social", "linkedin.com", "youtube.com", "tiktok.com",
			},
		},
		Scoring: ScoringConfig{
			Thresholds: BucketThresholds{
				VeryLow:  0.10,
				Low:      0.25,
				Moderate: 0.65,
				High:     0.90,
			},
			FallacyPenalty:       0.5,
			ContradictionPenalty: 0.5,
			RootTruthWeight:      1.0,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Store: StoreConfig{
			Enabled: true,
		},
		LLM: LLMConfig{
			Timeout:        30,
			MaxTokens:      800,
			StrictEvidence: true,
		},
		Log: LogConfig{
			Mode: "development",
		},
	}
}
