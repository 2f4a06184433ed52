package model

// Signal is a diagnostic annotation with transparent scoring data
type Signal struct {
	Type        SignalType     `json:"type"`                // Signal classification
	Severity    SignalSeverity `json:"severity"`            // info, warning, critical
	Dimension   Dimension      `json:"dimension,omitempty"` // Set for per-dimension signals
	Description string         `json:"description"`         // Human-readable description
	Data        map[string]any `json:"data,omitempty"`      // Formula inputs and outputs
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalPrior            SignalType = "prior"             // Prior from extraordinariness
	SignalEvidenceBalance  SignalType = "evidence_balance"  // Supporting vs contradicting mass
	SignalTierDistribution SignalType = "tier_distribution" // Source quality mix
	SignalStructural       SignalType = "structural"        // Graph state adjustment
	SignalNoEvidence       SignalType = "no_evidence"       // Dimension assessed on prior alone
	SignalEvidenceGap      SignalType = "evidence_gap"      // Queries that failed
	SignalOpenQuestions    SignalType = "open_questions"    // Unresolved clarifying questions
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
