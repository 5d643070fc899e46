package model

import "time"

// ProviderResult is one oracle's answer within a consensus round: either a
// numeric value or a categorized error, never both.
type ProviderResult struct {
	Value         *float64 `json:"value,omitempty"`
	ErrorCategory string   `json:"error_category,omitempty"`
}

// Responded reports whether the provider produced a usable numeric answer.
func (r ProviderResult) Responded() bool {
	return r.Value != nil && r.ErrorCategory == ""
}

// ValidationAttempt is the immutable record of one full consensus round for a
// formula. Attempt numbers are 1-based and strictly increasing per formula.
type ValidationAttempt struct {
	CreatedAt            time.Time
	Results              map[string]ProviderResult
	ID                   string
	FormulaID            string
	Recommendation       string
	AttemptNumber        int
	ProcessingTime       time.Duration
	ConsensusScore       float64
	ConsensusAchieved    bool
	RequiresManualReview bool
}

// OracleCallRecord captures one provider round-trip within an attempt. A timed
// out call is recorded with Success=false, never omitted.
type OracleCallRecord struct {
	RequestedAt   time.Time
	RespondedAt   time.Time
	ID            string
	AttemptID     string
	Provider      string
	ErrorCategory string
	CostMetric    float64
	Success       bool
}

// Latency is the provider round-trip duration derived from the timestamps.
func (r *OracleCallRecord) Latency() time.Duration {
	return r.RespondedAt.Sub(r.RequestedAt)
}
