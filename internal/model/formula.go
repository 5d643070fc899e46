// Package model defines the core domain models used throughout the application.
package model

import "time"

// FormulaKind identifies the arithmetic shape of an extracted calculation.
type FormulaKind string

// Formula kind constants.
const (
	KindSum       FormulaKind = "sum"
	KindAverage   FormulaKind = "average"
	KindRatio     FormulaKind = "ratio"
	KindOccupancy FormulaKind = "occupancy"
	KindCustom    FormulaKind = "custom"
)

// VerificationStatus indicates where a formula sits in its validation lifecycle.
type VerificationStatus string

// Verification status constants.
const (
	StatusPending      VerificationStatus = "pending"
	StatusValidated    VerificationStatus = "validated"
	StatusRejected     VerificationStatus = "rejected"
	StatusManualReview VerificationStatus = "manual_review"
)

// IsTerminal reports whether no further validation attempts may be made.
func (s VerificationStatus) IsTerminal() bool {
	return s == StatusValidated || s == StatusRejected || s == StatusManualReview
}

// Formula represents a candidate calculation extracted from one scraped page.
type Formula struct {
	CreatedAt      time.Time
	Variables      map[string]float64
	ID             string
	PageID         string
	PageType       string
	Expression     string
	SourceSnippet  string
	Kind           FormulaKind
	Status         VerificationStatus
	ExpectedResult *float64
}

// PriorityTier is the coarse scheduling class derived from a formula's page type.
type PriorityTier string

// Priority tiers, highest first.
const (
	TierHigh   PriorityTier = "HIGH"
	TierMedium PriorityTier = "MEDIUM"
	TierLow    PriorityTier = "LOW"
)

// Rank returns a sortable weight; lower sorts first.
func (t PriorityTier) Rank() int {
	switch t {
	case TierHigh:
		return 0
	case TierMedium:
		return 1
	default:
		return 2
	}
}

// TierForPageType maps a page's semantic type onto a priority tier.
func TierForPageType(pageType string) PriorityTier {
	switch pageType {
	case "rent_roll_report", "income_statement", "delinquency_report":
		return TierHigh
	case "account_totals", "property_dashboard":
		return TierMedium
	default:
		return TierLow
	}
}

// Tier returns the formula's scheduling tier.
func (f *Formula) Tier() PriorityTier {
	return TierForPageType(f.PageType)
}
