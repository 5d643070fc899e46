// Package oracle provides uniform clients for external formula evaluation
// providers. Each provider owns its own transport; responses are normalized
// at this boundary into a numeric value or a categorized error.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/propflow/veritas/internal/model"
)

// ErrorCategory classifies a failed oracle call for recording and voting.
type ErrorCategory string

// Error categories.
const (
	ErrTimeout   ErrorCategory = "timeout"
	ErrTransport ErrorCategory = "transport"
	ErrAuth      ErrorCategory = "auth"
	ErrQuota     ErrorCategory = "quota"
	ErrMalformed ErrorCategory = "malformed"
)

// Evaluation is a normalized successful oracle response.
type Evaluation struct {
	Value     float64
	CostUnits float64 // tokens or provider-native cost proxy
}

// CallError wraps a provider failure with its category.
type CallError struct {
	Err      error
	Category ErrorCategory
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// NewCallError creates a categorized call error.
func NewCallError(category ErrorCategory, err error) *CallError {
	return &CallError{Category: category, Err: err}
}

// Categorize maps an evaluation error onto its category. Unrecognized errors
// are treated as transport failures.
func Categorize(err error) ErrorCategory {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrTransport
}

// Client defines the interface for oracle evaluation providers.
type Client interface {
	// Name identifies the provider in attempt results and call records.
	Name() string
	// Evaluate computes the formula's numeric result.
	Evaluate(ctx context.Context, formula model.Formula) (Evaluation, error)
}

// Config holds configuration for a single oracle provider.
type Config struct {
	Provider    string
	Name        string // instance name; defaults to Provider
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	RateLimit   int // requests per minute
	Timeout     time.Duration
}
