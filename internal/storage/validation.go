package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/propflow/veritas/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrEmptySlice     = errors.New("slice cannot be empty")
	ErrInvalidStatus  = errors.New("invalid verification status")
	ErrInvalidFormula = errors.New("invalid formula")
	ErrInvalidAttempt = errors.New("invalid validation attempt")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateStatus ensures a verification status is one of the known values.
func validateStatus(status model.VerificationStatus) error {
	switch status {
	case model.StatusPending, model.StatusValidated, model.StatusRejected, model.StatusManualReview:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
}

// validateFormulas validates a slice of formulas.
func validateFormulas(formulas []model.Formula) error {
	if formulas == nil {
		return fmt.Errorf("%w: formulas", ErrNilParameter)
	}
	if len(formulas) == 0 {
		return fmt.Errorf("%w: formulas", ErrEmptySlice)
	}

	for i := range formulas {
		if err := validateFormula(&formulas[i]); err != nil {
			return fmt.Errorf("formula at index %d: %w", i, err)
		}
	}
	return nil
}

// validateFormula validates a single formula.
func validateFormula(f *model.Formula) error {
	if f == nil {
		return fmt.Errorf("%w: formula", ErrNilParameter)
	}
	if f.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidFormula)
	}
	if f.PageID == "" {
		return fmt.Errorf("%w: missing page ID", ErrInvalidFormula)
	}
	if strings.TrimSpace(f.Expression) == "" {
		return fmt.Errorf("%w: missing expression", ErrInvalidFormula)
	}
	if f.Status != "" {
		if err := validateStatus(f.Status); err != nil {
			return err
		}
	}
	return nil
}

// validateAttempt validates a validation attempt before persistence.
func validateAttempt(attempt *model.ValidationAttempt) error {
	if attempt == nil {
		return fmt.Errorf("%w: attempt", ErrNilParameter)
	}
	if attempt.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidAttempt)
	}
	if attempt.FormulaID == "" {
		return fmt.Errorf("%w: missing formula ID", ErrInvalidAttempt)
	}
	if attempt.ConsensusScore < 0 || attempt.ConsensusScore > 1 {
		return fmt.Errorf("%w: consensus score must be between 0 and 1", ErrInvalidAttempt)
	}
	return nil
}
