// Package apperror defines the typed errors shared by the reconciliation, order and payout
// components. Callers match them with errors.Is / errors.As.
package apperror

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories when a lookup has no result.
	ErrNotFound = errors.New("not found")

	// ErrOrderNotPending is returned when a transition is attempted on an order that has
	// already left the Pending state. It must abort the enclosing unit of work.
	ErrOrderNotPending = errors.New("order is not pending")

	// ErrDuplicateTransaction is returned when a provider transaction id was already recorded.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
)

// ValidationError represents a request rejected before any state was created:
// cooldown violations, amounts below the minimum, insufficient balance.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// ExtractionError describes a proof-of-payment or notification field that could not be read.
// It never aborts an order; it downgrades it to manual review.
type ExtractionError struct {
	Source string
	Field  string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: could not extract %s: %s", e.Source, e.Field, e.Reason)
}

// ExternalAPIError wraps a failure reported by a collaborator such as the trading API,
// the OCR engine or the messaging gateway.
type ExternalAPIError struct {
	Operation string
	Code      string
	Message   string
	Err       error
}

func (e *ExternalAPIError) Error() string {
	switch {
	case e.Code != "" && e.Err != nil:
		return fmt.Sprintf("%s failed [%s]: %s: %v", e.Operation, e.Code, e.Message, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s failed [%s]: %s", e.Operation, e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
	default:
		return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
	}
}

func (e *ExternalAPIError) Unwrap() error {
	return e.Err
}

// UserMessage returns the text that is safe to relay to an end user.
func (e *ExternalAPIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "the payment service is temporarily unavailable"
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
