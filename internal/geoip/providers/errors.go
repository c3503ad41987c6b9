package providers

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for lookup providers.
type ErrorCategory string

const (
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorUnavailable covers connection failures and 5xx responses.
	ErrorUnavailable ErrorCategory = "unavailable"

	// ErrorBadData means the provider answered with something that is not a
	// country code.
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorNotFound means the provider has no country for the address.
	ErrorNotFound ErrorCategory = "not_found"

	ErrorRateLimited ErrorCategory = "rate_limited"
)

// ProviderError wraps provider failures with a normalized category.
type ProviderError struct {
	Category   ErrorCategory
	ProviderID string
	Message    string
	Underlying error
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.ProviderID, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.ProviderID, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

func NewProviderError(category ErrorCategory, providerID, message string, underlying error) *ProviderError {
	return &ProviderError{
		Category:   category,
		ProviderID: providerID,
		Message:    message,
		Underlying: underlying,
	}
}

// GetCategory extracts the category from err, defaulting to unavailable.
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorUnavailable
}
