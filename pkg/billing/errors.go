package billing

import (
	"errors"

	"github.com/platinummonkey/fxbill/pkg/gateway"
	"github.com/platinummonkey/fxbill/pkg/pricing"
	"github.com/platinummonkey/fxbill/pkg/rates"
)

var (
	ErrCustomerNotFound = errors.New("customer_not_found")
	ErrPeriodNotFound   = errors.New("period_not_found")
	ErrAlreadyPaid      = errors.New("already_paid")

	// Re-exported so callers can match every billing failure on this package
	ErrRateUnavailable = rates.ErrRateUnavailable
	ErrInvalidInput    = pricing.ErrInvalidInput
	ErrGateway         = gateway.ErrGateway
)

// IsRetryable reports whether retrying the same call could succeed
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, permanent := range []error{ErrAlreadyPaid, ErrInvalidInput, ErrCustomerNotFound, ErrPeriodNotFound} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}
