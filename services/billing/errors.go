package billing

import (
	"errors"
	"fmt"
)

// ErrNoContributionMapping is returned when billing is attempted for a
// grade+year that has no contribution mapping rows. Callers must seed the
// mapping via GetOrCreateMappings first; treating a missing mapping as
// "owe nothing" would silently under-bill.
var ErrNoContributionMapping = errors.New("no contribution mapping for grade and school year")

// ErrInvalidYearTransition is returned when a year transition would clone a
// duplicate row or the target year cannot be resolved.
var ErrInvalidYearTransition = errors.New("invalid school year transition")

// ErrConcurrentBalanceConflict is returned after a lock conflict during
// payment allocation was retried once and failed again.
var ErrConcurrentBalanceConflict = errors.New("concurrent balance update conflict, please retry")

// PaymentExceedsBalanceError carries the computed remaining balance so the
// treasurer sees exactly how much can still be paid.
type PaymentExceedsBalanceError struct {
	ContributionID uint
	SchoolYearID   uint
	Requested      float64
	Remaining      float64
}

func (e *PaymentExceedsBalanceError) Error() string {
	return fmt.Sprintf("payment of %.2f exceeds remaining balance of %.2f", e.Requested, e.Remaining)
}

// IsPaymentExceedsBalance reports whether err is a PaymentExceedsBalanceError.
func IsPaymentExceedsBalance(err error) bool {
	var e *PaymentExceedsBalanceError
	return errors.As(err, &e)
}
