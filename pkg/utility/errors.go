package utility

import (
	"errors"
	"fmt"
)

// PricingGapError is returned when there is no price for the requested date
// or month.
type PricingGapError struct {
	Source string
	// Period is the requested date or month.
	Period string
	Reason string
}

func (e *PricingGapError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("no %s price for %s: %s", e.Source, e.Period, e.Reason)
	}
	return fmt.Sprintf("no %s price for %s", e.Source, e.Period)
}

// IsPricingGap reports whether err is a PricingGapError.
func IsPricingGap(err error) bool {
	var pe *PricingGapError
	return errors.As(err, &pe)
}
