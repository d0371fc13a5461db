package energy

import (
	"errors"
	"fmt"

	"github.com/wattledger/wattledger/pkg/types"
)

// NoDataError is returned when every tier failed for a date. The result
// returned alongside it is still a valid all-zero series.
type NoDataError struct {
	Date     types.Date
	Quantity types.Quantity
	Errs     []error
}

func (e *NoDataError) Error() string {
	if len(e.Errs) == 0 {
		return fmt.Sprintf("no %s data for %s", e.Quantity, e.Date)
	}
	return fmt.Sprintf("no %s data for %s: %v", e.Quantity, e.Date, errors.Join(e.Errs...))
}

func (e *NoDataError) Unwrap() []error {
	return e.Errs
}

// IsNoData reports whether err is a NoDataError.
func IsNoData(err error) bool {
	var nd *NoDataError
	return errors.As(err, &nd)
}
