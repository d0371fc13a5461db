package normalize

import "fmt"

// ShapeError is returned when a payload decoded successfully but no
// recognizable series could be extracted from it.
type ShapeError struct {
	Source string
	Kind   string
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("no series in %s payload from %s: %s", e.Kind, e.Source, e.Reason)
	}
	return fmt.Sprintf("no series in %s payload from %s", e.Kind, e.Source)
}

// Extract returns the series in shape, or a ShapeError naming source if
// there are none.
func Extract(shape Shape, source string) ([]RawSeries, error) {
	series := shape.Series()
	if len(series) == 0 {
		err := &ShapeError{Source: source, Kind: shape.Kind()}
		if u, ok := shape.(Unrecognized); ok {
			err.Reason = u.Reason
		}
		return nil, err
	}
	return series, nil
}
