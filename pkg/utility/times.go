package utility

import (
	"fmt"
	"time"
)

var (
	// PSE publishes prices by Polish business day
	plLocation = func() *time.Location {
		loc, err := time.LoadLocation("Europe/Warsaw")
		if err != nil {
			panic(fmt.Errorf("failed to load warsaw location: %w", err))
		}
		return loc
	}()
)
