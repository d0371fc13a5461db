package ess

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up flags for the FoxESS client and returns it. The client
// is usable once lflag.Configure has been called.
func Configured() *FoxESS {
	f := newFoxESS()

	apiURL := lflag.String("foxess-api-url", f.baseURL, "Base URL of the FoxESS cloud OpenAPI")
	token := lflag.RequiredString("foxess-token", "FoxESS OpenAPI key")
	sn := lflag.String("foxess-sn", "", "Inverter serial number (auto-discovered if empty)")
	lang := lflag.String("foxess-lang", f.lang, "Language sent with FoxESS requests")
	tz := lflag.String("timezone", f.timeZone, "Timezone the inverter's days are reported in")
	timeout := lflag.Duration("foxess-timeout", time.Minute, "Timeout for a single FoxESS request")
	baseDelay := lflag.Duration("retry-base-delay", f.retry.BaseDelay, "Delay multiplied by the attempt number between retries")
	attempts := f.retry.Attempts
	lflag.JSON(&attempts, "retry-attempts", attempts, "Number of attempts for each remote call")
	authErrnos := DefaultAuthErrnos
	lflag.JSON(&authErrnos, "foxess-auth-errnos", authErrnos, "JSON list of errno values that mean the signature was rejected")

	lflag.Do(func() {
		loc, err := time.LoadLocation(*tz)
		if err != nil {
			panic(fmt.Errorf("failed to load timezone %q: %w", *tz, err))
		}
		f.baseURL = *apiURL
		f.token = *token
		f.sn = *sn
		f.lang = *lang
		f.timeZone = *tz
		f.location = loc
		f.client.Timeout = *timeout
		f.retry.BaseDelay = *baseDelay
		f.retry.Attempts = attempts
		f.setAuthErrnos(authErrnos)
		if err := f.Validate(); err != nil {
			panic(err)
		}
	})

	return f
}
