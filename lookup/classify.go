package lookup

import (
	"context"
	"errors"

	"github.com/use-agent/placafipe/browser"
	"github.com/use-agent/placafipe/models"
)

// Classify maps any error raised inside a lookup attempt to a LookupError.
// Errors that already carry a kind pass through untouched.
//
//   - engine shut down or never started → FATAL_FAILURE
//   - deadline or cancellation          → TIMEOUT
//   - anything else (transport failure, target crash, protocol error)
//     → TRANSIENT_FAILURE
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var le *models.LookupError
	if errors.As(err, &le) {
		return err
	}

	switch {
	case errors.Is(err, browser.ErrShutdown), errors.Is(err, browser.ErrNoBrowser):
		return models.NewLookupError(models.KindFatal, "browser engine unavailable", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.NewLookupError(models.KindTimeout, "lookup timed out", err)
	default:
		return models.NewLookupError(models.KindTransient, "browser or transport failure", err)
	}
}
