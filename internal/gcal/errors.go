package gcal

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// The provider boundary translates raw API failures into this closed
// set so callers branch with errors.Is instead of matching codes or
// message substrings.
var (
	// ErrTokenExpired covers both an expired incremental sync token and
	// an expired pagination token; the fetcher knows which mode it was in.
	ErrTokenExpired = errors.New("gcal: token expired")
	// ErrNotFound covers a deleted calendar or event.
	ErrNotFound = errors.New("gcal: resource not found")
	// ErrTransient covers rate limiting and provider-side failures that
	// are worth retrying.
	ErrTransient = errors.New("gcal: transient provider error")
)

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch {
	case gerr.Code == http.StatusGone:
		return fmt.Errorf("%w: %s", ErrTokenExpired, gerr.Message)
	case gerr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, gerr.Message)
	case gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d: %s", ErrTransient, gerr.Code, gerr.Message)
	default:
		return err
	}
}
