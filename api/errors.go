package api

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is returned for any non-2xx response. The pipeline never
// interprets 402 or 403; callers use the helpers below.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("api: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func IsUnauthorized(err error) bool { return hasStatus(err, http.StatusUnauthorized) }

// IsPaymentRequired reports an insufficient-credits response.
func IsPaymentRequired(err error) bool { return hasStatus(err, http.StatusPaymentRequired) }

// IsForbidden reports a blocked-subscription response.
func IsForbidden(err error) bool { return hasStatus(err, http.StatusForbidden) }

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
