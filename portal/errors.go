package portal

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from the portal. Detail is the server's
// {"detail": ...} message, or the status text when the body had none.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal: %d %s", e.Status, e.Detail)
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsRejection reports whether the server refused the request on its
// merits (any 4xx). Transport failures and 5xx are not rejections.
func IsRejection(err error) bool {
	s := statusOf(err)
	return s >= 400 && s < 500
}

func IsConflict(err error) bool     { return statusOf(err) == http.StatusConflict }
func IsNotFound(err error) bool     { return statusOf(err) == http.StatusNotFound }
func IsUnauthorized(err error) bool { return statusOf(err) == http.StatusUnauthorized }
