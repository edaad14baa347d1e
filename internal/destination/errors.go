package destination

import (
	"fmt"
	"net/http"
)

// NotFoundError indicates that no destination with the requested name exists
// for the resolved tenant.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("destination %q not found", e.Name)
}

// Status implements the HTTP status mapping used by the handlers.
func (e *NotFoundError) Status() (int, string) {
	return http.StatusNotFound, "destination not found"
}

// AccessError indicates that a destination could not be retrieved: an invalid
// strategy combination, a malformed calling context (e.g. a missing principal
// where one is required), missing or rejected credentials, or a failure
// talking to the configuration service.
type AccessError struct {
	Reason string
	Cause  error
}

func (e *AccessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("destination access denied: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("destination access denied: %s", e.Reason)
}

func (e *AccessError) Unwrap() error {
	return e.Cause
}

// Status implements the HTTP status mapping used by the handlers.
func (e *AccessError) Status() (int, string) {
	return http.StatusForbidden, e.Reason
}

func accessErrorf(format string, args ...any) *AccessError {
	return &AccessError{Reason: fmt.Sprintf(format, args...)}
}
