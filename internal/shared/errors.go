package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Error taxonomy for remote and local storage
	ErrTransport = errors.New("transport error")
	ErrAuth      = errors.New("authentication error")
	ErrStorage   = errors.New("storage error")
	ErrConflict  = errors.New("conflict")
	ErrNotFound  = errors.New("not found")

	// Session errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")

	// Membership errors
	ErrAlreadyMember = fmt.Errorf("already a member")
	ErrNotMember     = fmt.Errorf("not a member")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// APIError is returned for non-2xx responses from the metadata API or the backend.
// It unwraps to one of [ErrTransport], [ErrAuth], [ErrNotFound] or [ErrConflict].
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

// NewAPIError builds an [APIError] classified by status code.
func NewAPIError(status int, message string) *APIError {
	return &APIError{StatusCode: status, Message: message, Err: ClassifyStatus(status)}
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: HTTP %d %s", e.Err, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%v: HTTP %d: %s", e.Err, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status code to a sentinel of the error taxonomy.
func ClassifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return ErrTransport
	}
}

// StatusCode extracts the HTTP status from an [APIError] chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
