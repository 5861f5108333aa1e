package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrAuthExpired      = fmt.Errorf("authorization expired, sign in again")
	ErrUnauthorized     = fmt.Errorf("upstream rejected bearer token")

	// Gateway errors
	ErrRateLimited    = fmt.Errorf("rate limit retries exhausted")
	ErrNetwork        = fmt.Errorf("network failure after retries")
	ErrUpstreamReject = fmt.Errorf("upstream rejected request")
	ErrNotFound       = fmt.Errorf("resource not found")

	// Pipeline errors
	ErrPartialWrite = fmt.Errorf("playlist partially written")

	// Input validation errors
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)

// UpstreamError carries the status code and decoded error body of a
// permanent upstream rejection.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream rejected request: status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("upstream rejected request: status %d", e.Status)
}

// Unwrap maps 404 to ErrNotFound and every other status to ErrUpstreamReject
// so callers can match with errors.Is.
func (e *UpstreamError) Unwrap() error {
	if e.Status == 404 {
		return ErrNotFound
	}
	return ErrUpstreamReject
}

// PartialWriteError reports a publish run that created the playlist but
// failed mid-append. Written counts whole URIs persisted upstream; the
// playlist identified by PlaylistID is left in place as the resumption point.
type PartialWriteError struct {
	PlaylistID string
	Written    int
	Total      int
	Cause      error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("playlist %s partially written (%d/%d tracks): %v", e.PlaylistID, e.Written, e.Total, e.Cause)
}

func (e *PartialWriteError) Unwrap() error { return ErrPartialWrite }

// AsUpstream returns the UpstreamError wrapped in err, if any.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
