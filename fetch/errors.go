package fetch

import "fmt"

// AllMirrorsFailedError is the terminal failover outcome: every configured
// mirror was attempted exactly once and none produced a usable result.
type AllMirrorsFailedError struct {
	Handle  string
	Mirrors int
}

func (e *AllMirrorsFailedError) Error() string {
	return fmt.Sprintf("all %d mirrors failed for @%s", e.Mirrors, e.Handle)
}

// TransportError wraps a page-level HTTP failure so failover can tell it
// apart from cancellation
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
