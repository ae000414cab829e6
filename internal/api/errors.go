package api

import "fmt"

// APIError is a non-2xx response from the backend. Message and Detail
// mirror the two error envelopes the backend uses; either may be empty.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Text())
}

// Text returns the human-readable reason, preferring message over detail.
func (e *APIError) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Detail
}
