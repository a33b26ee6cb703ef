package llm

import (
	"fmt"

	"github.com/starford/dastan/internal/apperr"
)

// maxDetailBytes caps how much of a provider error body is kept for logs.
const maxDetailBytes = 2048

// ProviderError is returned when the provider answers with a non-2xx status.
// Error() never includes the provider's body; use Detail for server-side logs.
type ProviderError struct {
	Status int
	detail string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.Status)
}

// Detail returns the (truncated) raw provider body.
func (e *ProviderError) Detail() string { return e.detail }

func (e *ProviderError) Unwrap() error { return apperr.ErrProvider }

func (e *ProviderError) retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// TransportError wraps a failure to reach the provider at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "provider unreachable: " + e.Err.Error()
}

func (e *TransportError) Unwrap() []error {
	return []error{apperr.ErrTransport, e.Err}
}

// MalformedError is returned when the envelope or the model text is not usable JSON.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed json: %s: %v", e.Reason, e.Err)
	}
	return "malformed json: " + e.Reason
}

func (e *MalformedError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperr.ErrMalformedJSON}
	}
	return []error{apperr.ErrMalformedJSON, e.Err}
}

func truncate(b []byte) string {
	if len(b) <= maxDetailBytes {
		return string(b)
	}
	return string(b[:maxDetailBytes]) + "...(truncated)"
}
