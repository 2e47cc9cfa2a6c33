package retry

import "net/http"

// Outcome is the result of a fetch. Exactly one of Success, RetryableFailure
// or TerminalFailure; callers type-switch on it.
type Outcome interface {
	outcome()
}

// Success is any response whose status is not in the retryable set,
// including non-2xx statuses such as 404. The body has been fully read.
type Success struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is 2xx.
func (s Success) OK() bool {
	return s.Status >= 200 && s.Status < 300
}

// RetryableFailure is a single attempt that may succeed if repeated.
// Fetch never returns it; it is only seen per attempt.
type RetryableFailure struct {
	Status int         // 0 for transport failures
	Header http.Header // Response headers, used for Retry-After
	Err    error
}

// TerminalFailure is the final result once retries are exhausted or the
// context is done. Err is a *HTTPError or *NetworkError.
type TerminalFailure struct {
	Status int
	Err    error
}

func (Success) outcome()          {}
func (RetryableFailure) outcome() {}
func (TerminalFailure) outcome()  {}

func (f TerminalFailure) Error() string {
	if f.Err == nil {
		return StatusMessage(f.Status)
	}
	return f.Err.Error()
}

func (f TerminalFailure) Unwrap() error { return f.Err }

// AsError converts an Outcome into an error. Success yields nil, even when
// the status is not 2xx; callers decide whether that is acceptable.
func AsError(o Outcome) error {
	switch v := o.(type) {
	case TerminalFailure:
		return v
	case RetryableFailure:
		return v.Err
	default:
		return nil
	}
}
