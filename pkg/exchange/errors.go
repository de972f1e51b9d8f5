package exchange

import "errors"

// Sentinel errors used to classify exchange failures. Wrap with fmt.Errorf
// ("%w") so callers can test with errors.Is.
var (
	// ErrCredential marks invalid or malformed API credentials. Fatal for the
	// session; never retried.
	ErrCredential = errors.New("exchange: invalid credentials")

	// ErrTransport marks network or gateway failures. Streaming subscriptions
	// retry these with backoff; one-shot calls surface them to the caller.
	ErrTransport = errors.New("exchange: transport failure")
)
