package mail

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors classifying failures from the protocol adapters and the
// store.  Workers use Classify to pick retry vs dead-letter vs skip.
var (
	// ErrAuth indicates the remote server rejected our credentials.
	// Terminal for the session; never retried automatically.
	ErrAuth = errors.New("authentication rejected")

	// ErrTransient indicates a timeout or connection failure.  Retryable
	// by the caller with backoff; the adapter does not retry internally.
	ErrTransient = errors.New("transient network failure")

	// ErrDataQuality indicates a malformed message that cannot produce a
	// usable Email record.  The offending message is skipped.
	ErrDataQuality = errors.New("malformed message")

	// ErrConflict indicates a local optimistic mutation raced a
	// concurrent sync.  Resolved by field-level merge; remote wins.
	ErrConflict = errors.New("conflicting concurrent update")
)

// Kind buckets an error into the retry taxonomy.
type Kind int

// Error kinds, in rough order of severity.
const (
	KindUnknown Kind = iota
	KindAuth
	KindTransient
	KindDataQuality
	KindConflict
)

// Classify maps an error onto the taxonomy.  Network timeouts and context
// deadline expiry count as transient even when not wrapped explicitly.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrDataQuality):
		return KindDataQuality
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindUnknown
}
