package domain

import (
	"errors"
	"net/url"
)

// ShortLink is the view of one shortened URL assembled from the store.
// It is not a single stored record: the target, the reverse index entry and
// the click counter live under separate keys that share the identifier.
type ShortLink struct {
	ID     string // Short identifier (e.g., "2n9c")
	Target string // The original URL to redirect to
	Clicks int64  // Number of successful resolutions
}

// Domain errors. Callers tell them apart with errors.Is, so every error the
// engine returns wraps exactly one of these.
var (
	// ErrInvalidURL is returned when a URL does not use the http or https scheme.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrNotFound is returned when an identifier has no target mapping.
	// It is an expected outcome, not a failure of the store.
	ErrNotFound = errors.New("short link not found")

	// ErrConfiguration is the parent of every configuration error.
	ErrConfiguration = errors.New("configuration error")

	// ErrNoReplicas is returned when the read replica set is empty.
	ErrNoReplicas = configError("no read replicas configured")

	// ErrInvalidNodeAddress is returned for a node address that is not
	// "host" or "host:port".
	ErrInvalidNodeAddress = configError("invalid node address")

	// ErrStoreUnavailable is returned when a store call failed or timed out.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// configError builds a sentinel that also matches ErrConfiguration.
func configError(msg string) error {
	return &kindError{msg: msg, parent: ErrConfiguration}
}

type kindError struct {
	msg    string
	parent error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.parent }

// Hostname returns the host part of the link target, or an empty string if
// the target does not parse. Used to show where a short link leads.
func (l *ShortLink) Hostname() string {
	u, err := url.Parse(l.Target)
	if err != nil {
		return ""
	}
	return u.Host
}
