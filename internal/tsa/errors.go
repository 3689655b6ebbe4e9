package tsa

import "errors"

var (
	// ErrMalformedRequest reports a request that fails RFC 3161 validation,
	// including a digest whose length does not match its algorithm.
	ErrMalformedRequest = errors.New("malformed timestamp request")

	// ErrAuthorityUnavailable reports that the timestamp authority cannot
	// sign: missing or undecryptable key material. Never retried.
	ErrAuthorityUnavailable = errors.New("timestamp authority unavailable")

	// ErrTransientAuthority reports that all retry attempts against the
	// authority were exhausted.
	ErrTransientAuthority = errors.New("transient timestamp authority failure")
)
