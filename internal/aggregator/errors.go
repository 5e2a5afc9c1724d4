package aggregator

import "errors"

var (
	// ErrSessionNotFound indicates no session is open for the given peer.
	ErrSessionNotFound = errors.New("aggregator: session not found")

	// ErrDuplicateSession indicates a session is already open for the
	// given peer.
	ErrDuplicateSession = errors.New("aggregator: duplicate session for peer")
)
