package codec

import "errors"

// Sentinel validation errors for the OOB wire codec (spec 4.A, spec 8
// "codec rejection"). Each corresponds to exactly one clause of the wire
// format's validation rules.
var (
	ErrTruncated           = errors.New("codec: message truncated")
	ErrUnknownVersion      = errors.New("codec: unknown message version")
	ErrUnknownMessageType  = errors.New("codec: unknown message type")
	ErrUnknownBitSet       = errors.New("codec: unknown bit set in bitmap")
	ErrBlockSizeMismatch   = errors.New("codec: tech block size exceeds remaining buffer")
	ErrBlockTooSmall       = errors.New("codec: tech block smaller than its own header")
	ErrInvalidCountryCode  = errors.New("codec: country code is not two uppercase ASCII letters")
	ErrInvalidSessionKeyLen = errors.New("codec: session key length must be 8, 16, or 32")
	ErrBufTooSmall         = errors.New("codec: destination buffer too small")
	ErrInvalidBTNameLength = errors.New("codec: RTT service name exceeds buffer")
)
