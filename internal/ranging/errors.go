package ranging

import "errors"

// Sentinel errors for the ranging core. They are plain errors returned
// (usually wrapped with %w) as they are; no code converts them to a
// RangingError.
var (
	ErrInvalidConstraintRange = errors.New("ranging: fastest interval exceeds slowest interval")
	ErrNoUpdateRateClassFits  = errors.New("ranging: no update rate class fits constraint window")
	ErrTechnologyDisabled     = errors.New("ranging: technology not enabled locally")
	ErrAdapterAlreadyStarted  = errors.New("ranging: adapter already started")
	ErrAdapterAlreadyStopped  = errors.New("ranging: adapter already stopped")
	ErrSessionNotIdle         = errors.New("ranging: session is not idle")
	ErrSessionClosed          = errors.New("ranging: session is closed")
	ErrMeasurementLimitZero   = errors.New("ranging: measurement limit reached")
)
