package transport

import "errors"

// ErrConnectionClosed is returned (and completes pending sends/receives)
// once a Connection has entered CLOSED (spec 4.B).
var ErrConnectionClosed = errors.New("transport: connection closed")
