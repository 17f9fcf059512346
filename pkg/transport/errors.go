package transport

import "errors"

// ErrBusClosed is returned by Send once the Bus has been Closed.
var ErrBusClosed = errors.New("transport: bus is closed")
