package mqtt

import "errors"

// ErrNotConnected is returned when the broker session is down.
var ErrNotConnected = errors.New("mqtt: not connected")
