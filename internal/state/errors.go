package state

import "errors"

// ErrStateNotFound is returned when a device has no saved state.
var ErrStateNotFound = errors.New("state: device state not found")
