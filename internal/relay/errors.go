package relay

import "errors"

var (
	// ErrInvalidMessage is returned when a payload cannot be decoded.
	ErrInvalidMessage = errors.New("relay: invalid message")

	// ErrNoDeviceID is returned when neither the payload nor the topic names a device.
	ErrNoDeviceID = errors.New("relay: message has no device id")

	// ErrDispatchFailed wraps the first account update failure of a message.
	ErrDispatchFailed = errors.New("relay: account update failed")
)
