package ubidots

import "errors"

// Domain-specific errors for remote dashboard calls.
var (
	// ErrRequestFailed is returned for transport failures and non-2xx responses.
	ErrRequestFailed = errors.New("ubidots: request failed")

	// ErrCircuitOpen is returned when the account's circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("ubidots: circuit open")

	// ErrNoCatalog is returned when a datasource listing has no results field.
	ErrNoCatalog = errors.New("ubidots: no datasources in response")

	// ErrNotAuthenticated is returned when a call needs a token and Authenticate
	// has not succeeded yet.
	ErrNotAuthenticated = errors.New("ubidots: not authenticated")

	// ErrPayloadTooLarge is returned when a socket update exceeds one datagram.
	ErrPayloadTooLarge = errors.New("ubidots: payload too large")
)
