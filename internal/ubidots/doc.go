// Package ubidots implements directory.Client against the Ubidots dashboard.
//
// Client speaks the v1.6 REST API: token authentication, paged datasource
// and variable listings, and batched value writes via collections/values.
// Every request for an account passes through that account's rate limiter
// and circuit breaker, so one misbehaving account cannot starve the others.
//
// SocketClient reuses the REST client for directory lookups and replaces only
// SetValues with the translate service line protocol over UDP or TCP:
//
//	graylogic-relay|POST|{token}|{device}=>{var}:{value}$lat={lat}$lng={lng}@{ms},...|end
//
// NewFactory builds the right client for the configured API mode and is the
// directory.ClientFactory used in production.
package ubidots
