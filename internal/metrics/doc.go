// Package metrics declares the Prometheus instrumentation for Gray Logic Relay.
//
// Metrics are registered on the default registry at package init and exposed
// by the ops API at /metrics. Account labels use the account's position in the
// configured key list, never the key itself.
package metrics
