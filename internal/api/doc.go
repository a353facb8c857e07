// Package api serves the relay's operations HTTP endpoints.
//
// Routes:
//
//	GET /health                       liveness of the broker and state database
//	GET /metrics                      Prometheus exposition
//	GET /api/v1/directory             merged device directory and account freshness
//	GET /api/v1/devices/{id}/state    last reported state of a device
//
// The directory endpoint reads the last merged directory and never triggers a
// catalog refresh. The server follows the lifecycle of the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
