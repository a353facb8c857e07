// Package directory maintains the multi-account device directory used by the relay.
//
// A physical device may be registered as a datasource under several Ubidots
// accounts. The directory answers "which remote records, in which accounts,
// belong to device 2C30EB" without re-listing every catalog on every message.
//
// # Components
//
//   - BuildIndex turns one account's catalog into device ID -> Binding
//   - AccountCache holds one account's index plus a randomised expiry
//   - Cache merges all account indexes into a Directory (device ID -> []Binding)
//   - Resolver loads and memoises variables per binding for one directory generation
//
// # Refresh Policy
//
// The merged Directory is reused until any account's expiry passes. A rebuild
// refreshes stale accounts one at a time, never concurrently, to bound load on
// the remote service. A failing account keeps serving its previous index.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Locks are never held across
// remote calls; two messages racing on the same stale account may both refresh
// it and the last to finish wins. Refreshes are idempotent recomputations of
// remote state so this costs only a redundant request.
package directory
