// Package relay turns incoming telemetry messages into dashboard updates.
//
// A message flows through these steps:
//
//  1. Duplicate check: messages flagged duplicate stop here.
//  2. LocationMerger: location-only and sensor-only messages are completed
//     from the device's last reported state.
//  3. FieldRenamer: base station coordinates move aside and the preferred
//     device coordinates become lat/lng.
//  4. Directory lookup and variable resolution across every account.
//  5. Dispatcher: one batched update per account with matching variables.
//  6. Mirror: numeric fields are copied to the time-series store.
//
// Processor runs the steps for one message. Handler adapts Processor to MQTT
// and republishes handled messages to the next topic.
package relay
