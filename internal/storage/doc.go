// Package storage owns all durable state of the bridge.
//
// Three independent key-value tables:
//   - active alerts, keyed by fingerprint (JSON record blob)
//   - message map, keyed by outbound event id
//   - schedules, keyed by severity tier (last digest sent, unix millis)
//
// Every operation persists before returning. Failures are returned to the
// caller unretried; losing alert state silently would cause duplicate
// notifications or missed resolutions, so the service layer decides policy.
package storage
