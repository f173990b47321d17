// Package services is the client facade for the services network.
//
// A process creates one Services over a connected transport, calls Init,
// and then uses it to:
//
//   - wait for the middleman with Ready
//   - run SQL queries against middleman databases
//   - send logs, alarms and monitoring data
//   - store and fetch calibration, device and run configurations
//   - store and fetch plots
//   - expose slow-control variables that remote peers can read and change
//   - send and receive named alerts
//
// Acknowledged operations are retried until their deadline using
// retry.CallForDuration; each attempt is one backend exchange. Logs and
// monitoring data are fire-and-forget and, with WithSpool, are stored in
// the local outbox while the broker is unreachable.
package services
