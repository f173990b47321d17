// Package api implements the status HTTP API and WebSocket event stream of
// the services daemon.
//
// Endpoints under /api/v1:
//   - GET  /health               facade and bus state
//   - GET  /ready                round-trip to the middleman
//   - GET  /system               runtime and client statistics
//   - GET  /metrics              Prometheus exposition
//   - GET  /slowcontrol          every variable with its stored value
//   - GET  /slowcontrol/{name}   one variable, through its read hook
//   - PUT  /slowcontrol/{name}   change a variable, through its change hook
//   - POST /alerts/{name}        publish an alert on the bus
//   - GET  /ws                   event stream (channels "alert" and "slowcontrol.changed")
//
// The API has no authentication; bind it to a trusted interface.
package api
