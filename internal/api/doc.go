// Package api implements the HTTP REST API and WebSocket server for
// Benchrig Core.
//
// The surface covers:
//   - REST endpoints for instrument records, lifecycle, and introspection
//   - Synchronous read/write/invoke operations against running instruments
//   - WebSocket hub streaming completed operations in real time
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//   - TLS support for deployments beyond the bench
//
// # Architecture
//
// The API server sits between bench clients (scripts, dashboards, the
// occasional curl) and the instrument registry. Operation requests are
// submitted to the target instrument's adapter and awaited, so an HTTP
// response carries the device's actual answer rather than a promise.
// Completion events fan out to WebSocket subscribers on the
// operation.completed channel; the MQTT bridge serves the same events
// to broker clients.
//
// # Optional Dependencies
//
// The server operates without MQTT and without a database handle. Those
// dependencies only enrich the system surfaces; record CRUD and
// instrument operations need the repository and registry alone.
package api
