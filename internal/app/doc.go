// Package app wires the application together: configuration, logging,
// telemetry, the websocket hub, the collaborator client and the HTTP server,
// with graceful shutdown on SIGINT/SIGTERM.
package app
