// Package api hosts the liveness HTTP server that runs next to the bot so a hosting
// platform sees an open port. Routes:
//   - any path, any method: 200 "OK" (strict mode: only / and /healthz).
//   - GET /metrics for Prometheus scraping when enabled.
//
// Nothing here depends on the bot or on network reachability.
package api
