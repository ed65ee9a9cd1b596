// Package api hosts the status server that runs alongside a fetch run.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the live rate state and run counters.
package api
