// Package api hosts the operator HTTP server that runs beside a crawl.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the current run's frontier and counters.
package api
