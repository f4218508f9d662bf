// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/labels/print for synchronous upload-to-printer pipeline runs.
//   - GET /v1/printers for spooler queue discovery.
//   - GET /v1/debug/config for the redacted effective configuration.
package api
