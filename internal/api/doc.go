// Package api hosts the fulltext HTTP server. Routes:
//   - POST /html_to_fulltext?url=... extracts the plain text of the posted document.
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
package api
