// Package api hosts the HTTP server, middleware, and handlers of the case
// resolver. Notable routes:
//   - POST /api/v1/onbid/parse resolves one identifier; it answers 200 for
//     every well formed request, failures included.
//   - GET /api/v1/healthz for probes (unauthenticated).
//   - GET /api/v1/debug/status and /api/v1/debug/cache for operators.
//   - GET /metrics for Prometheus scraping.
package api
