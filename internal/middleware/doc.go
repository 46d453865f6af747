// Package middleware provides the HTTP middleware of the thumbnail API:
// request ids, W3C Extended Log Format access logs, Prometheus request
// metrics, gzip compression and per-client rate limiting.
package middleware
