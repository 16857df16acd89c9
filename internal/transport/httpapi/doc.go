// Package httpapi serves the live notification stream (SSE and WebSocket),
// a health endpoint and Prometheus metrics.
package httpapi
