// Package httpapi exposes the connections lifecycle over HTTP with a chi
// router. Handlers translate requests into command and query messages,
// validate them, and render go-errors envelopes on failure.
package httpapi
