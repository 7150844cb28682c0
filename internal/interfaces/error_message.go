// Package interfaces defines the shared structures passed between the API layer,
// the translation pipeline, and the upstream executor. Keeping them in a leaf
// package avoids import cycles between those components.
package interfaces

import "net/http"

// ErrorMessage encapsulates an error with an associated HTTP status code.
// It carries upstream failures back to the API layer so the original status
// can be relayed to the client instead of being flattened to a generic 500.
type ErrorMessage struct {
	// StatusCode is the HTTP status code to relay to the client.
	StatusCode int

	// Error is the underlying error that occurred.
	Error error

	// Addon contains additional headers to be added to the response.
	Addon http.Header
}
