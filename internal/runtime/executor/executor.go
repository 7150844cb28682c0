// Package executor dispatches translated chat requests to the ChatGPT Codex
// backend. It owns the upstream HTTP exchange: request construction with
// browser-profile headers and credentials, response body decompression, SSE
// line scanning for streaming calls, and terminal-event aggregation for
// non-streaming calls.
package executor

import (
	"net/http"

	"github.com/codexbridge/codexbridge/internal/registry"
)

// Request encapsulates one chat completion dispatch to the Codex backend.
type Request struct {
	// Model is the client-requested model identifier, echoed verbatim in
	// translated responses.
	Model string
	// Spec carries the resolved base model and reasoning effort.
	Spec registry.ModelSpec
	// Payload is the inbound chat completions JSON body.
	Payload []byte
}

// Response wraps a complete upstream response after translation.
type Response struct {
	// Payload is the response body in the client-facing format.
	Payload []byte
	// Headers carries upstream HTTP response headers for passthrough to clients.
	Headers http.Header
}

// StreamChunk represents a single streaming payload unit emitted by the executor.
type StreamChunk struct {
	// Payload is one client-facing SSE chunk.
	Payload []byte
	// Err reports any terminal error encountered while producing chunks.
	Err error
}

// StreamResult wraps the streaming response, providing both the chunk channel
// and the upstream HTTP response headers captured before streaming begins.
type StreamResult struct {
	// Headers carries upstream HTTP response headers from the initial connection.
	Headers http.Header
	// Chunks is the channel of streaming payload units.
	Chunks <-chan StreamChunk
}

// StatusError represents an error that carries an HTTP-like status code.
// The executor implements it on upstream failures so handlers can relay the
// upstream status (e.g. 401/403/429) instead of a generic 500.
type StatusError interface {
	error
	StatusCode() int
}

type statusErr struct {
	code int
	msg  string
}

func (e statusErr) Error() string { return e.msg }

func (e statusErr) StatusCode() int { return e.code }
