// Package openai provides HTTP handlers for the OpenAI-compatible API endpoints.
// It implements model listing and chat completion functionality, supporting both
// streaming and non-streaming responses. Inbound chat completion requests are
// validated against the model allowlist, translated to the Codex Responses
// format, dispatched upstream, and converted back to OpenAI-compatible JSON.
package openai

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"golang.org/x/net/context"

	"github.com/codexbridge/codexbridge/internal/api/handlers"
	codexauth "github.com/codexbridge/codexbridge/internal/auth/codex"
	"github.com/codexbridge/codexbridge/internal/interfaces"
	"github.com/codexbridge/codexbridge/internal/registry"
	"github.com/codexbridge/codexbridge/internal/runtime/executor"
)

// OpenAIAPIHandler contains the handlers for OpenAI API endpoints.
// It embeds the base handler for shared routing, credential, and error plumbing.
type OpenAIAPIHandler struct {
	*handlers.BaseAPIHandler
}

// NewOpenAIAPIHandler creates a new OpenAI API handlers instance.
//
// Parameters:
//   - apiHandlers: The base API handlers instance
//
// Returns:
//   - *OpenAIAPIHandler: A new OpenAI API handlers instance
func NewOpenAIAPIHandler(apiHandlers *handlers.BaseAPIHandler) *OpenAIAPIHandler {
	return &OpenAIAPIHandler{
		BaseAPIHandler: apiHandlers,
	}
}

// Health handles the /health endpoint. It reports service liveness without
// touching credentials or the upstream backend.
func (h *OpenAIAPIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "codexbridge",
	})
}

// OpenAIModels handles the /models and /v1/models endpoints.
// It returns the published model listing, each base model from the allowlist
// followed by its reasoning-effort variants, in OpenAI-compatible format.
func (h *OpenAIAPIHandler) OpenAIModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   h.Router().ModelInfos(),
	})
}

// ChatCompletions handles the /v1/chat/completions endpoint.
// It determines whether the request is for a streaming or non-streaming
// response and calls the appropriate handler.
//
// Parameters:
//   - c: The Gin context containing the HTTP request and response
func (h *OpenAIAPIHandler) ChatCompletions(c *gin.Context) {
	rawJSON, err := c.GetRawData()
	// If data retrieval fails, return a 400 Bad Request error.
	if err != nil {
		c.JSON(http.StatusBadRequest, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: fmt.Sprintf("Invalid request: %v", err),
				Type:    "invalid_request_error",
			},
		})
		return
	}

	if !gjson.ValidBytes(rawJSON) {
		c.JSON(http.StatusBadRequest, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: "Request body is not valid JSON",
				Type:    "invalid_request_error",
				Param:   "body",
				Code:    "invalid_json",
			},
		})
		return
	}

	// Check if the client requested a streaming response.
	streamResult := gjson.GetBytes(rawJSON, "stream")
	if streamResult.Type == gjson.True {
		h.handleStreamingResponse(c, rawJSON)
	} else {
		h.handleNonStreamingResponse(c, rawJSON)
	}
}

// resolveRequest validates the requested model against the allowlist and loads
// the active upstream credentials. On failure the error response has already
// been written to the client and ok is false.
func (h *OpenAIAPIHandler) resolveRequest(c *gin.Context, rawJSON []byte) (executor.Request, *codexauth.Credentials, bool) {
	modelName := gjson.GetBytes(rawJSON, "model").String()
	spec, errResolve := h.Router().Resolve(modelName)
	if errResolve != nil {
		var notAllowed *registry.ModelNotAllowedError
		if errors.As(errResolve, &notAllowed) {
			c.JSON(http.StatusBadRequest, handlers.ErrorResponse{
				Error: handlers.ErrorDetail{
					Message: notAllowed.Error(),
					Type:    "invalid_request_error",
					Param:   "model",
					Code:    "model_not_allowed",
				},
			})
			return executor.Request{}, nil, false
		}
		h.WriteErrorResponse(c, &interfaces.ErrorMessage{StatusCode: http.StatusBadRequest, Error: errResolve})
		return executor.Request{}, nil, false
	}

	creds, errCreds := h.Store.Current()
	if errCreds != nil {
		h.WriteErrorResponse(c, &interfaces.ErrorMessage{StatusCode: http.StatusUnauthorized, Error: errCreds})
		return executor.Request{}, nil, false
	}

	return executor.Request{Model: modelName, Spec: spec, Payload: rawJSON}, creds, true
}

// handleNonStreamingResponse handles non-streaming chat completion responses.
// It dispatches the translated request upstream, waits for the aggregated
// response, and writes it back to the client as a single JSON body.
//
// Parameters:
//   - c: The Gin context containing the HTTP request and response
//   - rawJSON: The raw JSON bytes of the OpenAI-compatible request
func (h *OpenAIAPIHandler) handleNonStreamingResponse(c *gin.Context, rawJSON []byte) {
	c.Header("Content-Type", "application/json")

	req, creds, ok := h.resolveRequest(c, rawJSON)
	if !ok {
		return
	}
	cliCtx, cliCancel := h.GetContextWithCancel(c, context.Background())
	resp, errExec := h.Executor().Execute(cliCtx, creds, req)
	if errExec != nil {
		errMsg := handlers.NewErrorMessage(errExec)
		h.LoggingAPIResponseError(cliCtx, errMsg)
		h.WriteErrorResponse(c, errMsg)
		cliCancel(errMsg.Error)
		return
	}
	handlers.WriteUpstreamHeaders(c.Writer.Header(), handlers.FilterUpstreamHeaders(resp.Headers))
	_, _ = c.Writer.Write(resp.Payload)
	cliCancel(resp.Payload)
}

// handleStreamingResponse handles streaming chat completion responses.
// It peeks at the first translated chunk before committing to SSE headers so
// an immediate upstream failure still produces a proper JSON error status,
// then forwards the remaining chunks to the client in real time.
//
// Parameters:
//   - c: The Gin context containing the HTTP request and response
//   - rawJSON: The raw JSON bytes of the OpenAI-compatible request
func (h *OpenAIAPIHandler) handleStreamingResponse(c *gin.Context, rawJSON []byte) {
	// Get the http.Flusher interface to manually flush the response.
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: "Streaming not supported",
				Type:    "server_error",
			},
		})
		return
	}

	req, creds, ok := h.resolveRequest(c, rawJSON)
	if !ok {
		return
	}
	cliCtx, cliCancel := h.GetContextWithCancel(c, context.Background())
	streamResult, errStream := h.Executor().ExecuteStream(cliCtx, creds, req)
	if errStream != nil {
		errMsg := handlers.NewErrorMessage(errStream)
		h.LoggingAPIResponseError(cliCtx, errMsg)
		h.WriteErrorResponse(c, errMsg)
		cliCancel(errMsg.Error)
		return
	}

	setSSEHeaders := func() {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("Access-Control-Allow-Origin", "*")
	}

	// Peek at the first chunk to determine success or failure before
	// committing to SSE headers.
	select {
	case <-c.Request.Context().Done():
		cliCancel(c.Request.Context().Err())
		return
	case chunk, okChunk := <-streamResult.Chunks:
		if !okChunk {
			// Upstream closed without emitting a single record.
			setSSEHeaders()
			handlers.WriteUpstreamHeaders(c.Writer.Header(), handlers.FilterUpstreamHeaders(streamResult.Headers))
			flusher.Flush()
			cliCancel(nil)
			return
		}
		if chunk.Err != nil {
			// Upstream failed before producing output. Return proper error status and JSON.
			errMsg := handlers.NewErrorMessage(chunk.Err)
			h.LoggingAPIResponseError(cliCtx, errMsg)
			h.WriteErrorResponse(c, errMsg)
			cliCancel(errMsg.Error)
			return
		}

		// Success. Commit to streaming headers.
		setSSEHeaders()
		handlers.WriteUpstreamHeaders(c.Writer.Header(), handlers.FilterUpstreamHeaders(streamResult.Headers))

		_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", string(chunk.Payload))
		flusher.Flush()

		// Continue streaming the rest.
		h.handleStreamResult(c, flusher, func(err error) { cliCancel(err) }, streamResult.Chunks)
	}
}

func (h *OpenAIAPIHandler) handleStreamResult(c *gin.Context, flusher http.Flusher, cancel func(error), chunks <-chan executor.StreamChunk) {
	h.ForwardStream(c, flusher, cancel, chunks, handlers.StreamForwardOptions{
		WriteChunk: func(chunk []byte) {
			_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", string(chunk))
		},
		WriteTerminalError: func(err error) {
			body := handlers.BuildProxyErrorBody(err.Error())
			_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", string(body))
		},
	})
}
