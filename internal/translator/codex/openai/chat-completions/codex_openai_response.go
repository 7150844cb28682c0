// This file handles the conversion of Codex Responses API payloads into OpenAI Chat
// Completions-compatible JSON, transforming streaming events and non-streaming responses
// into the format expected by OpenAI API clients. Streaming translation is a small state
// machine: it announces the assistant role before any content, re-emits each upstream text
// delta incrementally, and terminates with either a finish chunk plus the [DONE] sentinel
// or a single error chunk when the upstream stream fails.
package chat_completions

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	dataTag = []byte("data:")
	doneTag = []byte("[DONE]")
)

// ConvertCodexToOpenAIParams holds the streaming conversion state for one response.
type ConvertCodexToOpenAIParams struct {
	ResponseID                string
	CreatedAt                 int64
	Model                     string
	RoleAnnounced             bool
	SawTextDelta              bool
	Terminated                bool
	FunctionCallIndex         int
	HasReceivedArgumentsDelta bool
	HasToolCallAnnounced      bool
}

// ConvertCodexResponseToOpenAI translates a single record of a streaming response from the
// Codex Responses API format to the OpenAI Chat Completions streaming format.
// It processes various Codex event types and transforms them into OpenAI-compatible JSON chunks.
// The first recognized event additionally produces a leading chunk that announces the assistant
// role with empty content. Text deltas are re-emitted incrementally, never cumulatively. A
// completion event produces a final chunk carrying the finish reason followed by the [DONE]
// sentinel; an error event or an unparseable payload produces a single error chunk and ends
// the stream without [DONE]. Unrecognized event types are ignored.
//
// Parameters:
//   - ctx: The context for the request, used for cancellation and timeout handling
//   - modelName: The model identifier echoed back to the client
//   - rawJSON: One raw record from the Codex event stream
//   - param: A pointer to a parameter object maintaining state between calls
//
// Returns:
//   - []string: A slice of OpenAI-compatible JSON chunks, possibly empty
func ConvertCodexResponseToOpenAI(_ context.Context, modelName string, originalRequestRawJSON, requestRawJSON, rawJSON []byte, param *any) []string {
	if *param == nil {
		*param = &ConvertCodexToOpenAIParams{
			ResponseID:        fmt.Sprintf("chatcmpl-%s", uuid.NewString()),
			CreatedAt:         time.Now().Unix(),
			Model:             modelName,
			FunctionCallIndex: -1,
		}
	}
	p := (*param).(*ConvertCodexToOpenAIParams)
	if p.Terminated {
		return []string{}
	}

	line := bytes.TrimSpace(rawJSON)
	// Keep-alive comments, SSE event-name lines, and blank separators carry no payload.
	if len(line) == 0 || line[0] == ':' || bytes.HasPrefix(line, []byte("event:")) {
		return []string{}
	}
	if bytes.Equal(line, doneTag) {
		return []string{}
	}
	if !bytes.HasPrefix(line, dataTag) {
		// Not event-stream framing at all, e.g. an interstitial challenge page.
		p.Terminated = true
		return []string{errorChunk("upstream returned a non-event-stream payload")}
	}
	payload := bytes.TrimSpace(line[len(dataTag):])
	if bytes.Equal(payload, doneTag) {
		return []string{}
	}
	if !gjson.ValidBytes(payload) {
		p.Terminated = true
		return []string{errorChunk("upstream produced an unparseable event payload")}
	}

	rootResult := gjson.ParseBytes(payload)
	out := make([]string, 0, 2)

	switch rootResult.Get("type").String() {
	case "response.created":
		if createdAtResult := rootResult.Get("response.created_at"); createdAtResult.Exists() {
			p.CreatedAt = createdAtResult.Int()
		}
		out = appendRoleChunk(out, p)

	case "response.output_text.delta":
		deltaResult := rootResult.Get("delta")
		if !deltaResult.Exists() {
			return []string{}
		}
		p.SawTextDelta = true
		out = appendRoleChunk(out, p)
		template := baseChunk(p)
		template, _ = sjson.Set(template, "choices.0.delta.content", deltaResult.String())
		out = append(out, template)

	case "response.reasoning_summary_text.delta":
		deltaResult := rootResult.Get("delta")
		if !deltaResult.Exists() {
			return []string{}
		}
		out = appendRoleChunk(out, p)
		template := baseChunk(p)
		template, _ = sjson.Set(template, "choices.0.delta.reasoning_content", deltaResult.String())
		out = append(out, template)

	case "response.reasoning_summary_text.done":
		out = appendRoleChunk(out, p)
		template := baseChunk(p)
		template, _ = sjson.Set(template, "choices.0.delta.reasoning_content", "\n\n")
		out = append(out, template)

	case "response.output_item.added":
		itemResult := rootResult.Get("item")
		if itemResult.Get("type").String() != "function_call" {
			return []string{}
		}
		p.FunctionCallIndex++
		p.HasReceivedArgumentsDelta = false
		p.HasToolCallAnnounced = true

		functionCallItem := `{"index":0,"id":"","type":"function","function":{"name":"","arguments":""}}`
		functionCallItem, _ = sjson.Set(functionCallItem, "index", p.FunctionCallIndex)
		functionCallItem, _ = sjson.Set(functionCallItem, "id", itemResult.Get("call_id").String())
		functionCallItem, _ = sjson.Set(functionCallItem, "function.name", itemResult.Get("name").String())

		out = appendRoleChunk(out, p)
		template := baseChunk(p)
		template, _ = sjson.SetRaw(template, "choices.0.delta.tool_calls", `[]`)
		template, _ = sjson.SetRaw(template, "choices.0.delta.tool_calls.-1", functionCallItem)
		out = append(out, template)

	case "response.function_call_arguments.delta":
		p.HasReceivedArgumentsDelta = true

		functionCallItem := `{"index":0,"function":{"arguments":""}}`
		functionCallItem, _ = sjson.Set(functionCallItem, "index", p.FunctionCallIndex)
		functionCallItem, _ = sjson.Set(functionCallItem, "function.arguments", rootResult.Get("delta").String())

		template := baseChunk(p)
		template, _ = sjson.SetRaw(template, "choices.0.delta.tool_calls", `[]`)
		template, _ = sjson.SetRaw(template, "choices.0.delta.tool_calls.-1", functionCallItem)
		out = append(out, template)

	case "response.function_call_arguments.done":
		if p.HasReceivedArgumentsDelta {
			// Arguments were already streamed via delta events; nothing to emit.
			return []string{}
		}

		functionCallItem := `{"index":0,"function":{"arguments":""}}`
		functionCallItem, _ = sjson.Set(functionCallItem, "index", p.FunctionCallIndex)
		functionCallItem, _ = sjson.Set(functionCallItem, "function.arguments", rootResult.Get("arguments").String())

		template := baseChunk(p)
		template, _ = sjson.SetRaw(template, "choices.0.delta.tool_calls", `[]`)
		template, _ = sjson.SetRaw(template, "choices.0.delta.tool_calls.-1", functionCallItem)
		out = append(out, template)

	case "response.output_item.done":
		itemResult := rootResult.Get("item")
		switch itemResult.Get("type").String() {
		case "message":
			// Fallback for upstreams that deliver whole items without text deltas.
			if p.SawTextDelta {
				return []string{}
			}
			var text string
			itemContentResults := itemResult.Get("content").Array()
			for i := 0; i < len(itemContentResults); i++ {
				if itemContentResults[i].Get("type").String() == "output_text" {
					text += itemContentResults[i].Get("text").String()
				}
			}
			if text == "" {
				return []string{}
			}
			out = appendRoleChunk(out, p)
			template := baseChunk(p)
			template, _ = sjson.Set(template, "choices.0.delta.content", text)
			out = append(out, template)
		case "function_call":
			if p.HasToolCallAnnounced {
				// Tool call was already announced via output_item.added; skip emission.
				p.HasToolCallAnnounced = false
				return []string{}
			}
			p.FunctionCallIndex++

			functionCallItem := `{"index":0,"id":"","type":"function","function":{"name":"","arguments":""}}`
			functionCallItem, _ = sjson.Set(functionCallItem, "index", p.FunctionCallIndex)
			functionCallItem, _ = sjson.Set(functionCallItem, "id", itemResult.Get("call_id").String())
			functionCallItem, _ = sjson.Set(functionCallItem, "function.name", itemResult.Get("name").String())
			functionCallItem, _ = sjson.Set(functionCallItem, "function.arguments", itemResult.Get("arguments").String())

			out = appendRoleChunk(out, p)
			template := baseChunk(p)
			template, _ = sjson.SetRaw(template, "choices.0.delta.tool_calls", `[]`)
			template, _ = sjson.SetRaw(template, "choices.0.delta.tool_calls.-1", functionCallItem)
			out = append(out, template)
		default:
			return []string{}
		}

	case "response.completed", "response.incomplete":
		p.Terminated = true
		finishReason := finishReasonFromStatus(rootResult.Get("response.status").String())
		if rootResult.Get("type").String() == "response.incomplete" {
			finishReason = "length"
		}
		if p.FunctionCallIndex != -1 {
			finishReason = "tool_calls"
		}
		out = appendRoleChunk(out, p)
		template := baseChunk(p)
		template, _ = sjson.Set(template, "choices.0.finish_reason", finishReason)
		if usageResult := rootResult.Get("response.usage"); usageResult.Exists() {
			template = setUsage(template, usageResult)
		}
		out = append(out, template, string(doneTag))

	case "response.failed", "error":
		p.Terminated = true
		message := rootResult.Get("response.error.message").String()
		if message == "" {
			message = rootResult.Get("error.message").String()
		}
		if message == "" {
			message = rootResult.Get("message").String()
		}
		if message == "" {
			message = "upstream reported a failure"
		}
		return []string{errorChunk(message)}

	default:
		// Unrecognized event types are ignored for forward compatibility.
		return []string{}
	}

	return out
}

// ConvertCodexResponseToOpenAINonStream converts a complete Codex response to a non-streaming
// OpenAI response. It accepts either a bare Responses API object or a response.completed event
// wrapper, concatenates every text output item in order into a single assistant message,
// carries tool calls and reasoning summaries over, and maps the response status to a finish
// reason, failing open to "stop" for statuses this conversion does not recognize.
//
// Parameters:
//   - ctx: The context for the request, used for cancellation and timeout handling
//   - modelName: The model identifier echoed back to the client
//   - rawJSON: The complete raw JSON response from the Codex API
//   - param: A pointer to a parameter object for the conversion (unused)
//
// Returns:
//   - string: An OpenAI-compatible JSON response, or empty when the payload is unrecognizable
func ConvertCodexResponseToOpenAINonStream(_ context.Context, modelName string, originalRequestRawJSON, requestRawJSON, rawJSON []byte, _ *any) string {
	rootResult := gjson.ParseBytes(rawJSON)

	responseResult := rootResult
	if rootResult.Get("type").String() == "response.completed" {
		responseResult = rootResult.Get("response")
	}
	if !responseResult.IsObject() || (!responseResult.Get("output").Exists() && !responseResult.Get("status").Exists()) {
		return ""
	}

	template := `{"id":"","object":"chat.completion","created":0,"model":"","choices":[{"index":0,"message":{"role":"assistant","content":null},"finish_reason":null}]}`
	template, _ = sjson.Set(template, "id", fmt.Sprintf("chatcmpl-%s", uuid.NewString()))
	template, _ = sjson.Set(template, "model", modelName)
	if createdAtResult := responseResult.Get("created_at"); createdAtResult.Exists() {
		template, _ = sjson.Set(template, "created", createdAtResult.Int())
	} else {
		template, _ = sjson.Set(template, "created", time.Now().Unix())
	}

	var contentText string
	var reasoningText string
	var toolCalls []string

	outputResults := responseResult.Get("output").Array()
	for i := 0; i < len(outputResults); i++ {
		outputResult := outputResults[i]
		switch outputResult.Get("type").String() {
		case "message":
			contentResults := outputResult.Get("content").Array()
			for j := 0; j < len(contentResults); j++ {
				if contentResults[j].Get("type").String() == "output_text" {
					contentText += contentResults[j].Get("text").String()
				}
			}
		case "reasoning":
			summaryResults := outputResult.Get("summary").Array()
			for j := 0; j < len(summaryResults); j++ {
				if summaryResults[j].Get("type").String() == "summary_text" {
					reasoningText += summaryResults[j].Get("text").String()
				}
			}
		case "function_call":
			functionCallItem := `{"id":"","type":"function","function":{"name":"","arguments":""}}`
			functionCallItem, _ = sjson.Set(functionCallItem, "id", outputResult.Get("call_id").String())
			functionCallItem, _ = sjson.Set(functionCallItem, "function.name", outputResult.Get("name").String())
			functionCallItem, _ = sjson.Set(functionCallItem, "function.arguments", outputResult.Get("arguments").String())
			toolCalls = append(toolCalls, functionCallItem)
		}
	}

	if contentText != "" {
		template, _ = sjson.Set(template, "choices.0.message.content", contentText)
	}
	if reasoningText != "" {
		template, _ = sjson.Set(template, "choices.0.message.reasoning_content", reasoningText)
	}
	if len(toolCalls) > 0 {
		template, _ = sjson.SetRaw(template, "choices.0.message.tool_calls", `[]`)
		for i := range toolCalls {
			template, _ = sjson.SetRaw(template, "choices.0.message.tool_calls.-1", toolCalls[i])
		}
	}

	finishReason := finishReasonFromStatus(responseResult.Get("status").String())
	if len(toolCalls) > 0 {
		finishReason = "tool_calls"
	}
	template, _ = sjson.Set(template, "choices.0.finish_reason", finishReason)

	if usageResult := responseResult.Get("usage"); usageResult.Exists() {
		template = setUsage(template, usageResult)
	}

	return template
}

// baseChunk builds the skeleton of one streaming chunk stamped with the
// response identity carried in the conversion state.
func baseChunk(p *ConvertCodexToOpenAIParams) string {
	template := `{"id":"","object":"chat.completion.chunk","created":0,"model":"","choices":[{"index":0,"delta":{},"finish_reason":null}]}`
	template, _ = sjson.Set(template, "id", p.ResponseID)
	template, _ = sjson.Set(template, "created", p.CreatedAt)
	template, _ = sjson.Set(template, "model", p.Model)
	return template
}

// appendRoleChunk prepends the leading chunk announcing the assistant role,
// exactly once per stream.
func appendRoleChunk(out []string, p *ConvertCodexToOpenAIParams) []string {
	if p.RoleAnnounced {
		return out
	}
	p.RoleAnnounced = true
	template := baseChunk(p)
	template, _ = sjson.Set(template, "choices.0.delta.role", "assistant")
	template, _ = sjson.Set(template, "choices.0.delta.content", "")
	return append(out, template)
}

// errorChunk builds the single error payload emitted when a stream fails.
func errorChunk(message string) string {
	template := `{"error":{"message":"","type":"proxy_error","code":"internal_error"}}`
	template, _ = sjson.Set(template, "error.message", fmt.Sprintf("Proxy error: %s", message))
	return template
}

// finishReasonFromStatus maps a Codex response status to an OpenAI finish
// reason, failing open to "stop" for unrecognized statuses.
func finishReasonFromStatus(status string) string {
	if status == "incomplete" {
		return "length"
	}
	return "stop"
}

// setUsage copies Codex usage counters onto an OpenAI response template.
func setUsage(template string, usageResult gjson.Result) string {
	if inputTokensResult := usageResult.Get("input_tokens"); inputTokensResult.Exists() {
		template, _ = sjson.Set(template, "usage.prompt_tokens", inputTokensResult.Int())
	}
	if outputTokensResult := usageResult.Get("output_tokens"); outputTokensResult.Exists() {
		template, _ = sjson.Set(template, "usage.completion_tokens", outputTokensResult.Int())
	}
	if totalTokensResult := usageResult.Get("total_tokens"); totalTokensResult.Exists() {
		template, _ = sjson.Set(template, "usage.total_tokens", totalTokensResult.Int())
	}
	if cachedTokensResult := usageResult.Get("input_tokens_details.cached_tokens"); cachedTokensResult.Exists() {
		template, _ = sjson.Set(template, "usage.prompt_tokens_details.cached_tokens", cachedTokensResult.Int())
	}
	if reasoningTokensResult := usageResult.Get("output_tokens_details.reasoning_tokens"); reasoningTokensResult.Exists() {
		template, _ = sjson.Set(template, "usage.completion_tokens_details.reasoning_tokens", reasoningTokensResult.Int())
	}
	return template
}
