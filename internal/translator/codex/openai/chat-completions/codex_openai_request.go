// Package chat_completions provides request translation functionality for OpenAI to Codex API compatibility.
// It handles parsing and transforming OpenAI Chat Completions API requests into the Codex Responses API
// format, extracting system instructions, normalizing message contents into structured input items,
// and passing tool declarations through unchanged.
package chat_completions

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// defaultInstructions seeds the Codex instructions field when the client did
// not supply a leading system message.
const defaultInstructions = "You are a helpful AI assistant. Provide clear, accurate, and concise responses to user questions and requests."

// ConvertOpenAIRequestToCodex parses and transforms an OpenAI Chat Completions API request
// into the Codex Responses API format.
// The function performs the following transformations:
// 1. A leading system message becomes the instructions field and is excluded from input;
//    without one, a generic assistant preamble is used instead
// 2. Every remaining message becomes one input item with its content normalized to the
//    array-of-parts shape, regardless of whether the source was a bare string
// 3. Tools and tool_choice pass through unchanged; tool_choice defaults to "auto" when
//    tools are declared without an explicit choice
// 4. The store flag is always false so the backend never persists conversation state
//
// Parameters:
//   - modelName: The name of the model to use for the request
//   - rawJSON: The raw JSON request data from the OpenAI API
//   - stream: A boolean indicating if the request is for a streaming response
//
// Returns:
//   - []byte: The transformed request data in Codex Responses API format
func ConvertOpenAIRequestToCodex(modelName string, inputRawJSON []byte, stream bool) []byte {
	rawJSON := inputRawJSON

	template := `{"model":"","instructions":"","input":[]}`

	rootResult := gjson.ParseBytes(rawJSON)
	template, _ = sjson.Set(template, "model", modelName)

	var messageResults []gjson.Result
	if messagesResult := rootResult.Get("messages"); messagesResult.IsArray() {
		messageResults = messagesResult.Array()
	}

	// A leading system message carries the instructions; later system messages
	// stay in the input sequence with their role intact.
	instructions := defaultInstructions
	startIndex := 0
	if len(messageResults) > 0 && messageResults[0].Get("role").String() == "system" {
		if text := messageText(messageResults[0].Get("content")); text != "" {
			instructions = text
		}
		startIndex = 1
	}
	template, _ = sjson.Set(template, "instructions", instructions)

	for i := startIndex; i < len(messageResults); i++ {
		messageResult := messageResults[i]

		message := `{"type":"message","role":"","content":[]}`
		message, _ = sjson.Set(message, "role", messageResult.Get("role").String())

		messageContentResult := messageResult.Get("content")
		if messageContentResult.IsArray() {
			messageContentResults := messageContentResult.Array()
			for j := 0; j < len(messageContentResults); j++ {
				partResult := messageContentResults[j]
				if partResult.Type == gjson.String {
					textPart, _ := sjson.Set(`{"type":"input_text","text":""}`, "text", partResult.String())
					message, _ = sjson.SetRaw(message, "content.-1", textPart)
					continue
				}
				if partResult.Get("type").String() == "text" {
					textPart, _ := sjson.Set(partResult.Raw, "type", "input_text")
					message, _ = sjson.SetRaw(message, "content.-1", textPart)
					continue
				}
				// Unknown part kinds pass through opaquely.
				message, _ = sjson.SetRaw(message, "content.-1", partResult.Raw)
			}
		} else {
			textPart, _ := sjson.Set(`{"type":"input_text","text":""}`, "text", messageContentResult.String())
			message, _ = sjson.SetRaw(message, "content.-1", textPart)
		}

		template, _ = sjson.SetRaw(template, "input.-1", message)
	}

	// Pass tool declarations through unchanged.
	toolsResult := rootResult.Get("tools")
	hasTools := toolsResult.IsArray() && len(toolsResult.Array()) > 0
	if hasTools {
		template, _ = sjson.SetRaw(template, "tools", toolsResult.Raw)
	} else {
		template, _ = sjson.SetRaw(template, "tools", `[]`)
	}
	if toolChoiceResult := rootResult.Get("tool_choice"); toolChoiceResult.Exists() {
		template, _ = sjson.SetRaw(template, "tool_choice", toolChoiceResult.Raw)
	} else if hasTools {
		template, _ = sjson.Set(template, "tool_choice", "auto")
	}

	template, _ = sjson.Set(template, "parallel_tool_calls", false)
	template, _ = sjson.Set(template, "store", false)
	template, _ = sjson.Set(template, "stream", stream)

	return []byte(template)
}

// messageText flattens a message content value to plain text. Array contents
// contribute the text of each part, joined with single spaces.
func messageText(contentResult gjson.Result) string {
	if contentResult.Type == gjson.String {
		return contentResult.String()
	}
	if contentResult.IsArray() {
		var parts []string
		contentResults := contentResult.Array()
		for i := 0; i < len(contentResults); i++ {
			partResult := contentResults[i]
			if partResult.Type == gjson.String {
				parts = append(parts, partResult.String())
				continue
			}
			if textResult := partResult.Get("text"); textResult.Exists() {
				parts = append(parts, textResult.String())
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
