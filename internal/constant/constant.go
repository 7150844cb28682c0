// Package constant defines wire-format identifiers used throughout CodexBridge.
// These constants name the two chat-completion schemas the bridge translates
// between, ensuring consistent naming across the application.
package constant

const (
	// OpenAI represents the OpenAI Chat Completions wire format served to clients.
	OpenAI = "openai"

	// Codex represents the ChatGPT backend Responses wire format spoken upstream.
	Codex = "codex"
)

const (
	// CodexResponsesURL is the upstream endpoint chat requests are dispatched to.
	CodexResponsesURL = "https://chatgpt.com/backend-api/codex/responses"
)
