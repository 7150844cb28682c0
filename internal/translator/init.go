// Package translator wires the schema conversion pairs into the shared
// registry. Importing this package registers every available translator.
package translator

import (
	_ "github.com/codexbridge/codexbridge/internal/translator/codex/openai/chat-completions"
)
