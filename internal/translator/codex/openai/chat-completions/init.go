package chat_completions

import (
	. "github.com/codexbridge/codexbridge/internal/constant"
	"github.com/codexbridge/codexbridge/internal/interfaces"
	"github.com/codexbridge/codexbridge/internal/translator/translator"
)

func init() {
	translator.Register(
		OpenAI,
		Codex,
		ConvertOpenAIRequestToCodex,
		interfaces.TranslateResponse{
			Stream:    ConvertCodexResponseToOpenAI,
			NonStream: ConvertCodexResponseToOpenAINonStream,
		},
	)
}
