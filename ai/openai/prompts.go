package openai

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
)

const systemPromptPrefix = "Answer based on this context:\n"

// buildSystemPrompt renders the instruction carrying the retrieved context.
func buildSystemPrompt(contextText string) string {
	var b strings.Builder
	b.Grow(len(systemPromptPrefix) + len(contextText))
	b.WriteString(systemPromptPrefix)
	b.WriteString(sanitizeText(contextText))
	return b.String()
}

// buildMessages returns the system + user message pair sent to the model.
func buildMessages(contextText, message string) []llms.MessageContent {
	return []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(buildSystemPrompt(contextText)),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(sanitizeText(message)),
			},
		},
	}
}
