package workflow

import (
	"strings"

	"ragflow/internal/domain"
)

const (
	systemPrompt = "You answer questions using only the provided context."

	answerMaxTokens   = 1024
	answerTemperature = 0.2
)

// BuildChatRequest renders the retrieved contexts and the question into a
// single chat request. It is pure so workflow replays produce the same request.
func BuildChatRequest(question string, contexts []string) domain.ChatRequest {
	lines := make([]string, len(contexts))
	for i, c := range contexts {
		lines[i] = "- " + c
	}
	block := strings.Join(lines, "\n\n")

	user := "Use the following context to answer the question.\n\n" +
		"Context:\n" + block + "\n\n" +
		"Question: " + question + "\n" +
		"Answer concisely using the context above."

	return domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
		MaxTokens:   answerMaxTokens,
		Temperature: answerTemperature,
	}
}
