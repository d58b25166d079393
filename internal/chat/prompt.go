// Package chat sends reading questions to a chat model, with document context pulled from
// the RAG index when the reader has not selected any.
package chat

import "strings"

// BuildPrompt wraps question with context. Without context the question is sent as is.
func BuildPrompt(question, context string) string {
	if context == "" {
		return question
	}
	return "Context:\n" + context + "\n\nQuestion:\n" + question
}

// WordCount counts whitespace-separated words, as shown next to a selected passage.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
