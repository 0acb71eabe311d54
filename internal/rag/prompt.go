package rag

import (
	"strings"

	"github.com/flownode/ragnode/internal/memory"
	"github.com/flownode/ragnode/internal/vector"
)

// DefaultSystemPrompt is used when a request carries no system prompt
// of its own.
const DefaultSystemPrompt = "You are a helpful assistant. Answer the user's question using the document context and the conversation history below. If the context does not contain the answer, say so."

// noDocuments marks an empty or unavailable context block so the model
// is never handed a silently missing section.
const noDocuments = "(no documents)"

// buildPrompt assembles the final model prompt. Section order is fixed:
// system prompt, document context, conversation history, then the user
// question, joined by blank lines.
func buildPrompt(system string, matches []vector.Match, history []memory.Turn, message string) string {
	if system == "" {
		system = DefaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(system)

	b.WriteString("\n\nDocument context:\n")
	if len(matches) == 0 {
		b.WriteString(noDocuments)
	} else {
		for i, m := range matches {
			if i > 0 {
				b.WriteString("\n---\n")
			}
			b.WriteString(m.Text)
		}
	}

	if len(history) > 0 {
		b.WriteString("\n\nConversation history:\n")
		for i, turn := range history {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(string(turn.Role))
			b.WriteString(": ")
			b.WriteString(turn.Content)
		}
	}

	b.WriteString("\n\nUser question: ")
	b.WriteString(message)
	return b.String()
}
