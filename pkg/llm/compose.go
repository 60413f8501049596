package llm

import "strings"

// System prompt fragments injected before every completion request. The
// concise directive always applies; the web and memory blocks are appended
// only when the corresponding context is non-empty.
const (
	conciseDirective = "You are a helpful assistant. Please keep your responses concise and aim for approximately 100 words. Complete your thoughts naturally within this limit."

	// applied when merging into a caller-provided system message, which
	// already establishes its own persona.
	conciseSuffix = "Please keep your responses concise and aim for approximately 100 words. Complete your thoughts naturally within this limit."

	webDirective = "You are a web-enabled research assistant. Use the following web results to answer the question accurately. Do NOT hallucinate. Base answers strictly on the data provided.\n\nWeb results:\n"

	memoryHeader = "Relevant context from memory:\n"
)

// Compose builds the provider-bound message list from conversation history
// and retrieved context. When the history already carries a system message
// the directives are appended to it; otherwise a new system message is
// prepended. Compose never mutates its input and is deterministic for
// identical inputs.
func Compose(history []ChatMessage, memoryText, searchText string) []ChatMessage {
	var extras strings.Builder
	if searchText != "" {
		extras.WriteString("\n\n")
		extras.WriteString(webDirective)
		extras.WriteString(searchText)
	}
	if memoryText != "" {
		extras.WriteString("\n\n")
		extras.WriteString(memoryHeader)
		extras.WriteString(memoryText)
	}

	if hasSystem(history) {
		out := make([]ChatMessage, len(history))
		copy(out, history)
		for i := range out {
			if out[i].Role == RoleSystem {
				out[i].Content += "\n\n" + conciseSuffix + extras.String()
			}
		}
		return out
	}

	out := make([]ChatMessage, 0, len(history)+1)
	out = append(out, ChatMessage{
		Role:    RoleSystem,
		Content: conciseDirective + extras.String(),
	})
	out = append(out, history...)

	return out
}

func hasSystem(msgs []ChatMessage) bool {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			return true
		}
	}
	return false
}
