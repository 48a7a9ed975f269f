package oracle

import "strings"

// ExtractCode pulls a program body out of a free-form oracle response:
// prefer the content of the first fenced
// code block, falling back to the full response verbatim. Structured
// content from the oracle must be unambiguously terminable, so an unclosed
// fence is treated as "no fence" rather than consuming the rest of the text.
func ExtractCode(response string) string {
	start := strings.Index(response, "```")
	if start == -1 {
		return strings.TrimSpace(response)
	}

	afterFence := response[start+3:]
	// Skip an optional language tag on the opening fence line.
	if nl := strings.IndexByte(afterFence, '\n'); nl != -1 {
		tag := afterFence[:nl]
		if !strings.Contains(tag, "`") && len(tag) < 32 {
			afterFence = afterFence[nl+1:]
		}
	}

	end := strings.Index(afterFence, "```")
	if end == -1 {
		// Unclosed fence: the response isn't unambiguously terminable,
		// fall back to the raw text.
		return strings.TrimSpace(response)
	}

	return strings.TrimSpace(afterFence[:end])
}
