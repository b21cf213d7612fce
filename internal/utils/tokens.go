package utils

// Rough token estimation for logging prompt sizes.

// CountTokens estimates the number of tokens in the given text.
// We approximate 1 token ~= 4 characters.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	// Ensure at least 1 token for any non-empty text
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// FitsBudget reports whether prompt plus a reply of maxTokens stays within a
// model's context window. A zero window means unknown and always fits.
func FitsBudget(prompt string, maxTokens, window int) bool {
	if window <= 0 {
		return true
	}
	return CountTokens(prompt)+maxTokens <= window
}

// TokenBreakdown returns a simple breakdown map of labeled sections to token counts.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
