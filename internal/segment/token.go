package segment

import "strings"

// EstimateTokens gives a rough token count from the word count.
// Chunk sizes are measured in characters; this only annotates chunks for logging.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	// Roughly 0.75 words per token for English text.
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
