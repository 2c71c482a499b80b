package service

// EstimateTokens approximates the token count of a text as one token
// per four characters, rounded up. Message rows carrying an explicit
// estimate keep it; this is the fallback for raw text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
