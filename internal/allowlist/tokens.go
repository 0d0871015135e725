package allowlist

import "strings"

// Normalize returns the canonical token form of an email address.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IndexOf returns the index of the first token equal to token, or -1.
func IndexOf(tokens []string, token string) int {
	for i, candidate := range tokens {
		if candidate == token {
			return i
		}
	}
	return -1
}

// Remove returns a copy of tokens without the first occurrence of token.
// The input slice is never modified.
func Remove(tokens []string, token string) ([]string, bool) {
	idx := IndexOf(tokens, token)
	if idx < 0 {
		return tokens, false
	}

	out := make([]string, 0, len(tokens)-1)
	out = append(out, tokens[:idx]...)
	out = append(out, tokens[idx+1:]...)
	return out, true
}

// Add returns a copy of tokens with token appended unless it is already present.
func Add(tokens []string, token string) ([]string, bool) {
	if token == "" || IndexOf(tokens, token) >= 0 {
		return tokens, false
	}

	out := make([]string, 0, len(tokens)+1)
	out = append(out, tokens...)
	out = append(out, token)
	return out, true
}
