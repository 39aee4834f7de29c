package store

import (
	"strings"
	"unicode"
)

// Tokenize splits prose into lowercase search tokens. Words are Unicode
// letter/digit runs; hyphenated compounds ("write-ahead") and possessives
// ("raft's") split into their parts. Inline code fragments keep working:
// camelCase and snake_case break at their boundaries so "maxBatchSize"
// matches a query for "batch". Tokens under 2 runes are dropped.
func Tokenize(text string) []string {
	var tokens []string
	var word []rune

	flush := func() {
		if len(word) == 0 {
			return
		}
		tokens = appendWordTokens(tokens, word)
		word = word[:0]
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			word = append(word, r)
		default:
			// Apostrophes, hyphens and all punctuation end the word;
			// a possessive's head survives as its own token.
			flush()
		}
	}
	flush()

	return tokens
}

// appendWordTokens breaks one word at case and underscore boundaries and
// appends the lowercased parts.
func appendWordTokens(tokens []string, word []rune) []string {
	start := 0
	for i := 1; i < len(word); i++ {
		boundary := word[i] == '_' || word[i-1] == '_'
		if !boundary && unicode.IsUpper(word[i]) {
			// Break before an upper rune that starts a new hump: either
			// the previous rune is lower, or an acronym run ends here
			// ("parseHTTPRequest" breaks before the final R).
			prevLower := unicode.IsLower(word[i-1])
			nextLower := i+1 < len(word) && unicode.IsLower(word[i+1])
			boundary = prevLower || nextLower
		}
		if boundary {
			tokens = appendToken(tokens, word[start:i])
			start = i
		}
	}
	return appendToken(tokens, word[start:])
}

func appendToken(tokens []string, part []rune) []string {
	for len(part) > 0 && part[0] == '_' {
		part = part[1:]
	}
	if len(part) < 2 {
		return tokens
	}
	return append(tokens, strings.ToLower(string(part)))
}

// FilterStopWords removes stop words from a token list, matching
// case-insensitively and keeping the remaining tokens verbatim.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a stop word list to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
