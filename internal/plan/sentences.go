package plan

import (
	"strings"
	"unicode"
)

// splitSentences breaks text on terminal punctuation boundaries, keeping
// the punctuation with its sentence. Closing quotes and brackets directly
// after the terminator stay attached.
func splitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var sentences []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		// swallow runs like "?!" or "..."
		for i+1 < len(runes) && isTerminal(runes[i+1]) {
			i++
		}
		for i+1 < len(runes) && isTrailing(runes[i+1]) {
			i++
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		s := strings.TrimSpace(string(runes[start : i+1]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isTrailing(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', ')', ']':
		return true
	}
	return false
}

// wrapWords greedily slices a word list into pieces of at most maxWords.
func wrapWords(words []string, maxWords int) [][]string {
	if maxWords < 1 {
		maxWords = 1
	}
	var pieces [][]string
	for len(words) > 0 {
		n := maxWords
		if n > len(words) {
			n = len(words)
		}
		pieces = append(pieces, words[:n])
		words = words[n:]
	}
	return pieces
}
