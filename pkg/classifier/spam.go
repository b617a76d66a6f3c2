package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxMessageRunes = 4000
	maxLinks        = 3
	maxCharRun      = 30
)

var linkPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)

var spamPhrases = []string{
	"slot gacor", "judi online", "deposit pulsa", "pinjol cepat cair", "maxwin", "bonus new member",
}

// DetectSpam reports whether a message should be dropped without a reply,
// with a short reason for logs.
func DetectSpam(text string) (bool, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true, "empty"
	}
	if utf8.RuneCountInString(trimmed) > maxMessageRunes {
		return true, "too_long"
	}
	if len(linkPattern.FindAllString(trimmed, -1)) > maxLinks {
		return true, "link_flood"
	}
	lower := strings.ToLower(trimmed)
	for _, p := range spamPhrases {
		if strings.Contains(lower, p) {
			return true, "promotional"
		}
	}
	if longestRun(trimmed) >= maxCharRun {
		return true, "repeated_characters"
	}
	if repeatedWords(lower) {
		return true, "repeated_words"
	}
	return false, ""
}

func longestRun(s string) int {
	best, cur := 0, 0
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			cur++
		} else {
			cur = 1
		}
		prev = r
		if cur > best {
			best = cur
		}
	}
	return best
}

// repeatedWords catches a single token pasted many times.
func repeatedWords(lower string) bool {
	words := strings.Fields(lower)
	if len(words) < 10 {
		return false
	}
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	for _, n := range counts {
		if n*10 >= len(words)*8 {
			return true
		}
	}
	return false
}
