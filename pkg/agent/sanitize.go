package agent

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	codeFencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	strayJSONPattern = regexp.MustCompile(`(?s)\{\s*"intent"\s*:.*$`)
	profanityPattern = regexp.MustCompile(`(?i)\b(anjing|anjir|bangsat|bajingan|brengsek|goblok|goblog|tolol|kampret|keparat|kontol|memek|ngentot|jancok|jancuk|asu|tai|babi)\b`)
	blankLines       = regexp.MustCompile(`\n{3,}`)
)

// Sanitize cleans model text before it reaches the user: structured
// output artifacts are removed, profanity is masked and the result is
// capped at maxRunes.
func Sanitize(text string, maxRunes int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if reply, ok := replyFromJSON(text); ok {
		text = reply
	}
	text = codeFencePattern.ReplaceAllStringFunc(text, func(block string) string {
		inner := codeFencePattern.FindStringSubmatch(block)[1]
		if reply, ok := replyFromJSON(inner); ok {
			return reply
		}
		return ""
	})
	text = strayJSONPattern.ReplaceAllString(text, "")
	text = MaskProfanity(text)
	text = blankLines.ReplaceAllString(strings.TrimSpace(text), "\n\n")

	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		runes := []rune(text)
		cut := string(runes[:maxRunes])
		if i := strings.LastIndexAny(cut, ".!?\n"); i > len(cut)/2 {
			cut = cut[:i+1]
		}
		text = strings.TrimSpace(cut)
	}
	return text
}

// replyFromJSON recovers the reply field when the whole text is a JSON
// object.
func replyFromJSON(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return "", false
	}
	reply, _ := payload["reply"].(string)
	return strings.TrimSpace(reply), true
}

// MaskProfanity keeps the first letter of each matched word.
func MaskProfanity(text string) string {
	return profanityPattern.ReplaceAllStringFunc(text, func(w string) string {
		r, size := utf8.DecodeRuneInString(w)
		return string(r) + strings.Repeat("*", utf8.RuneCountInString(w[size:]))
	})
}
