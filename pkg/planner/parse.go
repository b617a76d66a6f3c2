package planner

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Stage names the repair step that produced a parsed payload.
type Stage string

const (
	StageStrict    Stage = "strict"
	StageClosed    Stage = "closed"
	StageSubstring Stage = "substring"
	StageRegex     Stage = "regex"
	StageFallback  Stage = "fallback"
)

// TechnicalErrorReply is the reply carried by the fallback payload.
const TechnicalErrorReply = "Maaf, terjadi kendala teknis saat memproses pesan Anda. Silakan coba lagi sebentar lagi."

// DefaultRequired are the fields every structured reply must carry.
var DefaultRequired = []string{"intent", "reply"}

var (
	fencePattern         = regexp.MustCompile("(?s)^\\s*```(?:json|JSON)?\\s*(.*?)\\s*(?:```\\s*)?$")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseStructured turns raw model text into a JSON object, trying in order:
// a strict parse, closing a truncated document, the largest embedded
// object, and per-field regex extraction. When every step fails it returns
// the technical-error payload, so the result is never nil.
func ParseStructured(text string, required []string) (map[string]interface{}, Stage) {
	if len(required) == 0 {
		required = DefaultRequired
	}
	cleaned := stripFences(text)

	if obj, ok := decodeObject(cleaned, required); ok {
		return obj, StageStrict
	}
	if obj, ok := decodeObject(closeTruncated(cleaned), required); ok {
		return obj, StageClosed
	}
	if obj, ok := largestObject(cleaned, required); ok {
		return obj, StageSubstring
	}
	if obj, ok := extractFields(cleaned, required); ok {
		return obj, StageRegex
	}
	return FallbackPayload(), StageFallback
}

// FallbackPayload is the structured value substituted for unparseable
// output.
func FallbackPayload() map[string]interface{} {
	return map[string]interface{}{
		"intent":          "unknown",
		"reply":           TechnicalErrorReply,
		"technical_error": true,
	}
}

func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return trimmed
}

func decodeObject(text string, required []string) (map[string]interface{}, bool) {
	text = strings.TrimSpace(text)
	if text == "" || text[0] != '{' {
		return nil, false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		fixed := trailingCommaPattern.ReplaceAllString(text, "$1")
		if err := json.Unmarshal([]byte(fixed), &obj); err != nil {
			return nil, false
		}
	}
	if !hasFields(obj, required) {
		return nil, false
	}
	return obj, true
}

func hasFields(obj map[string]interface{}, required []string) bool {
	if obj == nil {
		return false
	}
	for _, f := range required {
		if _, ok := obj[f]; !ok {
			return false
		}
	}
	return true
}

// closeTruncated completes a document cut off mid-stream: it closes an open
// string and open brackets. If that still does not parse it backs off to
// the previous comma and tries again, dropping the partial member.
func closeTruncated(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return text
	}
	s := text[start:]
	for i := 0; i < 8 && s != ""; i++ {
		candidate := closeOnce(s)
		if json.Valid([]byte(candidate)) {
			return candidate
		}
		cut := strings.LastIndexByte(s, ',')
		if cut <= 0 {
			break
		}
		s = s[:cut]
	}
	return closeOnce(s)
}

func closeOnce(s string) string {
	var (
		stack  []byte
		inStr  bool
		escape bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	out := s
	if inStr {
		if escape {
			out = out[:len(out)-1]
		}
		out += `"`
	}
	out = strings.TrimRight(out, " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	if strings.HasSuffix(out, ":") {
		out += "null"
	}
	var b strings.Builder
	b.WriteString(out)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return trailingCommaPattern.ReplaceAllString(b.String(), "$1")
}

// largestObject returns the longest balanced {...} span that decodes and
// carries the required fields.
func largestObject(text string, required []string) (map[string]interface{}, bool) {
	var (
		best    map[string]interface{}
		bestLen int
	)
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := matchingBrace(text, i)
		if end < 0 || end+1-i <= bestLen {
			continue
		}
		if obj, ok := decodeObject(text[i:end+1], required); ok {
			best = obj
			bestLen = end + 1 - i
		}
	}
	return best, best != nil
}

func matchingBrace(text string, start int) int {
	depth := 0
	inStr, escape := false, false
	for j := start; j < len(text); j++ {
		c := text[j]
		if inStr {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// extractFields pulls "field": "value" pairs out of text that is not JSON
// at all. A string value cut off before its closing quote is accepted.
func extractFields(text string, required []string) (map[string]interface{}, bool) {
	obj := make(map[string]interface{}, len(required))
	for _, field := range required {
		re := regexp.MustCompile(`"` + regexp.QuoteMeta(field) + `"\s*:\s*"((?:[^"\\]|\\.)*)`)
		m := re.FindStringSubmatch(text)
		if m == nil {
			return nil, false
		}
		obj[field] = unescapeJSONString(m[1])
	}
	return obj, true
}

func unescapeJSONString(raw string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &out); err == nil {
		return out
	}
	return strings.TrimSuffix(raw, `\`)
}
