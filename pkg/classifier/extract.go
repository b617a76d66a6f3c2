package classifier

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	streetAddressPattern = regexp.MustCompile(`(?i)\b(?:jl\.?|jln\.?|jalan|gang|gg\.?|komplek|komp\.?|perumahan|perum\.?|blok)\s+[a-z0-9][\w.'/-]*(?:\s+[\w.'/-]+){0,5}?\s+(?:no\.?|nomor|nomer|#)\s*\d+[a-z]?(?:\s*,?\s*(?:rt|rw)\s*\.?\s*\d+)*`)
	rtRwPattern          = regexp.MustCompile(`(?i)\brt\s*\.?\s*\d+\s*/?\s*(?:rw\s*\.?\s*)?\d*`)
	landmarkPattern      = regexp.MustCompile(`(?i)\b(?:depan|dekat|sebelah|samping|belakang|seberang|di ujung)\s+[\w .'-]{3,60}`)

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:nama\s+saya|namaku|nama\s+aku|saya\s+bernama|panggil\s+saya|panggil\s+aja|perkenalkan(?:\s*,)?\s+saya)(?:\s+adalah|\s*:)?\s+([a-z][a-z'.]*(?:\s+[a-z][a-z'.]*){0,2})`),
		regexp.MustCompile(`(?i)^(?:saya|aku)\s+([a-z][a-z'.]*(?:\s+[a-z][a-z'.]*){0,1})[.!]?$`),
	}
	phonePattern = regexp.MustCompile(`(?:\+62|62|0)8[1-9][0-9]{6,11}`)
)

// Words that follow "saya" but are not names.
var nameStopwords = map[string]bool{
	"mau": true, "ingin": true, "akan": true, "sudah": true, "udah": true, "tidak": true, "gak": true,
	"ga": true, "belum": true, "sedang": true, "lagi": true, "perlu": true, "butuh": true, "minta": true,
	"bisa": true, "warga": true, "tinggal": true, "di": true, "dari": true, "punya": true, "ada": true,
	"bingung": true, "tanya": true, "bertanya": true, "lapor": true, "melapor": true, "setuju": true,
	"ok": true, "oke": true, "ya": true, "iya": true, "baik": true, "senang": true, "kecewa": true,
	"mohon": true, "masih": true, "juga": true, "cuma": true, "hanya": true, "pak": true, "bu": true,
	"yang": true, "ini": true, "itu": true, "adalah": true,
}

// ExtractAddress returns a street address or landmark description found in
// text.
func ExtractAddress(text string) (string, bool) {
	if m := streetAddressPattern.FindString(text); m != "" {
		// "lampu jalan mati di jalan X no 5" matches from the first
		// "jalan"; narrow to the innermost street match.
		for {
			loc := streetAddressPattern.FindStringIndex(m[1:])
			if loc == nil {
				break
			}
			m = m[1+loc[0] : 1+loc[1]]
		}
		return strings.Trim(strings.TrimSpace(m), ",."), true
	}
	for _, re := range []*regexp.Regexp{rtRwPattern, landmarkPattern} {
		if m := re.FindString(text); m != "" {
			return strings.Trim(strings.TrimSpace(m), ",."), true
		}
	}
	return "", false
}

// LooksLikeAddress accepts free text as an address answer: it has an
// address pattern, or is a short phrase with a letter and a digit.
func LooksLikeAddress(text string) bool {
	if _, ok := ExtractAddress(text); ok {
		return true
	}
	norm := Normalize(text)
	if len(norm) < 5 || len(norm) > 200 {
		return false
	}
	hasLetter, hasDigit := false, false
	for _, r := range norm {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// ExtractName finds a self-introduced name such as "nama saya Budi".
func ExtractName(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	for _, re := range namePatterns {
		m := re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		if name, ok := cleanName(m[1]); ok {
			return name, true
		}
	}
	return "", false
}

// NameFromReply treats a short, letters-only answer as a name. Used when
// the assistant has just asked for one.
func NameFromReply(text string) (string, bool) {
	if name, ok := ExtractName(text); ok {
		return name, true
	}
	norm := Normalize(text)
	words := strings.Fields(norm)
	if len(words) == 0 || len(words) > 3 {
		return "", false
	}
	if _, isConfirm := IsShortConfirmation(norm); isConfirm {
		return "", false
	}
	if Classify(text).Matched() {
		return "", false
	}
	return cleanName(norm)
}

func cleanName(raw string) (string, bool) {
	words := strings.Fields(strings.Trim(raw, " .,!"))
	out := make([]string, 0, len(words))
	for _, w := range words {
		lw := strings.ToLower(w)
		if nameStopwords[lw] {
			break
		}
		for _, r := range lw {
			if !unicode.IsLetter(r) && r != '\'' && r != '.' {
				return "", false
			}
		}
		rs := []rune(lw)
		rs[0] = unicode.ToUpper(rs[0])
		out = append(out, string(rs))
	}
	if len(out) == 0 {
		return "", false
	}
	name := strings.Join(out, " ")
	if len(name) < 2 || len(name) > 50 {
		return "", false
	}
	return name, true
}

// ExtractPhone returns an Indonesian mobile number, normalized to 08...
func ExtractPhone(text string) (string, bool) {
	compact := strings.NewReplacer(" ", "", "-", "", ".", "").Replace(text)
	m := phonePattern.FindString(compact)
	if m == "" {
		return "", false
	}
	switch {
	case strings.HasPrefix(m, "+62"):
		m = "0" + m[3:]
	case strings.HasPrefix(m, "62"):
		m = "0" + m[2:]
	}
	return m, true
}
