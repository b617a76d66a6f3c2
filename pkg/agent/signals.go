package agent

import (
	"regexp"

	"github.com/dotsetgreg/wargabot/pkg/classifier"
)

var (
	englishMarkers  = regexp.MustCompile(`\b(the|is|are|what|how|where|when|please|thanks|thank you|can you|i want|my|hello)\b`)
	negativeMarkers = regexp.MustCompile(`\b(kecewa|marah|kesal|parah|lambat|lelet|tidak becus|ga becus|gak becus|payah|buruk|mengecewakan|capek|sudah lama|berkali[- ]kali|tidak ada tindakan|gak ditanggapi|tidak ditanggapi)\b`)
	urgentMarkers   = regexp.MustCompile(`\b(darurat|segera|bahaya|berbahaya|urgent|korban|kebakaran|tersengat)\b`)
)

// Signals are coarse hints about how to phrase the reply.
type Signals struct {
	Language  string
	Sentiment string
	Urgent    bool
}

func detectSignals(text string) Signals {
	norm := classifier.Normalize(text)
	s := Signals{Language: "id", Sentiment: "neutral"}
	if len(englishMarkers.FindAllString(norm, -1)) >= 2 {
		s.Language = "en"
	}
	if negativeMarkers.MatchString(norm) {
		s.Sentiment = "negative"
	}
	s.Urgent = urgentMarkers.MatchString(norm)
	return s
}
