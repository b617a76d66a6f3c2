package intent

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CaseType distinguishes the two kinds of tracked cases.
type CaseType string

const (
	CaseComplaint      CaseType = "complaint"
	CaseServiceRequest CaseType = "service_request"
)

const (
	complaintPrefix = "LAP"
	servicePrefix   = "LAY"
)

var (
	trackingCodePattern = regexp.MustCompile(`(?i)\b(LAP|LAY)-(\d{8})-(\d{3,})\b`)
	exactCodePattern    = regexp.MustCompile(`^(LAP|LAY)-\d{8}-\d{3,}$`)
)

// FindTrackingCode returns the first tracking code anywhere in text,
// upper-cased.
func FindTrackingCode(text string) (string, bool) {
	m := trackingCodePattern.FindString(text)
	if m == "" {
		return "", false
	}
	return strings.ToUpper(m), true
}

func IsTrackingCode(code string) bool {
	return exactCodePattern.MatchString(NormalizeTrackingCode(code))
}

func NormalizeTrackingCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CaseTypeOf derives the case type from the code prefix.
func CaseTypeOf(code string) (CaseType, bool) {
	code = NormalizeTrackingCode(code)
	switch {
	case strings.HasPrefix(code, complaintPrefix+"-"):
		return CaseComplaint, true
	case strings.HasPrefix(code, servicePrefix+"-"):
		return CaseServiceRequest, true
	}
	return "", false
}

// FormatTrackingCode renders PREFIX-YYYYMMDD-NNN for a case created on day
// with the given daily sequence number.
func FormatTrackingCode(t CaseType, day time.Time, seq int) string {
	prefix := complaintPrefix
	if t == CaseServiceRequest {
		prefix = servicePrefix
	}
	return fmt.Sprintf("%s-%s-%03d", prefix, day.Format("20060102"), seq)
}
