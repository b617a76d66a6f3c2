package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// fingerprint identifies a delivery of the same message by the same
// session. The payload is canonicalized (RFC 8785) before hashing so key
// order never changes the digest.
func fingerprint(sessionKey, text, mediaURL string) (string, error) {
	raw, err := json.Marshal(map[string]string{
		"session_key": sessionKey,
		"text":        text,
		"media_url":   mediaURL,
	})
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
