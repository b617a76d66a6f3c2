package agent

import (
	"fmt"
	"sort"
	"strings"
)

// SessionKey scopes all per-user state: "<channel>:<userID>".
func SessionKey(channel, userID string) (string, error) {
	channel = strings.ToLower(strings.TrimSpace(channel))
	userID = strings.TrimSpace(userID)
	if channel == "" {
		return "", fmt.Errorf("%w: missing channel", ErrInvalidInput)
	}
	if userID == "" {
		return "", fmt.Errorf("%w: missing user id", ErrInvalidInput)
	}
	if strings.Contains(channel, ":") {
		return "", fmt.Errorf("%w: channel %q must not contain ':'", ErrInvalidInput, channel)
	}
	return channel + ":" + userID, nil
}

// SplitSessionKey is the inverse of SessionKey.
func SplitSessionKey(key string) (channel, userID string, ok bool) {
	channel, userID, ok = strings.Cut(key, ":")
	if !ok || channel == "" || userID == "" {
		return "", "", false
	}
	return channel, userID, true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
