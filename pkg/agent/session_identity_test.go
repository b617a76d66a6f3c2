package agent

import (
	"errors"
	"testing"
)

func TestSessionKey(t *testing.T) {
	k, err := SessionKey(" Discord ", "1234")
	if err != nil {
		t.Fatalf("session key: %v", err)
	}
	if k != "discord:1234" {
		t.Fatalf("expected discord:1234, got %q", k)
	}

	ch, user, ok := SplitSessionKey(k)
	if !ok || ch != "discord" || user != "1234" {
		t.Fatalf("split mismatch: %q %q %v", ch, user, ok)
	}
}

func TestSessionKey_DiffersByChannel(t *testing.T) {
	a, _ := SessionKey("discord", "1")
	b, _ := SessionKey("web", "1")
	if a == b {
		t.Fatalf("expected different keys per channel")
	}
}

func TestSessionKey_RejectsIncomplete(t *testing.T) {
	for _, tc := range [][2]string{{"", "u"}, {"web", ""}, {"a:b", "u"}} {
		if _, err := SessionKey(tc[0], tc[1]); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %v, got %v", tc, err)
		}
	}
	if _, _, ok := SplitSessionKey("nocolon"); ok {
		t.Fatalf("expected split failure")
	}
}
