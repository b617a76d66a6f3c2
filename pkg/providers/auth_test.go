package providers

import (
	"context"
	"net/http"
	"testing"
)

func TestStaticTokenSource_RejectsPlaceholderToken(t *testing.T) {
	src := NewStaticTokenSource("<GEMINI_KEY>", "providers.credentials[0].api_key")
	if _, err := src.Token(context.Background()); err == nil {
		t.Fatalf("expected placeholder token to be rejected")
	}
}

func TestStaticTokenSource_RejectsEnvReferenceToken(t *testing.T) {
	src := NewStaticTokenSource("${GEMINI_KEY}", "providers.credentials[0].api_key")
	if _, err := src.Token(context.Background()); err == nil {
		t.Fatalf("expected env reference token to be rejected")
	}
}

func TestEnvTokenSource_ReadsAtCallTime(t *testing.T) {
	src := NewEnvTokenSource("WARGABOT_TEST_KEY")
	if _, err := src.Token(context.Background()); err == nil {
		t.Fatalf("expected empty env error")
	}
	t.Setenv("WARGABOT_TEST_KEY", "rotated")
	got, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if got != "rotated" {
		t.Fatalf("expected rotated key, got %q", got)
	}
}

func TestAuthStrategies_ApplyHeaders(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	if err := NewAPIKeyAuth(NewStaticTokenSource("k1", "")).Apply(context.Background(), req); err != nil {
		t.Fatalf("apply bearer: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer k1" {
		t.Fatalf("expected bearer header, got %q", got)
	}

	req2, _ := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	if err := NewHeaderKeyAuth("x-goog-api-key", NewStaticTokenSource("k2", "")).Apply(context.Background(), req2); err != nil {
		t.Fatalf("apply header: %v", err)
	}
	if got := req2.Header.Get("x-goog-api-key"); got != "k2" {
		t.Fatalf("expected header key, got %q", got)
	}
}
