package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRetriever(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"context": "Pembuatan KTP dilayani di kantor kecamatan.",
			"total":   3,
		})
	}))
	defer srv.Close()

	r := NewHTTPRetriever(srv.URL+"/", time.Second, 4)
	res, err := r.Retrieve(context.Background(), " syarat ktp ")
	require.NoError(t, err)
	assert.Equal(t, "syarat ktp", got.Query)
	assert.Equal(t, 4, got.TopK)
	assert.Equal(t, 3, res.Total)
	assert.False(t, res.Empty())
}

func TestHTTPRetrieverErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPRetriever(srv.URL, time.Second, 0).Retrieve(context.Background(), "jam buka")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()
	_, err = NewHTTPRetriever(slow.URL, 20*time.Millisecond, 0).Retrieve(context.Background(), "jam buka")
	assert.Error(t, err)
}

func TestEmptyQuerySkipsRequest(t *testing.T) {
	res, err := NewHTTPRetriever("http://127.0.0.1:1", time.Second, 1).Retrieve(context.Background(), "  ")
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestNewFallsBackToNoop(t *testing.T) {
	r := New("", 0, 0)
	_, ok := r.(NoopRetriever)
	assert.True(t, ok)
	res, err := r.Retrieve(context.Background(), "apa saja")
	require.NoError(t, err)
	assert.True(t, res.Empty())
}
