// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

// Package knowledge queries the retrieval service that supplies reference
// text for prompts.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Result is the ranked context for one query. Context is empty when
// nothing matched.
type Result struct {
	Context string
	Total   int
}

func (r Result) Empty() bool {
	return strings.TrimSpace(r.Context) == ""
}

type Retriever interface {
	Retrieve(ctx context.Context, query string) (Result, error)
}

// NoopRetriever is used when no retrieval service is configured.
type NoopRetriever struct{}

func (NoopRetriever) Retrieve(context.Context, string) (Result, error) {
	return Result{}, nil
}

// HTTPRetriever POSTs {query, top_k} to <base>/search and reads
// {context, total}.
type HTTPRetriever struct {
	baseURL    string
	topK       int
	httpClient *http.Client
}

func NewHTTPRetriever(baseURL string, timeout time.Duration, topK int) *HTTPRetriever {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if topK <= 0 {
		topK = 5
	}
	return &HTTPRetriever{
		baseURL:    strings.TrimRight(baseURL, "/"),
		topK:       topK,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResponse struct {
	Context string `json:"context"`
	Total   int    `json:"total"`
}

func (r *HTTPRetriever) Retrieve(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, nil
	}

	body, err := json.Marshal(searchRequest{Query: query, TopK: r.topK})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("knowledge request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("knowledge service status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out searchResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return Result{Context: out.Context, Total: out.Total}, nil
}

// New picks the HTTP retriever when baseURL is set.
func New(baseURL string, timeout time.Duration, topK int) Retriever {
	if strings.TrimSpace(baseURL) == "" {
		return NoopRetriever{}
	}
	return NewHTTPRetriever(baseURL, timeout, topK)
}
