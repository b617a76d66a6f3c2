// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

package providers

import (
	"context"
	"time"
)

// Request is one structured-output generation call.
type Request struct {
	System      string
	Prompt      string
	Schema      []byte
	Model       string
	Temperature float64
	MaxTokens   int
}

type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response carries raw model text that is expected, but not guaranteed, to
// parse as the requested schema.
type Response struct {
	Text         string
	Model        string
	FinishReason string
	Usage        UsageInfo
	Latency      time.Duration
}

// LLMProvider is the generative-model boundary. Implementations return a
// *ModelError (or an error wrapping one) for classified failures.
type LLMProvider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Name() string
}
