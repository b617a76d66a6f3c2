package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// The planner enforces the per-call deadline; this only guards against a
// caller passing a context without one.
const defaultHTTPTimeout = 120 * time.Second

// maxErrorBodyBytes bounds raw error bodies quoted in errors and logs.
const maxErrorBodyBytes = 2000

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsProvider struct {
	providerName string
	apiBase      string
	auth         AuthStrategy
	httpClient   *http.Client
	extraHeaders map[string]string
}

func newChatCompletionsProvider(providerName, apiBase, proxy string, auth AuthStrategy, extraHeaders map[string]string) (*chatCompletionsProvider, error) {
	providerName = strings.TrimSpace(strings.ToLower(providerName))
	if providerName == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		return nil, fmt.Errorf("%s API base not configured", providerName)
	}
	if auth == nil {
		return nil, fmt.Errorf("%s auth is not configured", providerName)
	}

	client := &http.Client{Timeout: defaultHTTPTimeout}
	proxy = strings.TrimSpace(proxy)
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse %s proxy: %w", providerName, err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	cleanHeaders := map[string]string{}
	for k, v := range extraHeaders {
		name := strings.TrimSpace(k)
		value := strings.TrimSpace(v)
		if name == "" || value == "" {
			continue
		}
		cleanHeaders[name] = value
	}

	return &chatCompletionsProvider{
		providerName: providerName,
		apiBase:      apiBase,
		auth:         auth,
		httpClient:   client,
		extraHeaders: cleanHeaders,
	}, nil
}

func (p *chatCompletionsProvider) Name() string {
	if p == nil {
		return ""
	}
	return p.providerName
}

// Generate sends one JSON-mode chat completion. Failures are returned as
// *ModelError so the planner can classify them.
func (p *chatCompletionsProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if p == nil {
		return nil, fmt.Errorf("provider not initialized")
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, &ModelError{Kind: KindUnsupported, Provider: p.providerName, Message: "model is required"}
	}

	messages := make([]chatMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	requestBody := map[string]interface{}{
		"model":           model,
		"messages":        messages,
		"response_format": responseFormat(req.Schema),
	}
	if req.MaxTokens > 0 {
		requestBody["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		requestBody["temperature"] = req.Temperature
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", p.providerName, err)
	}

	endpoint := p.apiBase + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", p.providerName, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if err := p.auth.Apply(ctx, httpReq); err != nil {
		return nil, &ModelError{
			Kind:     KindInvalidCredential,
			Provider: p.providerName,
			Model:    model,
			Message:  augmentProviderError(KindInvalidCredential, err.Error()),
		}
	}
	for name, value := range p.extraHeaders {
		httpReq.Header.Set(name, value)
	}

	started := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		kind := KindTransient
		if IsTimeout(err) {
			kind = KindTimeout
		}
		return nil, &ModelError{Kind: kind, Provider: p.providerName, Model: model, wrapped: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ModelError{Kind: KindTransient, Provider: p.providerName, Model: model, wrapped: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		me := errorFromStatus(p.providerName, model, resp.StatusCode, resp.Header, extractAPIError(body))
		me.Message = augmentProviderError(me.Kind, me.Message)
		return nil, me
	}

	result, err := parseChatCompletionsResponse(body)
	if err != nil {
		return nil, &ModelError{Kind: KindMalformedOutput, Provider: p.providerName, Model: model, wrapped: err}
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, &ModelError{Kind: KindMalformedOutput, Provider: p.providerName, Model: model, Message: "empty completion"}
	}
	result.Latency = time.Since(started)
	if result.Model == "" {
		result.Model = model
	}
	return result, nil
}

func responseFormat(schema []byte) map[string]interface{} {
	if len(bytes.TrimSpace(schema)) == 0 || !json.Valid(schema) {
		return map[string]interface{}{"type": "json_object"}
	}
	return map[string]interface{}{
		"type": "json_schema",
		"json_schema": map[string]interface{}{
			"name":   "reply",
			"schema": json.RawMessage(schema),
		},
	}
}

func parseChatCompletionsResponse(body []byte) (*Response, error) {
	var apiResponse struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content interface{} `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage *UsageInfo `json:"usage"`
	}

	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, err
	}

	out := &Response{Model: apiResponse.Model}
	if apiResponse.Usage != nil {
		out.Usage = *apiResponse.Usage
	}
	if len(apiResponse.Choices) == 0 {
		return out, nil
	}

	choice := apiResponse.Choices[0]
	out.Text = flattenMessageContent(choice.Message.Content)
	out.FinishReason = choice.FinishReason
	return out, nil
}

func flattenMessageContent(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				parts = append(parts, text)
				continue
			}
			if content, ok := m["content"].(string); ok {
				parts = append(parts, content)
			}
		}
		return strings.Join(parts, "")
	default:
		return ""
	}
}

func extractAPIError(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "empty response body"
	}

	var payload struct {
		Error struct {
			Message string      `json:"message"`
			Type    string      `json:"type"`
			Status  string      `json:"status"`
			Code    interface{} `json:"code"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Error.Message); msg != "" {
			if status := strings.TrimSpace(payload.Error.Status); status != "" {
				return msg + " (" + status + ")"
			}
			return msg
		}
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
	}

	if len(trimmed) > maxErrorBodyBytes {
		cut := maxErrorBodyBytes
		for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
			cut--
		}
		return trimmed[:cut] + "..."
	}
	return trimmed
}
