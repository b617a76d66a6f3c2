// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a model call failure. The planner decides retry vs
// skip from the kind alone.
type ErrorKind string

const (
	KindRateLimited       ErrorKind = "rate_limited"
	KindInvalidCredential ErrorKind = "invalid_credential"
	KindUnsupported       ErrorKind = "unsupported"
	KindTimeout           ErrorKind = "timeout"
	KindMalformedOutput   ErrorKind = "malformed_output"
	KindTransient         ErrorKind = "transient"
)

// ModelError is a classified provider failure.
type ModelError struct {
	Kind       ErrorKind
	Provider   string
	Model      string
	Status     int
	Message    string
	RetryAfter time.Duration
	wrapped    error
}

func (e *ModelError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		b.WriteString(" (" + e.Provider)
		if e.Model != "" {
			b.WriteString("/" + e.Model)
		}
		b.WriteString(")")
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.wrapped != nil {
		b.WriteString(": " + e.wrapped.Error())
	}
	return b.String()
}

func (e *ModelError) Unwrap() error { return e.wrapped }

// Retryable reports whether the same credential/model pair is worth another
// attempt.
func (e *ModelError) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindTimeout, KindMalformedOutput, KindTransient:
		return true
	default:
		return false
	}
}

func NewModelError(kind ErrorKind, message string) *ModelError {
	return &ModelError{Kind: kind, Message: message}
}

// WrapModelError attaches a kind to err unless err already carries one.
func WrapModelError(err error, kind ErrorKind) *ModelError {
	if err == nil {
		return nil
	}
	var me *ModelError
	if errors.As(err, &me) {
		return me
	}
	return &ModelError{Kind: kind, wrapped: err}
}

// ClassifyError maps any error returned by a provider call to a kind.
// Unclassified errors are transient.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var me *ModelError
	if errors.As(err, &me) {
		return me.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if kind, ok := classifyMessage(err.Error()); ok {
		return kind
	}
	return KindTransient
}

func classify(kind ErrorKind) func(error) bool {
	return func(err error) bool {
		return err != nil && ClassifyError(err) == kind
	}
}

var (
	IsRateLimited       = classify(KindRateLimited)
	IsInvalidCredential = classify(KindInvalidCredential)
	IsUnsupported       = classify(KindUnsupported)
	IsTimeout           = classify(KindTimeout)
	IsMalformedOutput   = classify(KindMalformedOutput)
)

// errorFromStatus builds a ModelError from a non-2xx response.
func errorFromStatus(provider, model string, status int, header http.Header, message string) *ModelError {
	kind := KindTransient
	switch {
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusPaymentRequired:
		kind = KindInvalidCredential
	case status == http.StatusNotFound:
		kind = KindUnsupported
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	case status >= 500:
		kind = KindTransient
	}
	// Message hints win for the ambiguous statuses: several providers
	// report quota exhaustion or unknown models as 400/403.
	if status == http.StatusBadRequest || status == http.StatusForbidden || status == http.StatusNotFound {
		if hinted, ok := classifyMessage(message); ok {
			kind = hinted
		}
	}
	return &ModelError{
		Kind:       kind,
		Provider:   provider,
		Model:      model,
		Status:     status,
		Message:    message,
		RetryAfter: parseRetryAfter(header),
	}
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
