// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

// Package planner sequences credentials and models for one logical model
// request. Every Execute either succeeds or reports exhaustion; provider
// errors never escape it.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"

	"github.com/dotsetgreg/wargabot/pkg/config"
	"github.com/dotsetgreg/wargabot/pkg/logger"
	"github.com/dotsetgreg/wargabot/pkg/providers"
	"github.com/dotsetgreg/wargabot/pkg/usage"
)

// CallPlanEntry is one (credential, model) attempt slot.
type CallPlanEntry struct {
	Credential providers.Credential
	Model      string
}

// Call is one logical request.
type Call struct {
	// Purpose labels the call in logs ("turn", "confirm", "guard").
	Purpose        string
	System         string
	Prompt         string
	Schema         []byte
	RequiredFields []string
	Temperature    float64
	MaxTokens      int
}

// Metrics describe the successful attempt and how it was reached.
type Metrics struct {
	Credential   string
	Tier         providers.Tier
	Origin       string
	Model        string
	Attempts     int
	Latency      time.Duration
	CallLatency  time.Duration
	Tokens       providers.UsageInfo
	ParseStage   Stage
	SkippedPairs int
}

// Failure is one failed attempt.
type Failure struct {
	Credential string
	Model      string
	Attempt    int
	Kind       providers.ErrorKind
	Message    string
}

// Outcome is the result of Execute. Exactly one of OK and Exhausted is set.
type Outcome struct {
	OK        bool
	Exhausted bool
	Payload   map[string]interface{}
	Raw       string
	Metrics   Metrics
	Failures  []Failure
	// Reason summarizes why the plan was exhausted.
	Reason string
}

// LastKind is the kind of the final failed attempt, or "".
func (o Outcome) LastKind() providers.ErrorKind {
	if len(o.Failures) == 0 {
		return ""
	}
	return o.Failures[len(o.Failures)-1].Kind
}

type Options struct {
	RetriesPerPair  int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	Jitter          time.Duration
	JSONDefectDelay time.Duration
	CallTimeout     time.Duration
	// Sleep waits between retries; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a value in [0,1) for jitter.
	Rand func() float64
}

func DefaultOptions() Options {
	return Options{
		RetriesPerPair:  2,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        8 * time.Second,
		Jitter:          250 * time.Millisecond,
		JSONDefectDelay: time.Second,
		CallTimeout:     30 * time.Second,
	}
}

// OptionsFromConfig reads the planner section.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	pc := cfg.Planner
	if pc.RetriesPerPair > 0 {
		opts.RetriesPerPair = pc.RetriesPerPair
	}
	if pc.BaseDelayMS > 0 {
		opts.BaseDelay = config.Millis(pc.BaseDelayMS)
	}
	if pc.MaxDelayMS > 0 {
		opts.MaxDelay = config.Millis(pc.MaxDelayMS)
	}
	if pc.JitterMS >= 0 {
		opts.Jitter = config.Millis(pc.JitterMS)
	}
	if pc.JSONDefectDelayMS >= 0 {
		opts.JSONDefectDelay = config.Millis(pc.JSONDefectDelayMS)
	}
	if pc.CallTimeoutMS > 0 {
		opts.CallTimeout = config.Millis(pc.CallTimeoutMS)
	}
	return opts
}

type Planner struct {
	credentials []providers.Credential
	models      []string
	tracker     *usage.Tracker
	opts        Options

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema
}

// New builds a planner. A nil tracker disables reordering and recording.
func New(credentials []providers.Credential, models []string, tracker *usage.Tracker, opts Options) *Planner {
	if opts.RetriesPerPair < 1 {
		opts.RetriesPerPair = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &Planner{
		credentials: append([]providers.Credential(nil), credentials...),
		models:      append([]string(nil), models...),
		tracker:     tracker,
		opts:        opts,
		schemas:     make(map[string]*jsonschema.Schema),
	}
}

// Plan returns the full cross product, credential-major and model-minor,
// with no reordering.
func Plan(credentials []providers.Credential, models []string) []CallPlanEntry {
	out := make([]CallPlanEntry, 0, len(credentials)*len(models))
	for _, cred := range credentials {
		for _, model := range models {
			out = append(out, CallPlanEntry{Credential: cred, Model: model})
		}
	}
	return out
}

// Plan returns the attempt sequence for the next Execute. Credential order
// is fixed; models are reordered per credential by the usage tracker.
func (p *Planner) Plan() []CallPlanEntry {
	out := make([]CallPlanEntry, 0, len(p.credentials)*len(p.models))
	for _, cred := range p.credentials {
		models := p.models
		if p.tracker != nil {
			models = p.tracker.Prioritize(cred.ID, p.models)
		}
		for _, model := range models {
			out = append(out, CallPlanEntry{Credential: cred, Model: model})
		}
	}
	return out
}

// Execute runs the plan for call until one attempt yields a usable
// structured payload or every pair has been tried.
func (p *Planner) Execute(ctx context.Context, call Call) Outcome {
	started := time.Now()
	plan := p.Plan()
	if len(plan) == 0 {
		return Outcome{Exhausted: true, Reason: "no credentials or models configured"}
	}

	var (
		outcome      Outcome
		attempts     int
		skippedCreds = map[string]bool{}
	)

	for _, entry := range plan {
		credID := entry.Credential.ID
		if skippedCreds[credID] {
			outcome.Metrics.SkippedPairs++
			continue
		}

	retries:
		for attempt := 1; attempt <= p.opts.RetriesPerPair; attempt++ {
			if err := ctx.Err(); err != nil {
				outcome.Exhausted = true
				outcome.Reason = "cancelled: " + err.Error()
				outcome.Metrics.Attempts = attempts
				return outcome
			}

			attempts++
			resp, err := p.attempt(ctx, entry, call)
			if err == nil {
				payload, stage, verr := p.parse(resp.Text, call)
				if verr == nil {
					if p.tracker != nil {
						p.tracker.RecordSuccess(credID, entry.Model, resp.Latency)
					}
					outcome.OK = true
					outcome.Payload = payload
					outcome.Raw = resp.Text
					outcome.Metrics = Metrics{
						Credential:   credID,
						Tier:         entry.Credential.Tier,
						Origin:       entry.Credential.Origin,
						Model:        entry.Model,
						Attempts:     attempts,
						Latency:      time.Since(started),
						CallLatency:  resp.Latency,
						Tokens:       resp.Usage,
						ParseStage:   stage,
						SkippedPairs: outcome.Metrics.SkippedPairs,
					}
					logger.DebugCF("planner", "Model call succeeded", map[string]interface{}{
						"purpose":     call.Purpose,
						"credential":  credID,
						"tier":        string(entry.Credential.Tier),
						"model":       entry.Model,
						"attempts":    attempts,
						"parse_stage": string(stage),
						"latency_ms":  resp.Latency.Milliseconds(),
					})
					return outcome
				}
				err = verr
			}

			kind := providers.ClassifyError(err)
			outcome.Failures = append(outcome.Failures, Failure{
				Credential: credID,
				Model:      entry.Model,
				Attempt:    attempt,
				Kind:       kind,
				Message:    err.Error(),
			})
			logger.WarnCF("planner", "Model call failed", map[string]interface{}{
				"purpose":    call.Purpose,
				"credential": credID,
				"model":      entry.Model,
				"attempt":    attempt,
				"error_kind": string(kind),
				"error":      err.Error(),
			})

			merr := providers.WrapModelError(err, kind)
			if providers.IsRateLimited(merr) {
				if p.tracker != nil {
					p.tracker.MarkRateLimited(credID, entry.Model)
				}
				break retries
			}
			if p.tracker != nil {
				p.tracker.RecordFailure(credID, entry.Model, 0)
			}
			switch {
			case providers.IsInvalidCredential(merr):
				skippedCreds[credID] = true
				break retries
			case providers.IsUnsupported(merr), !merr.Retryable():
				break retries
			default:
				if attempt < p.opts.RetriesPerPair {
					if err := p.opts.Sleep(ctx, p.backoff(attempt, providers.IsMalformedOutput(merr))); err != nil {
						outcome.Exhausted = true
						outcome.Reason = "cancelled: " + err.Error()
						outcome.Metrics.Attempts = attempts
						return outcome
					}
				}
			}
		}
	}

	outcome.Exhausted = true
	outcome.Metrics.Attempts = attempts
	outcome.Metrics.Latency = time.Since(started)
	outcome.Reason = fmt.Sprintf("all %d pairs exhausted after %d attempts (last: %s)", len(plan), attempts, outcome.LastKind())
	logger.ErrorCF("planner", "Call plan exhausted", map[string]interface{}{
		"purpose":   call.Purpose,
		"pairs":     len(plan),
		"attempts":  attempts,
		"last_kind": string(outcome.LastKind()),
	})
	return outcome
}

// attempt makes one provider call under the per-call timeout. The call
// races the deadline so a provider that ignores ctx cannot stall the plan.
func (p *Planner) attempt(ctx context.Context, entry CallPlanEntry, call Call) (*providers.Response, error) {
	if entry.Credential.Provider == nil {
		return nil, providers.NewModelError(providers.KindInvalidCredential, "credential has no provider")
	}

	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	type result struct {
		resp *providers.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: providers.NewModelError(providers.KindTransient, fmt.Sprintf("provider panic: %v", r))}
			}
		}()
		resp, err := entry.Credential.Provider.Generate(callCtx, providers.Request{
			System:      call.System,
			Prompt:      call.Prompt,
			Schema:      call.Schema,
			Model:       entry.Model,
			Temperature: call.Temperature,
			MaxTokens:   call.MaxTokens,
		})
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil && r.resp == nil {
			return nil, providers.NewModelError(providers.KindMalformedOutput, "provider returned no response")
		}
		return r.resp, r.err
	case <-callCtx.Done():
		return nil, providers.WrapModelError(callCtx.Err(), providers.KindTimeout)
	}
}

// parse runs the repair ladder and, when the call carries a schema,
// validates the result. A fallback payload counts as malformed output so
// the pair is retried.
func (p *Planner) parse(text string, call Call) (map[string]interface{}, Stage, error) {
	payload, stage := ParseStructured(text, call.RequiredFields)
	if stage == StageFallback {
		return nil, stage, providers.NewModelError(providers.KindMalformedOutput, "unparseable structured output")
	}
	if len(call.Schema) == 0 {
		return payload, stage, nil
	}

	schema := p.compiledSchema(call.Schema)
	if schema == nil {
		return payload, stage, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, stage, providers.WrapModelError(err, providers.KindMalformedOutput)
	}
	result := schema.ValidateJSON(data)
	if !result.IsValid() {
		return nil, stage, providers.NewModelError(providers.KindMalformedOutput, fmt.Sprintf("schema validation failed: %v", result.Errors))
	}
	return payload, stage, nil
}

func (p *Planner) compiledSchema(raw []byte) *jsonschema.Schema {
	key := string(raw)
	p.schemaMu.Lock()
	defer p.schemaMu.Unlock()
	if s, ok := p.schemas[key]; ok {
		return s
	}
	s, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		logger.WarnCF("planner", "Schema does not compile; skipping validation", map[string]interface{}{
			"error": err.Error(),
		})
		s = nil
	}
	p.schemas[key] = s
	return s
}

// backoff is base * 2^(attempt-1), capped, plus jitter, plus the JSON
// defect delay for malformed output.
func (p *Planner) backoff(attempt int, malformed bool) time.Duration {
	d := p.opts.BaseDelay << (attempt - 1)
	if d <= 0 || (p.opts.MaxDelay > 0 && d > p.opts.MaxDelay) {
		d = p.opts.MaxDelay
	}
	if p.opts.Jitter > 0 {
		d += time.Duration(p.opts.Rand() * float64(p.opts.Jitter))
	}
	if malformed {
		d += p.opts.JSONDefectDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
