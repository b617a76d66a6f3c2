package planner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/wargabot/pkg/config"
	"github.com/dotsetgreg/wargabot/pkg/providers"
	"github.com/dotsetgreg/wargabot/pkg/usage"
)

type call struct {
	credential string
	model      string
}

// scriptedProvider answers per model from a script; unscripted models get
// a transient error.
type scriptedProvider struct {
	credential string
	mu         *sync.Mutex
	log        *[]call
	script     func(credential, model string, n int) (*providers.Response, error)
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Generate(ctx context.Context, req providers.Request) (*providers.Response, error) {
	s.mu.Lock()
	*s.log = append(*s.log, call{credential: s.credential, model: req.Model})
	n := 0
	for _, c := range *s.log {
		if c.credential == s.credential && c.model == req.Model {
			n++
		}
	}
	s.mu.Unlock()
	return s.script(s.credential, req.Model, n)
}

type harness struct {
	mu    sync.Mutex
	calls []call
	slept []time.Duration
}

func (h *harness) credentials(script func(credential, model string, n int) (*providers.Response, error), ids ...string) []providers.Credential {
	out := make([]providers.Credential, 0, len(ids))
	for _, id := range ids {
		tier := providers.TierBuiltin
		if id == "paid" {
			tier = providers.TierUser
		}
		out = append(out, providers.Credential{
			ID:   id,
			Tier: tier,
			Provider: &scriptedProvider{
				credential: id,
				mu:         &h.mu,
				log:        &h.calls,
				script:     script,
			},
		})
	}
	return out
}

func (h *harness) options() Options {
	opts := DefaultOptions()
	opts.Sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.slept = append(h.slept, d)
		h.mu.Unlock()
		return nil
	}
	opts.Rand = func() float64 { return 0 }
	return opts
}

func (h *harness) countFor(credential, model string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.credential == credential && c.model == model {
			n++
		}
	}
	return n
}

func ok(text string) (*providers.Response, error) {
	return &providers.Response{Text: text, Latency: 5 * time.Millisecond, Usage: providers.UsageInfo{TotalTokens: 42}}, nil
}

func fail(kind providers.ErrorKind) (*providers.Response, error) {
	return nil, providers.NewModelError(kind, "scripted "+string(kind))
}

const goodReply = `{"intent":"greeting","reply":"Halo"}`

func TestPlan_CredentialMajorOrder(t *testing.T) {
	h := &harness{}
	creds := h.credentials(nil, "c1", "c2")
	plan := Plan(creds, []string{"m1", "m2"})
	require.Len(t, plan, 4)
	got := make([]string, 0, len(plan))
	for _, e := range plan {
		got = append(got, e.Credential.ID+"/"+e.Model)
	}
	assert.Equal(t, []string{"c1/m1", "c1/m2", "c2/m1", "c2/m2"}, got)
}

func TestExecute_SuccessFirstPair(t *testing.T) {
	h := &harness{}
	creds := h.credentials(func(_, _ string, _ int) (*providers.Response, error) { return ok(goodReply) }, "c1", "c2")
	tr := usage.NewTracker()
	p := New(creds, []string{"m1", "m2"}, tr, h.options())

	out := p.Execute(context.Background(), Call{Purpose: "turn"})
	require.True(t, out.OK)
	assert.False(t, out.Exhausted)
	assert.Equal(t, "greeting", out.Payload["intent"])
	assert.Equal(t, "c1", out.Metrics.Credential)
	assert.Equal(t, providers.TierBuiltin, out.Metrics.Tier)
	assert.Equal(t, "m1", out.Metrics.Model)
	assert.Equal(t, 1, out.Metrics.Attempts)
	assert.Equal(t, 42, out.Metrics.Tokens.TotalTokens)
	assert.Equal(t, StageStrict, out.Metrics.ParseStage)
	assert.Len(t, h.calls, 1)

	c, found := tr.Get("c1", "m1")
	require.True(t, found)
	assert.Equal(t, int64(1), c.Successes)
}

func TestExecute_ExhaustsEveryPair(t *testing.T) {
	h := &harness{}
	creds := h.credentials(func(_, _ string, _ int) (*providers.Response, error) { return fail(providers.KindTransient) }, "c1", "c2", "c3")
	models := []string{"m1", "m2"}
	p := New(creds, models, nil, h.options())

	out := p.Execute(context.Background(), Call{})
	assert.False(t, out.OK)
	assert.True(t, out.Exhausted)
	assert.Nil(t, out.Payload)
	for _, c := range []string{"c1", "c2", "c3"} {
		for _, m := range models {
			assert.Equal(t, 2, h.countFor(c, m), "pair %s/%s", c, m)
		}
	}
	assert.Equal(t, 12, out.Metrics.Attempts)
	assert.Contains(t, out.Reason, "exhausted")
}

func TestExecute_InvalidCredentialAbandonsCredential(t *testing.T) {
	h := &harness{}
	creds := h.credentials(func(cred, _ string, _ int) (*providers.Response, error) {
		if cred == "c1" {
			return fail(providers.KindInvalidCredential)
		}
		return ok(goodReply)
	}, "c1", "c2")
	p := New(creds, []string{"m1", "m2", "m3"}, nil, h.options())

	out := p.Execute(context.Background(), Call{})
	require.True(t, out.OK)
	assert.Equal(t, 1, h.countFor("c1", "m1"))
	assert.Equal(t, 0, h.countFor("c1", "m2"))
	assert.Equal(t, 0, h.countFor("c1", "m3"))
	assert.Equal(t, 1, h.countFor("c2", "m1"))
	assert.Equal(t, "c2", out.Metrics.Credential)
	assert.Equal(t, 2, out.Metrics.SkippedPairs)
	assert.Empty(t, h.slept)
}

func TestExecute_RateLimitSkipsPairWithoutRetry(t *testing.T) {
	h := &harness{}
	creds := h.credentials(func(_, model string, _ int) (*providers.Response, error) {
		if model == "m1" {
			return fail(providers.KindRateLimited)
		}
		return ok(goodReply)
	}, "c1")
	tr := usage.NewTracker()
	p := New(creds, []string{"m1", "m2"}, tr, h.options())

	out := p.Execute(context.Background(), Call{})
	require.True(t, out.OK)
	assert.Equal(t, 1, h.countFor("c1", "m1"))
	assert.Equal(t, "m2", out.Metrics.Model)
	assert.Empty(t, h.slept, "rate limits must not wait")
	assert.True(t, tr.AtCapacity("c1", "m1"))

	// next request tries the healthy model first
	plan := p.Plan()
	assert.Equal(t, "m2", plan[0].Model)
}

func TestExecute_UnsupportedModelSkipsOnlyThatPair(t *testing.T) {
	h := &harness{}
	creds := h.credentials(func(cred, model string, _ int) (*providers.Response, error) {
		if model == "m1" {
			return fail(providers.KindUnsupported)
		}
		if cred == "c1" {
			return fail(providers.KindTransient)
		}
		return ok(goodReply)
	}, "c1", "c2")
	p := New(creds, []string{"m1", "m2"}, nil, h.options())

	out := p.Execute(context.Background(), Call{})
	require.True(t, out.OK)
	assert.Equal(t, 1, h.countFor("c1", "m1"))
	assert.Equal(t, 2, h.countFor("c1", "m2"))
	assert.Equal(t, 1, h.countFor("c2", "m1"))
	assert.Equal(t, "c2/m2", out.Metrics.Credential+"/"+out.Metrics.Model)
}

func TestExecute_AllInvalidCredentialsExhausts(t *testing.T) {
	h := &harness{}
	creds := h.credentials(func(_, _ string, _ int) (*providers.Response, error) { return fail(providers.KindInvalidCredential) }, "c1", "c2", "paid")
	p := New(creds, []string{"m1", "m2"}, nil, h.options())

	out := p.Execute(context.Background(), Call{})
	assert.True(t, out.Exhausted)
	assert.Equal(t, 3, out.Metrics.Attempts)
	assert.Equal(t, providers.KindInvalidCredential, out.LastKind())
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	h := &harness{}
	creds := h.credentials(func(_, _ string, n int) (*providers.Response, error) {
		if n == 1 {
			return fail(providers.KindTimeout)
		}
		return ok(goodReply)
	}, "c1")
	p := New(creds, []string{"m1"}, nil, h.options())

	out := p.Execute(context.Background(), Call{})
	require.True(t, out.OK)
	assert.Equal(t, 2, out.Metrics.Attempts)
	require.Len(t, h.slept, 1)
	assert.Equal(t, 500*time.Millisecond, h.slept[0])
}

func TestExecute_MalformedOutputRetriedWithExtraDelay(t *testing.T) {
	h := &harness{}
	creds := h.credentials(func(_, _ string, n int) (*providers.Response, error) {
		if n == 1 {
			return ok("Maaf saya tidak paham")
		}
		return ok(`{"intent":"greeting","reply":"Halo`)
	}, "c1")
	p := New(creds, []string{"m1"}, nil, h.options())

	out := p.Execute(context.Background(), Call{})
	require.True(t, out.OK)
	assert.Equal(t, StageClosed, out.Metrics.ParseStage)
	require.Len(t, h.slept, 1)
	assert.Equal(t, 1500*time.Millisecond, h.slept[0])
	assert.Equal(t, providers.KindMalformedOutput, out.Failures[0].Kind)
}

func TestExecute_SchemaValidation(t *testing.T) {
	h := &harness{}
	creds := h.credentials(func(_, _ string, n int) (*providers.Response, error) {
		if n == 1 {
			return ok(`{"intent":42,"reply":"x"}`)
		}
		return ok(goodReply)
	}, "c1")
	p := New(creds, []string{"m1"}, nil, h.options())

	schema := []byte(`{"type":"object","required":["intent","reply"],"properties":{"intent":{"type":"string"},"reply":{"type":"string"}}}`)
	out := p.Execute(context.Background(), Call{Schema: schema})
	require.True(t, out.OK)
	assert.Equal(t, 2, out.Metrics.Attempts)
	assert.Equal(t, providers.KindMalformedOutput, out.Failures[0].Kind)
}

func TestExecute_CallTimeoutRacesProvider(t *testing.T) {
	h := &harness{}
	block := make(chan struct{})
	defer close(block)
	creds := h.credentials(func(_, _ string, _ int) (*providers.Response, error) {
		<-block
		return ok(goodReply)
	}, "c1")
	opts := h.options()
	opts.CallTimeout = 20 * time.Millisecond
	opts.RetriesPerPair = 1
	p := New(creds, []string{"m1"}, nil, opts)

	started := time.Now()
	out := p.Execute(context.Background(), Call{})
	assert.True(t, out.Exhausted)
	assert.Equal(t, providers.KindTimeout, out.LastKind())
	assert.Less(t, time.Since(started), time.Second)
}

func TestExecute_ProviderPanicIsAbsorbed(t *testing.T) {
	h := &harness{}
	creds := h.credentials(func(_, _ string, _ int) (*providers.Response, error) {
		panic("boom")
	}, "c1")
	opts := h.options()
	opts.RetriesPerPair = 1
	p := New(creds, []string{"m1"}, nil, opts)

	out := p.Execute(context.Background(), Call{})
	assert.True(t, out.Exhausted)
	assert.Equal(t, providers.KindTransient, out.LastKind())
}

func TestExecute_EmptyPlan(t *testing.T) {
	p := New(nil, []string{"m1"}, nil, DefaultOptions())
	out := p.Execute(context.Background(), Call{})
	assert.True(t, out.Exhausted)
	assert.Zero(t, out.Metrics.Attempts)
}

func TestExecute_CancelledContext(t *testing.T) {
	h := &harness{}
	creds := h.credentials(func(_, _ string, _ int) (*providers.Response, error) { return ok(goodReply) }, "c1")
	p := New(creds, []string{"m1"}, nil, h.options())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := p.Execute(ctx, Call{})
	assert.True(t, out.Exhausted)
	assert.Contains(t, out.Reason, "cancelled")
	assert.Empty(t, h.calls)
}

func TestBackoff_CappedWithJitter(t *testing.T) {
	opts := DefaultOptions()
	opts.Rand = func() float64 { return 0.5 }
	p := New(nil, nil, nil, opts)

	assert.Equal(t, 500*time.Millisecond+125*time.Millisecond, p.backoff(1, false))
	assert.Equal(t, time.Second+125*time.Millisecond, p.backoff(2, false))
	assert.Equal(t, 8*time.Second+125*time.Millisecond, p.backoff(10, false))
	assert.Equal(t, 500*time.Millisecond+125*time.Millisecond+time.Second, p.backoff(1, true))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Planner.RetriesPerPair = 3
	cfg.Planner.CallTimeoutMS = 1000
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 3, opts.RetriesPerPair)
	assert.Equal(t, time.Second, opts.CallTimeout)
	assert.Equal(t, 250*time.Millisecond, opts.Jitter)
}

func ExamplePlan() {
	creds := []providers.Credential{{ID: "free"}, {ID: "paid"}}
	for _, e := range Plan(creds, []string{"flash", "pro"}) {
		fmt.Println(e.Credential.ID, e.Model)
	}
	// Output:
	// free flash
	// free pro
	// paid flash
	// paid pro
}
