// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dotsetgreg/wargabot/pkg/cache"
	"github.com/dotsetgreg/wargabot/pkg/cases"
	"github.com/dotsetgreg/wargabot/pkg/classifier"
	"github.com/dotsetgreg/wargabot/pkg/config"
	"github.com/dotsetgreg/wargabot/pkg/guard"
	"github.com/dotsetgreg/wargabot/pkg/history"
	"github.com/dotsetgreg/wargabot/pkg/intent"
	"github.com/dotsetgreg/wargabot/pkg/knowledge"
	"github.com/dotsetgreg/wargabot/pkg/logger"
	"github.com/dotsetgreg/wargabot/pkg/planner"
	"github.com/dotsetgreg/wargabot/pkg/profiles"
	"github.com/dotsetgreg/wargabot/pkg/slots"
	"github.com/dotsetgreg/wargabot/pkg/usage"
)

// ErrModelExhausted is returned when the call plan ends without success.
var ErrModelExhausted = errors.New("model call plan exhausted")

// Executor runs one logical model call. *planner.Planner implements it.
type Executor interface {
	Execute(ctx context.Context, call planner.Call) planner.Outcome
}

// Deps are the collaborators of the orchestrator. Knowledge may be nil.
type Deps struct {
	Planner   Executor
	Slots     *slots.Store
	Cases     cases.Service
	Knowledge knowledge.Retriever
	History   history.Service
	Profiles  profiles.Store
	Tracker   *usage.Tracker
	// Caches are extra instances reported by Stats and swept with the
	// orchestrator's own.
	Caches []cache.Instance
}

type Options struct {
	AssistantName string
	Region        string
	MaxReplyChars int
	HistoryTurns  int
	Temperature   float64
	MaxTokens     int
	DedupeTTL     time.Duration
	Now           func() time.Time
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AssistantName: cfg.Assistant.Name,
		Region:        cfg.Assistant.Region,
		MaxReplyChars: cfg.Assistant.MaxReplyChars,
		HistoryTurns:  cfg.Assistant.HistoryTurns,
		Temperature:   cfg.Assistant.Temperature,
		MaxTokens:     cfg.Assistant.MaxTokens,
		DedupeTTL:     config.Seconds(cfg.Cache.DedupeTTLSeconds),
	}
}

// Orchestrator drives a single incoming message through the decision
// steps. It is safe for concurrent use across users; two messages from the
// same user processed at once race on slot state and the last write wins.
type Orchestrator struct {
	deps    Deps
	opts    Options
	prompts *ContextBuilder
	gate    *guard.Gate
	dedupe  *cache.Cache[string, TurnResult]
	caches  *cache.Group

	inFlight atomic.Int64
	turns    atomic.Uint64
	failures atomic.Uint64
	running  atomic.Bool
}

func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Planner == nil:
		return nil, errors.New("agent: planner is required")
	case deps.Slots == nil:
		return nil, errors.New("agent: slot store is required")
	case deps.Cases == nil:
		return nil, errors.New("agent: case service is required")
	case deps.History == nil:
		return nil, errors.New("agent: history service is required")
	case deps.Profiles == nil:
		return nil, errors.New("agent: profile store is required")
	}
	if deps.Knowledge == nil {
		deps.Knowledge = knowledge.NoopRetriever{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AssistantName == "" {
		opts.AssistantName = "Sahabat Warga"
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 10
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = 10 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}

	o := &Orchestrator{
		deps:    deps,
		opts:    opts,
		prompts: NewContextBuilder(opts.AssistantName, opts.Region),
		gate:    guard.New(deps.Planner),
		dedupe: cache.New[string, TurnResult](cache.Options{
			Name:     "turn.dedupe",
			Capacity: 10000,
			TTL:      opts.DedupeTTL,
			Now:      opts.Now,
		}),
		caches: cache.NewGroup(),
	}
	for _, inst := range deps.Slots.Instances() {
		o.caches.Add(inst)
	}
	o.caches.Add(o.dedupe)
	for _, inst := range deps.Caches {
		o.caches.Add(inst)
	}
	return o, nil
}

// Caches is the group of every cache the orchestrator depends on.
func (o *Orchestrator) Caches() *cache.Group {
	return o.caches
}

// turn carries per-message state through the steps.
type turn struct {
	id      string
	key     string
	in      TurnInput
	text    string
	name    string
	profile profiles.Profile
	fast    classifier.Result

	history       []history.Message
	historyLoaded bool
}

// ProcessTurn handles one message. It never panics and, apart from
// rejected spam, always returns a non-empty ResponseText.
func (o *Orchestrator) ProcessTurn(ctx context.Context, in TurnInput) (res TurnResult) {
	start := o.opts.Now()
	t := &turn{id: uuid.NewString(), in: in, text: strings.TrimSpace(in.Text)}

	o.inFlight.Add(1)
	o.turns.Add(1)
	defer o.inFlight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("agent", "Recovered from panic while processing turn", map[string]interface{}{
				"turn_id":     t.id,
				"session_key": t.key,
				"panic":       fmt.Sprint(r),
				"stack":       string(debug.Stack()),
			})
			res = o.fallbackResult(t, fmt.Errorf("panic: %v", r))
		}
		res.Metadata.TurnID = t.id
		res.Metadata.SessionKey = t.key
		res.Metadata.DurationMS = o.opts.Now().Sub(start).Milliseconds()
		if !res.Success {
			o.failures.Add(1)
		}
		logger.InfoCF("agent", "Turn processed", map[string]interface{}{
			"turn_id":     t.id,
			"session_key": t.key,
			"path":        string(res.Metadata.Path),
			"intent":      res.Intent,
			"success":     res.Success,
			"model":       res.Metadata.Model,
			"duration_ms": res.Metadata.DurationMS,
		})
	}()

	out, err := o.process(ctx, t)
	if err != nil {
		logger.WarnCF("agent", "Turn failed; sending fallback reply", map[string]interface{}{
			"turn_id":     t.id,
			"session_key": t.key,
			"error":       err.Error(),
		})
		return o.fallbackResult(t, err)
	}
	return out
}

// awaitingAnswer reports whether a slot other than the photo set is
// pending for the session.
func (o *Orchestrator) awaitingAnswer(key string) bool {
	for _, cat := range o.deps.Slots.Active(key) {
		if cat != slots.CategoryPhotos {
			return true
		}
	}
	return false
}

func (o *Orchestrator) process(ctx context.Context, t *turn) (TurnResult, error) {
	key, err := SessionKey(t.in.Channel, t.in.UserID)
	if err != nil {
		return TurnResult{
			Success:      false,
			ResponseText: "Maaf, pesan Anda tidak dapat diproses.",
			Intent:       string(intent.KindUnknown),
			Metadata:     Metadata{Path: PathInvalid},
			Error:        err.Error(),
		}, nil
	}
	t.key = key

	// A pending question makes short repeated answers ("ya") legitimate, so
	// those turns are never deduplicated.
	fp, fpErr := fingerprint(key, t.text, t.in.MediaURL)
	dedupe := fpErr == nil && !o.awaitingAnswer(key)
	if dedupe {
		if prev, ok := o.dedupe.Get(fp); ok {
			logger.DebugCF("agent", "Duplicate delivery suppressed", map[string]interface{}{
				"session_key": key,
				"turn_id":     t.id,
			})
			prev.Metadata.Duplicate = true
			return prev, nil
		}
	}

	if len(t.in.History) > 0 {
		msgs := make([]history.Message, 0, len(t.in.History))
		for _, m := range t.in.History {
			msgs = append(msgs, m.toHistory())
		}
		// Supplied history applies to this turn only; the stored history
		// stays authoritative for later turns.
		t.history = msgs
		t.historyLoaded = true
	}

	res, err := o.route(ctx, t)
	if err != nil {
		return TurnResult{}, err
	}
	if res.Intent == "" {
		res.Intent = string(intent.KindUnknown)
	}

	if res.Metadata.Path != PathSpam && res.ResponseText != "" {
		o.persist(ctx, t, res)
		if dedupe {
			o.dedupe.Set(fp, res)
		}
	}
	return res, nil
}

// route evaluates the decision steps in priority order; the first step
// that produces a reply wins.
func (o *Orchestrator) route(ctx context.Context, t *turn) (TurnResult, error) {
	// 1. Spam is dropped without a reply.
	if t.text != "" || t.in.MediaURL == "" {
		if spam, reason := classifier.DetectSpam(t.text); spam {
			logger.InfoCF("agent", "Message rejected as spam", map[string]interface{}{
				"session_key": t.key,
				"reason":      reason,
			})
			return TurnResult{
				Success:  false,
				Intent:   "spam",
				Fields:   map[string]string{"reason": reason},
				Metadata: Metadata{Path: PathSpam},
				Error:    ErrSpamRejected.Error(),
			}, nil
		}
	}

	if t.in.MediaURL != "" {
		if _, ok := o.deps.Slots.AddPhoto(t.key, t.in.MediaURL); !ok {
			logger.InfoCF("agent", "Photo limit reached; attachment ignored", map[string]interface{}{
				"session_key": t.key,
			})
		}
	}

	// 2. Name gate.
	if res, handled := o.nameGate(ctx, t); handled {
		return res, nil
	}

	t.fast = classifier.Classify(t.text)

	// 3. Farewell.
	if t.fast.Intent == intent.KindFarewell && t.fast.Confidence >= 0.9 {
		o.deps.Slots.ClearAll(t.key)
		return o.reply(PathFarewell, intent.KindFarewell, farewellReply(t.name)), nil
	}

	if t.text == "" {
		return o.photoAck(t), nil
	}

	// 4. Pending slots.
	if res, handled, err := o.resolveSlots(ctx, t); handled || err != nil {
		return res, err
	}

	// 5. Embedded tracking code.
	if code, ok := intent.FindTrackingCode(t.text); ok {
		switch t.fast.Intent {
		case intent.KindCancelCase:
			return o.askCancel(ctx, t, code, "", PathTrackingCode), nil
		case intent.KindCheckStatus:
			return o.checkStatus(ctx, t, code, PathTrackingCode), nil
		}
	}

	// 6. Fast classifier.
	if t.fast.SkipModel {
		if res, handled := o.resolveFast(ctx, t); handled {
			return res, nil
		}
	}

	// 7. Full model turn.
	return o.modelTurn(ctx, t)
}

func (o *Orchestrator) nameGate(ctx context.Context, t *turn) (TurnResult, bool) {
	p, err := o.deps.Profiles.Get(ctx, t.key)
	if err != nil {
		// Without the profile store we cannot tell whether the name is
		// known; let the user through rather than trap them.
		logger.WarnCF("agent", "Profile lookup failed; skipping name gate", map[string]interface{}{
			"session_key": t.key,
			"error":       err.Error(),
		})
		return TurnResult{}, false
	}
	t.profile = p
	if p.Name != "" {
		t.name = p.Name
		return TurnResult{}, false
	}

	pending, awaiting := o.deps.Slots.Name.Get(t.key)
	name, ok := classifier.ExtractName(t.text)
	if !ok && awaiting {
		name, ok = classifier.NameFromReply(t.text)
	}
	if !ok {
		name, ok = o.nameFromHistory(ctx, t)
	}

	if ok {
		t.name = name
		t.profile.Name = name
		if err := o.deps.Profiles.SaveName(ctx, t.key, name); err != nil {
			logger.WarnCF("agent", "Failed to save name", map[string]interface{}{
				"session_key": t.key,
				"error":       err.Error(),
			})
		}
		o.deps.Slots.Name.Clear(t.key)
		logger.InfoCF("agent", "Name captured", map[string]interface{}{"session_key": t.key})

		if awaiting && pending.PendingMessage != "" {
			t.text = pending.PendingMessage
			return TurnResult{}, false
		}
		if rest := classifier.Classify(t.text); !rest.Matched() || rest.Intent == intent.KindGreeting || awaiting {
			res := o.reply(PathNameGate, intent.KindProvideName, nameAckReply(name))
			res.Fields = map[string]string{"name": name}
			return res, true
		}
		return TurnResult{}, false
	}

	held := pending.PendingMessage
	if held == "" && t.text != "" && classifier.Classify(t.text).Intent != intent.KindGreeting {
		held = t.text
	}
	o.deps.Slots.Name.Set(t.key, slots.AwaitingName{
		Asked:          pending.Asked + 1,
		PendingMessage: held,
		Timestamp:      o.deps.Slots.Now(),
	})
	res := o.reply(PathNameGate, intent.KindProvideName, askNameReply(o.opts.AssistantName, pending.Asked))
	res.Metadata.Slot = string(slots.CategoryName)
	return res, true
}

func (o *Orchestrator) nameFromHistory(ctx context.Context, t *turn) (string, bool) {
	for _, m := range o.loadHistory(ctx, t) {
		if m.Role != history.RoleUser {
			continue
		}
		if name, ok := classifier.ExtractName(m.Content); ok {
			return name, true
		}
	}
	return "", false
}

func (o *Orchestrator) loadHistory(ctx context.Context, t *turn) []history.Message {
	if t.historyLoaded {
		return t.history
	}
	t.historyLoaded = true
	msgs, err := o.deps.History.Fetch(ctx, t.key, o.opts.HistoryTurns)
	if err != nil {
		logger.WarnCF("agent", "History fetch failed; continuing without history", map[string]interface{}{
			"session_key": t.key,
			"error":       err.Error(),
		})
		return nil
	}
	t.history = msgs
	return msgs
}

func (o *Orchestrator) photoAck(t *turn) TurnResult {
	n := 0
	if p, ok := o.deps.Slots.Photos.Get(t.key); ok {
		n = len(p.URLs)
	}
	text := fmt.Sprintf("Foto diterima (%d/%d). Silakan jelaskan masalah yang ingin dilaporkan beserta lokasinya.", n, slots.MaxPhotos)
	if _, ok := o.deps.Slots.Address.Get(t.key); ok {
		text = fmt.Sprintf("Foto diterima (%d/%d). %s", n, slots.MaxPhotos, askLocationReply)
	}
	res := o.reply(PathMedia, intent.KindCreateComplaint, text)
	res.Metadata.Slot = string(slots.CategoryPhotos)
	return res
}

func (o *Orchestrator) resolveFast(ctx context.Context, t *turn) (TurnResult, bool) {
	switch t.fast.Intent {
	case intent.KindGreeting:
		return o.reply(PathFastPath, intent.KindGreeting, greetingReply(o.opts.AssistantName, t.name)), true
	case intent.KindFarewell:
		o.deps.Slots.ClearAll(t.key)
		return o.reply(PathFastPath, intent.KindFarewell, farewellReply(t.name)), true
	case intent.KindConfirmation:
		return o.reply(PathFastPath, intent.KindConfirmation, idleConfirmReply), true
	case intent.KindSmallTalk:
		if t.fast.Fields["signal"] == "thanks" {
			return o.reply(PathFastPath, intent.KindSmallTalk, thanksReply), true
		}
	case intent.KindHistory:
		return o.listHistory(ctx, t, PathFastPath), true
	case intent.KindCheckStatus:
		if code := t.fast.Fields["tracking_code"]; code != "" {
			return o.checkStatus(ctx, t, code, PathFastPath), true
		}
	case intent.KindCancelCase:
		if code := t.fast.Fields["tracking_code"]; code != "" {
			return o.askCancel(ctx, t, code, "", PathFastPath), true
		}
	}
	return TurnResult{}, false
}

func (o *Orchestrator) reply(path Path, kind intent.Kind, text string) TurnResult {
	return TurnResult{
		Success:      true,
		ResponseText: text,
		Intent:       string(kind),
		Metadata:     Metadata{Path: path},
	}
}

func (o *Orchestrator) fallbackResult(t *turn, err error) TurnResult {
	return TurnResult{
		Success:      false,
		ResponseText: fallbackText(err),
		Intent:       string(intent.KindUnknown),
		Metadata:     Metadata{Path: PathFallback},
		Error:        err.Error(),
	}
}

func (o *Orchestrator) persist(ctx context.Context, t *turn, res TurnResult) {
	user := t.in.Text
	if t.in.MediaURL != "" {
		user = strings.TrimSpace(user + " [foto]")
	}
	err := o.deps.History.Append(ctx, t.key,
		history.Message{Role: history.RoleUser, Content: user},
		history.Message{Role: history.RoleAssistant, Content: res.ResponseText},
	)
	if err != nil {
		logger.WarnCF("agent", "Failed to persist turn history", map[string]interface{}{
			"session_key": t.key,
			"turn_id":     t.id,
			"error":       err.Error(),
		})
	}
}

// InFlight is the number of turns currently being processed.
func (o *Orchestrator) InFlight() int64 {
	return o.inFlight.Load()
}

// Drain waits until no turn is in flight, polling every poll interval. It
// reports false if timeout elapses or ctx ends first.
func (o *Orchestrator) Drain(ctx context.Context, timeout, poll time.Duration) bool {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		n := o.inFlight.Load()
		if n == 0 {
			logger.InfoC("agent", "Drain complete")
			return true
		}
		select {
		case <-ctx.Done():
			logger.WarnCF("agent", "Drain interrupted", map[string]interface{}{"in_flight": n})
			return false
		case <-deadline.C:
			logger.WarnCF("agent", "Drain timed out", map[string]interface{}{"in_flight": n})
			return false
		case <-ticker.C:
		}
	}
}

type Stats struct {
	InFlight int64            `json:"in_flight"`
	Turns    uint64           `json:"turns"`
	Failures uint64           `json:"failures"`
	Caches   []cache.Stats    `json:"caches"`
	Usage    []usage.Counters `json:"usage,omitempty"`
}

func (o *Orchestrator) Stats() Stats {
	s := Stats{
		InFlight: o.inFlight.Load(),
		Turns:    o.turns.Load(),
		Failures: o.failures.Load(),
		Caches:   o.caches.Stats(),
	}
	if o.deps.Tracker != nil {
		s.Usage = o.deps.Tracker.Snapshot()
	}
	return s
}
