package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotsetgreg/wargabot/pkg/classifier"
	"github.com/dotsetgreg/wargabot/pkg/guard"
	"github.com/dotsetgreg/wargabot/pkg/intent"
	"github.com/dotsetgreg/wargabot/pkg/logger"
	"github.com/dotsetgreg/wargabot/pkg/planner"
	"github.com/dotsetgreg/wargabot/pkg/slots"
)

// modelTurn asks the model for an intent and reply, gates unsupported
// facts and acts on the intent.
func (o *Orchestrator) modelTurn(ctx context.Context, t *turn) (TurnResult, error) {
	hist := o.loadHistory(ctx, t)

	kres, err := o.deps.Knowledge.Retrieve(ctx, t.text)
	if err != nil {
		logger.WarnCF("agent", "Knowledge retrieval failed; answering without context", map[string]interface{}{
			"session_key": t.key,
			"error":       err.Error(),
		})
	}
	hasKnowledge := err == nil && !kres.Empty()

	call := planner.Call{
		Purpose: "turn",
		System:  o.prompts.BuildSystemPrompt(),
		Prompt: o.prompts.BuildPrompt(TurnContext{
			Name:      t.name,
			Message:   t.text,
			History:   hist,
			Knowledge: kres.Context,
			Signals:   detectSignals(t.text),
			Fast:      t.fast,
		}),
		Schema:         turnSchema,
		RequiredFields: planner.DefaultRequired,
		Temperature:    o.opts.Temperature,
		MaxTokens:      o.opts.MaxTokens,
	}

	out := o.deps.Planner.Execute(ctx, call)
	if !out.OK {
		return TurnResult{}, fmt.Errorf("%w: %s", ErrModelExhausted, out.Reason)
	}

	seedFields(out.Payload, t.fast)
	reply, perr := intent.FromModelReply(out.Payload)
	if reply.Technical {
		return TurnResult{}, fmt.Errorf("%w: model returned a technical error payload", ErrModelExhausted)
	}
	if perr != nil {
		logger.InfoCF("agent", "Model intent rejected; treating as unknown", map[string]interface{}{
			"session_key": t.key,
			"error":       perr.Error(),
		})
	}

	kind := reply.Intent.Kind()
	logger.DebugCF("agent", "Model intent decoded", map[string]interface{}{
		"session_key": t.key,
		"intent":      string(kind),
		"fields":      intent.SortedFieldNames(reply.Intent),
		"parse_stage": string(out.Metrics.ParseStage),
	})
	text, guidance := reply.Text, reply.Guidance
	guarded := false
	if kind.KnowledgeDependent() {
		gr := o.gate.Review(ctx, call, guard.Candidate{Reply: text, Guidance: guidance}, hasKnowledge)
		text, guidance = gr.Reply, gr.Guidance
		guarded = gr.Retried
	}

	res := o.dispatch(ctx, t, reply.Intent, text)
	if res.Metadata.Path == "" {
		res.Metadata.Path = PathModel
	}
	res.ResponseText = Sanitize(res.ResponseText, o.opts.MaxReplyChars)
	if strings.TrimSpace(res.ResponseText) == "" {
		return TurnResult{}, fmt.Errorf("%w: empty reply", ErrModelExhausted)
	}
	if res.GuidanceText == "" && guidance != "" {
		res.GuidanceText = Sanitize(guidance, o.opts.MaxReplyChars)
	}

	m := out.Metrics
	res.Metadata.Model = m.Model
	res.Metadata.Credential = m.Credential
	res.Metadata.Attempts = m.Attempts
	res.Metadata.Tokens = m.Tokens.TotalTokens
	res.Metadata.HasKnowledge = hasKnowledge
	res.Metadata.Guarded = guarded
	return res, nil
}

// dispatch acts on the decoded intent. text is the model's reply and is
// used unless the action has its own wording.
func (o *Orchestrator) dispatch(ctx context.Context, t *turn, in intent.Intent, text string) TurnResult {
	st := o.deps.Slots
	withFields := func(res TurnResult) TurnResult {
		if res.Fields == nil {
			res.Fields = in.Fields()
		}
		return res
	}

	switch v := in.(type) {
	case intent.CreateComplaint:
		if v.Address != "" {
			st.AddressConfirmation.Set(t.key, slots.AwaitingAddressConfirmation{
				Address:     v.Address,
				Category:    v.Category,
				Description: firstText(v.Description, t.text),
				Timestamp:   st.Now(),
			})
			res := o.reply(PathModel, intent.KindCreateComplaint, askAddressConfirmReply(v.Address))
			res.Metadata.Slot = string(slots.CategoryAddressConfirmation)
			return withFields(res)
		}
		st.Address.Set(t.key, slots.AwaitingAddress{
			Category:    v.Category,
			Description: firstText(v.Description, t.text),
			Timestamp:   st.Now(),
		})
		res := o.reply(PathModel, intent.KindCreateComplaint, askLocationReply)
		res.Metadata.Slot = string(slots.CategoryAddress)
		return withFields(res)

	case intent.CreateServiceRequest:
		st.ServiceFormOffer.Set(t.key, slots.AwaitingServiceFormOffer{ServiceSlug: v.ServiceSlug, Timestamp: st.Now()})
		res := o.reply(PathModel, intent.KindCreateServiceRequest, joinText(text, offerServiceReply(v.ServiceSlug)))
		res.Metadata.Slot = string(slots.CategoryServiceFormOffer)
		return withFields(res)

	case intent.CheckStatus:
		return o.checkStatus(ctx, t, v.TrackingCode, PathModel)

	case intent.CancelCase:
		return o.askCancel(ctx, t, v.TrackingCode, v.Reason, PathModel)

	case intent.UpdateCase:
		if strings.TrimSpace(v.Description) == "" || intent.IsTrackingCode(v.Description) {
			return withFields(o.reply(PathModel, intent.KindUpdateCase, fmt.Sprintf(updateNeedsTextReply, v.TrackingCode)))
		}
		return o.updateCase(ctx, t, v.TrackingCode, v.Description)

	case intent.History:
		return o.listHistory(ctx, t, PathModel)

	case intent.ProvideName:
		if err := o.deps.Profiles.SaveName(ctx, t.key, v.Name); err != nil {
			logger.WarnCF("agent", "Failed to save name", map[string]interface{}{"session_key": t.key, "error": err.Error()})
		}
		t.name = v.Name
		return withFields(o.reply(PathModel, intent.KindProvideName, nameAckReply(v.Name)))

	case intent.Farewell:
		st.ClearAll(t.key)
		return o.reply(PathModel, intent.KindFarewell, firstText(text, farewellReply(t.name)))

	case intent.Greeting:
		return o.reply(PathModel, intent.KindGreeting, firstText(text, greetingReply(o.opts.AssistantName, t.name)))
	}

	return withFields(o.reply(PathModel, in.Kind(), firstText(text, fallbackGeneric)))
}

// seedFields fills fields the model left out with values the fast
// classifier already extracted, when both agree on the intent.
func seedFields(payload map[string]interface{}, fast classifier.Result) {
	if payload == nil || !fast.Matched() || len(fast.Fields) == 0 {
		return
	}
	if got, _ := payload["intent"].(string); intent.Kind(strings.ToLower(strings.TrimSpace(got))) != fast.Intent {
		return
	}
	nested, _ := payload["fields"].(map[string]interface{})
	for k, v := range fast.Fields {
		if s, _ := payload[k].(string); strings.TrimSpace(s) != "" {
			continue
		}
		if nested != nil {
			if s, _ := nested[k].(string); strings.TrimSpace(s) != "" {
				continue
			}
			nested[k] = v
			continue
		}
		payload[k] = v
	}
}

func firstText(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func joinText(a, b string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return b
	}
	return a + "\n\n" + b
}
