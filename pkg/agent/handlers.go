package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotsetgreg/wargabot/pkg/cases"
	"github.com/dotsetgreg/wargabot/pkg/classifier"
	"github.com/dotsetgreg/wargabot/pkg/intent"
	"github.com/dotsetgreg/wargabot/pkg/logger"
	"github.com/dotsetgreg/wargabot/pkg/planner"
	"github.com/dotsetgreg/wargabot/pkg/slots"
)

// Complaint categories where field officers usually call the reporter.
var contactCategories = map[string]bool{
	"pohon_tumbang": true,
	"drainase":      true,
	"air_bersih":    true,
}

var skipPhonePattern = []string{"lewati", "skip", "tidak ada", "gak ada", "ga ada", "tidak usah", "gak usah", "nanti saja", "tidak mau"}

// resolveSlots consumes pending slot state in resolution order. handled is
// false when no slot applies to the message.
func (o *Orchestrator) resolveSlots(ctx context.Context, t *turn) (TurnResult, bool, error) {
	st := o.deps.Slots

	if s, ok := st.CancelConfirmation.Get(t.key); ok {
		question := fmt.Sprintf(askCancelConfirmFmt, s.TargetID)
		switch o.decide(ctx, t, question) {
		case intent.ConfirmYes:
			st.CancelConfirmation.Clear(t.key)
			return o.cancelCase(ctx, t, s.TargetID, s.Reason), true, nil
		case intent.ConfirmNo:
			st.CancelConfirmation.Clear(t.key)
			return o.slotReply(slots.CategoryCancelConfirmation, intent.KindConfirmation, cancelAbortedReply), true, nil
		default:
			return o.slotReply(slots.CategoryCancelConfirmation, intent.KindConfirmation, reaskConfirmReply(question)), true, nil
		}
	}

	if s, ok := st.AddressConfirmation.Get(t.key); ok {
		draft := slots.ComplaintDraft{Category: s.Category, Description: s.Description, Address: s.Address}
		// "bukan, di jalan sudirman no 3" corrects the address outright.
		if addr, ok := classifier.ExtractAddress(t.text); ok && !strings.EqualFold(addr, s.Address) {
			st.AddressConfirmation.Clear(t.key)
			draft.Address = addr
			return o.completeComplaint(ctx, t, draft), true, nil
		}
		question := askAddressConfirmReply(s.Address)
		switch o.decide(ctx, t, question) {
		case intent.ConfirmYes:
			st.AddressConfirmation.Clear(t.key)
			return o.completeComplaint(ctx, t, draft), true, nil
		case intent.ConfirmNo:
			st.AddressConfirmation.Clear(t.key)
			st.Address.Set(t.key, slots.AwaitingAddress{Category: s.Category, Description: s.Description, Timestamp: st.Now()})
			return o.slotReply(slots.CategoryAddress, intent.KindCreateComplaint, "Baik. "+reaskLocationReply), true, nil
		default:
			return o.slotReply(slots.CategoryAddressConfirmation, intent.KindConfirmation, reaskConfirmReply(question)), true, nil
		}
	}

	if s, ok := st.Address.Get(t.key); ok {
		addr, found := classifier.ExtractAddress(t.text)
		if !found && classifier.LooksLikeAddress(t.text) {
			addr, found = strings.TrimSpace(t.text), true
		}
		if found {
			st.Address.Clear(t.key)
			return o.completeComplaint(ctx, t, slots.ComplaintDraft{
				Category:    s.Category,
				Description: s.Description,
				Address:     addr,
			}), true, nil
		}
		if v, ok := classifier.IsShortConfirmation(t.text); ok && v == intent.ConfirmNo {
			st.Address.Clear(t.key)
			st.TakePhotos(t.key)
			return o.slotReply(slots.CategoryAddress, intent.KindCreateComplaint, complaintDroppedText), true, nil
		}
		// A different request leaves the slot for later.
		if t.fast.Matched() && t.fast.Intent != intent.KindConfirmation {
			return TurnResult{}, false, nil
		}
		return o.slotReply(slots.CategoryAddress, intent.KindCreateComplaint, reaskLocationReply), true, nil
	}

	if s, ok := st.ComplaintContact.Get(t.key); ok {
		return o.resolveContact(ctx, t, s), true, nil
	}

	if s, ok := st.ServiceFormOffer.Get(t.key); ok {
		question := offerServiceReply(s.ServiceSlug)
		switch o.decide(ctx, t, question) {
		case intent.ConfirmYes:
			st.ServiceFormOffer.Clear(t.key)
			return o.createServiceRequest(ctx, t, s.ServiceSlug), true, nil
		case intent.ConfirmNo:
			st.ServiceFormOffer.Clear(t.key)
			return o.slotReply(slots.CategoryServiceFormOffer, intent.KindConfirmation, serviceDeclinedReply), true, nil
		default:
			return o.slotReply(slots.CategoryServiceFormOffer, intent.KindConfirmation, reaskConfirmReply(question)), true, nil
		}
	}

	return TurnResult{}, false, nil
}

func (o *Orchestrator) resolveContact(ctx context.Context, t *turn, s slots.AwaitingComplaintContact) TurnResult {
	st := o.deps.Slots
	draft := s.Data

	switch s.WaitingFor {
	case slots.WaitingForName:
		name, ok := classifier.NameFromReply(t.text)
		if !ok {
			return o.slotReply(slots.CategoryComplaintContact, intent.KindProvideName, askContactNameReply)
		}
		draft.Name = name
		if t.name == "" {
			t.name = name
			if err := o.deps.Profiles.SaveName(ctx, t.key, name); err != nil {
				logger.WarnCF("agent", "Failed to save reporter name", map[string]interface{}{"session_key": t.key, "error": err.Error()})
			}
		}
		st.ComplaintContact.Clear(t.key)
		return o.completeComplaint(ctx, t, draft)

	default:
		phone, ok := classifier.ExtractPhone(t.text)
		if !ok && !wantsToSkip(t.text) {
			return o.slotReply(slots.CategoryComplaintContact, intent.KindCreateComplaint, reaskPhoneReply)
		}
		st.ComplaintContact.Clear(t.key)
		if ok {
			draft.Phone = phone
			if err := o.deps.Profiles.SavePhone(ctx, t.key, phone); err != nil {
				logger.WarnCF("agent", "Failed to save reporter phone", map[string]interface{}{"session_key": t.key, "error": err.Error()})
			}
		}
		return o.fileComplaint(ctx, t, draft)
	}
}

func wantsToSkip(text string) bool {
	norm := classifier.Normalize(text)
	if v, ok := classifier.IsShortConfirmation(norm); ok && v == intent.ConfirmNo {
		return true
	}
	for _, p := range skipPhonePattern {
		if strings.Contains(norm, p) {
			return true
		}
	}
	return false
}

// decide reads a yes/no answer, asking the model only when the message is
// not an explicit short reply.
func (o *Orchestrator) decide(ctx context.Context, t *turn, question string) intent.ConfirmValue {
	if v, ok := classifier.IsShortConfirmation(t.text); ok {
		return v
	}
	system, prompt := o.prompts.BuildConfirmationPrompt(question, t.text)
	out := o.deps.Planner.Execute(ctx, planner.Call{
		Purpose:        "confirm",
		System:         system,
		Prompt:         prompt,
		Schema:         confirmSchema,
		RequiredFields: []string{"decision"},
		MaxTokens:      64,
	})
	if !out.OK {
		logger.WarnCF("agent", "Confirmation call failed; treating answer as uncertain", map[string]interface{}{
			"session_key": t.key,
			"reason":      out.Reason,
		})
		return intent.ConfirmUncertain
	}
	decision, _ := out.Payload["decision"].(string)
	switch v := intent.ConfirmValue(strings.ToLower(strings.TrimSpace(decision))); v {
	case intent.ConfirmYes, intent.ConfirmNo:
		return v
	}
	return intent.ConfirmUncertain
}

// completeComplaint collects missing reporter details before filing.
func (o *Orchestrator) completeComplaint(ctx context.Context, t *turn, draft slots.ComplaintDraft) TurnResult {
	if draft.Name == "" {
		draft.Name = t.name
	}
	if draft.Phone == "" {
		draft.Phone = t.profile.Phone
	}
	st := o.deps.Slots
	switch {
	case draft.Name == "":
		st.ComplaintContact.Set(t.key, slots.AwaitingComplaintContact{Data: draft, WaitingFor: slots.WaitingForName, Timestamp: st.Now()})
		return o.slotReply(slots.CategoryComplaintContact, intent.KindCreateComplaint, askContactNameReply)
	case contactCategories[draft.Category] && draft.Phone == "":
		st.ComplaintContact.Set(t.key, slots.AwaitingComplaintContact{Data: draft, WaitingFor: slots.WaitingForPhone, Timestamp: st.Now()})
		return o.slotReply(slots.CategoryComplaintContact, intent.KindCreateComplaint, askPhoneReply)
	}
	return o.fileComplaint(ctx, t, draft)
}

func (o *Orchestrator) fileComplaint(ctx context.Context, t *turn, draft slots.ComplaintDraft) TurnResult {
	photos := o.deps.Slots.TakePhotos(t.key)
	description := draft.Description
	if description == "" {
		description = t.text
	}
	c, err := o.deps.Cases.CreateComplaint(ctx, cases.ComplaintInput{
		UserKey:       t.key,
		Category:      draft.Category,
		Description:   description,
		Address:       draft.Address,
		ReporterName:  draft.Name,
		ReporterPhone: draft.Phone,
		Photos:        photos,
	})
	if err != nil {
		for _, url := range photos {
			o.deps.Slots.AddPhoto(t.key, url)
		}
		return o.caseFailure(t, err, "", intent.KindCreateComplaint)
	}
	res := o.reply(PathSlot, intent.KindCreateComplaint, complaintCreatedReply(c, len(photos)))
	res.Fields = map[string]string{"tracking_code": c.TrackingCode, "category": c.Category, "address": c.Address}
	return res
}

func (o *Orchestrator) createServiceRequest(ctx context.Context, t *turn, slug string) TurnResult {
	c, err := o.deps.Cases.CreateServiceRequest(ctx, cases.ServiceRequestInput{
		UserKey:      t.key,
		ServiceSlug:  slug,
		Description:  t.text,
		ReporterName: t.name,
	})
	if err != nil {
		return o.caseFailure(t, err, "", intent.KindCreateServiceRequest)
	}
	res := o.reply(PathSlot, intent.KindCreateServiceRequest, serviceCreatedReply(c))
	res.Fields = map[string]string{"tracking_code": c.TrackingCode, "service_slug": slug}
	return res
}

func (o *Orchestrator) checkStatus(ctx context.Context, t *turn, code string, path Path) TurnResult {
	c, err := o.deps.Cases.Status(ctx, t.key, code)
	if err != nil {
		res := o.caseFailure(t, err, code, intent.KindCheckStatus)
		res.Metadata.Path = path
		return res
	}
	res := o.reply(path, intent.KindCheckStatus, statusReply(c))
	res.Fields = map[string]string{"tracking_code": c.TrackingCode, "status": string(c.Status)}
	return res
}

// askCancel checks the case can be cancelled, then asks for confirmation.
func (o *Orchestrator) askCancel(ctx context.Context, t *turn, code, reason string, path Path) TurnResult {
	c, err := o.deps.Cases.Status(ctx, t.key, code)
	if err == nil && c.Status.Locked() {
		err = fmt.Errorf("%s: %w", code, cases.ErrLocked)
	}
	if err != nil {
		res := o.caseFailure(t, err, code, intent.KindCancelCase)
		res.Metadata.Path = path
		return res
	}
	caseType, _ := intent.CaseTypeOf(code)
	st := o.deps.Slots
	st.CancelConfirmation.Set(t.key, slots.AwaitingCancelConfirmation{
		TargetType: caseType,
		TargetID:   c.TrackingCode,
		Reason:     reason,
		Timestamp:  st.Now(),
	})
	res := o.reply(path, intent.KindCancelCase, fmt.Sprintf(askCancelConfirmFmt, c.TrackingCode))
	res.Fields = map[string]string{"tracking_code": c.TrackingCode}
	res.Metadata.Slot = string(slots.CategoryCancelConfirmation)
	return res
}

func (o *Orchestrator) cancelCase(ctx context.Context, t *turn, code, reason string) TurnResult {
	c, err := o.deps.Cases.Cancel(ctx, t.key, code, reason)
	if err != nil {
		return o.caseFailure(t, err, code, intent.KindCancelCase)
	}
	res := o.reply(PathSlot, intent.KindCancelCase, cancelledReply(c))
	res.Fields = map[string]string{"tracking_code": c.TrackingCode, "status": string(c.Status)}
	return res
}

func (o *Orchestrator) updateCase(ctx context.Context, t *turn, code, description string) TurnResult {
	c, err := o.deps.Cases.Update(ctx, t.key, code, description)
	if err != nil {
		return o.caseFailure(t, err, code, intent.KindUpdateCase)
	}
	res := o.reply(PathModel, intent.KindUpdateCase, updatedReply(c))
	res.Fields = map[string]string{"tracking_code": c.TrackingCode}
	return res
}

func (o *Orchestrator) listHistory(ctx context.Context, t *turn, path Path) TurnResult {
	list, err := o.deps.Cases.ListByUser(ctx, t.key, 10)
	if err != nil {
		res := o.caseFailure(t, err, "", intent.KindHistory)
		res.Metadata.Path = path
		return res
	}
	return o.reply(path, intent.KindHistory, historyReply(list))
}

// caseFailure turns a case-service error into a denial. Expected denials
// are successful turns; an unreachable service is not.
func (o *Orchestrator) caseFailure(t *turn, err error, code string, kind intent.Kind) TurnResult {
	text, expected := caseDenial(err, code)
	logger.InfoCF("agent", "Case service denied request", map[string]interface{}{
		"session_key":   t.key,
		"tracking_code": code,
		"error_kind":    string(cases.Kind(err)),
		"error":         err.Error(),
	})
	res := o.reply(PathSlot, kind, text)
	res.Success = expected
	res.Fields = map[string]string{"error_kind": string(cases.Kind(err))}
	if code != "" {
		res.Fields["tracking_code"] = code
	}
	if !expected {
		res.Error = err.Error()
	}
	return res
}

func (o *Orchestrator) slotReply(cat slots.Category, kind intent.Kind, text string) TurnResult {
	res := o.reply(PathSlot, kind, text)
	res.Metadata.Slot = string(cat)
	return res
}
