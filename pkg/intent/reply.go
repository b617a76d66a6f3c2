package intent

import (
	"fmt"
	"strings"
)

// Reply is a decoded structured model response.
type Reply struct {
	Intent   Intent
	Text     string
	Guidance string
	// Technical is set when the payload is the planner's technical-error
	// substitute rather than a model answer.
	Technical bool
}

// FromModelReply converts a parsed payload into a typed reply. The payload
// carries "intent", "reply", an optional "guidance" and either a "fields"
// object or the fields at top level. An unrecognized or invalid intent is
// returned as Unknown together with the validation error, keeping the reply
// text usable.
func FromModelReply(payload map[string]interface{}) (Reply, error) {
	r := Reply{
		Intent:    Unknown{},
		Text:      str(payload, "reply"),
		Guidance:  str(payload, "guidance"),
		Technical: truthy(payload["technical_error"]),
	}
	if payload == nil {
		return r, fmt.Errorf("empty payload")
	}

	fields := map[string]interface{}{}
	for k, v := range payload {
		fields[k] = v
	}
	if nested, ok := payload["fields"].(map[string]interface{}); ok {
		for k, v := range nested {
			fields[k] = v
		}
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(str(payload, "intent"))))
	var in Intent
	switch kind {
	case KindCreateComplaint:
		in = CreateComplaint{
			Category:    str(fields, "category"),
			Description: str(fields, "description"),
			Address:     firstNonEmpty(str(fields, "address"), str(fields, "location")),
		}
	case KindCreateServiceRequest:
		in = CreateServiceRequest{
			ServiceSlug: firstNonEmpty(str(fields, "service_slug"), str(fields, "service")),
			Description: str(fields, "description"),
		}
	case KindCheckStatus:
		in = CheckStatus{TrackingCode: NormalizeTrackingCode(str(fields, "tracking_code"))}
	case KindCancelCase:
		in = CancelCase{
			TrackingCode: NormalizeTrackingCode(str(fields, "tracking_code")),
			Reason:       str(fields, "reason"),
		}
	case KindUpdateCase:
		in = UpdateCase{
			TrackingCode: NormalizeTrackingCode(str(fields, "tracking_code")),
			Description:  str(fields, "description"),
		}
	case KindHistory:
		in = History{}
	case KindKnowledgeQuery:
		in = KnowledgeQuery{Query: str(fields, "query")}
	case KindGreeting:
		in = Greeting{}
	case KindFarewell:
		in = Farewell{}
	case KindConfirmation:
		in = Confirmation{Value: ConfirmValue(strings.ToLower(firstNonEmpty(str(fields, "value"), str(fields, "decision"))))}
	case KindProvideName:
		in = ProvideName{Name: str(fields, "name")}
	case KindSmallTalk:
		in = SmallTalk{}
	case KindUnknown, "":
		return r, nil
	default:
		return r, fmt.Errorf("unrecognized intent %q", kind)
	}

	if err := in.validate(); err != nil {
		return r, err
	}
	r.Intent = in
	return r, nil
}

func str(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	default:
		return ""
	}
}

func truthy(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
