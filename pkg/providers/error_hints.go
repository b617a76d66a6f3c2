package providers

import "strings"

var messageHints = []struct {
	kind    ErrorKind
	needles []string
}{
	{KindRateLimited, []string{
		"rate limit", "rate-limit", "ratelimit", "too many requests", "quota", "resource_exhausted", "resource has been exhausted",
	}},
	{KindInvalidCredential, []string{
		"api key not valid", "invalid api key", "incorrect api key", "api_key_invalid", "unauthorized",
		"permission denied", "permission_denied", "insufficient permissions", "no auth credentials", "user not found",
	}},
	{KindUnsupported, []string{
		"model not found", "is not a valid model", "not supported", "unsupported model", "no endpoints found",
		"does not exist", "is not found for api version",
	}},
	{KindTimeout, []string{
		"deadline exceeded", "timed out", "timeout",
	}},
	{KindMalformedOutput, []string{
		"unexpected end of json", "invalid character", "cannot unmarshal", "malformed",
	}},
}

// classifyMessage inspects provider error text. Order matters: a quota
// message that also says "permission" is still a rate limit.
func classifyMessage(message string) (ErrorKind, bool) {
	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "" {
		return "", false
	}
	for _, hint := range messageHints {
		for _, needle := range hint.needles {
			if strings.Contains(lower, needle) {
				return hint.kind, true
			}
		}
	}
	return "", false
}

// augmentProviderError appends an operator hint for the failure kinds that
// need a config change rather than a retry.
func augmentProviderError(kind ErrorKind, message string) string {
	msg := strings.TrimSpace(message)
	switch kind {
	case KindInvalidCredential:
		return msg + " Hint: check providers.credentials api_key or rotate the key; the planner skips this credential until it is fixed."
	case KindUnsupported:
		return msg + " Hint: remove the model from providers.models or WARGABOT_PROVIDERS_MODELS."
	}
	return msg
}
