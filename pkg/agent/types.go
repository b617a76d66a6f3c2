package agent

import "github.com/dotsetgreg/wargabot/pkg/history"

// TurnInput is one incoming message.
type TurnInput struct {
	UserID   string `json:"user_id"`
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	MediaURL string `json:"media_url,omitempty"`
	// History, when given, replaces the stored history for this turn.
	History []HistoryMessage `json:"history,omitempty"`
}

type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m HistoryMessage) toHistory() history.Message {
	role := history.RoleUser
	if m.Role == string(history.RoleAssistant) {
		role = history.RoleAssistant
	}
	return history.Message{Role: role, Content: m.Content}
}

// Path names the decision step that produced a reply.
type Path string

const (
	PathSpam         Path = "spam"
	PathNameGate     Path = "name_gate"
	PathFarewell     Path = "farewell"
	PathMedia        Path = "media"
	PathSlot         Path = "slot"
	PathTrackingCode Path = "tracking_code"
	PathFastPath     Path = "fast_path"
	PathModel        Path = "model"
	PathFallback     Path = "fallback"
	PathInvalid      Path = "invalid_input"
)

type Metadata struct {
	TurnID       string `json:"turn_id"`
	SessionKey   string `json:"session_key"`
	DurationMS   int64  `json:"duration_ms"`
	Path         Path   `json:"path"`
	Model        string `json:"model,omitempty"`
	Credential   string `json:"credential,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
	Tokens       int    `json:"tokens,omitempty"`
	HasKnowledge bool   `json:"has_knowledge"`
	Guarded      bool   `json:"guarded,omitempty"`
	Duplicate    bool   `json:"duplicate,omitempty"`
	Slot         string `json:"slot,omitempty"`
}

// TurnResult is the reply for one turn. ResponseText is non-empty for
// every turn except rejected spam.
type TurnResult struct {
	Success      bool              `json:"success"`
	ResponseText string            `json:"response_text"`
	GuidanceText string            `json:"guidance_text,omitempty"`
	Intent       string            `json:"intent"`
	Fields       map[string]string `json:"fields,omitempty"`
	Metadata     Metadata          `json:"metadata"`
	Error        string            `json:"error,omitempty"`
}
