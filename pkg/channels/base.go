package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/dotsetgreg/wargabot/pkg/bus"
	"github.com/dotsetgreg/wargabot/pkg/logger"
)

// Channel is a chat platform adapter. Start connects and begins publishing
// citizen messages to the bus; Send delivers a reply to a chat.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

// BaseChannel holds what every adapter shares: its name, the bus and the
// sender allow list.
type BaseChannel struct {
	name    string
	bus     *bus.MessageBus
	allow   map[string]bool
	running atomic.Bool
}

// NewBaseChannel builds the shared part of an adapter. An empty allow list
// admits every sender; entries may carry a leading "@".
func NewBaseChannel(name string, msgBus *bus.MessageBus, allowFrom []string) *BaseChannel {
	allow := make(map[string]bool, len(allowFrom))
	for _, a := range allowFrom {
		if a = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(a), "@")); a != "" {
			allow[a] = true
		}
	}
	return &BaseChannel{name: name, bus: msgBus, allow: allow}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

// IsAllowed matches senderID, which may be "id|username", against the
// allow list by full value, id or username.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allow) == 0 {
		return true
	}
	if c.allow[senderID] {
		return true
	}
	id, user, found := strings.Cut(senderID, "|")
	return found && (c.allow[id] || (user != "" && c.allow[user]))
}

// HandleMessage publishes one citizen message. The session belongs to the
// sender, not the chat, so a citizen keeps their pending state across DMs
// and shared channels.
func (c *BaseChannel) HandleMessage(senderID, chatID, content, mediaURL string, metadata map[string]string) {
	if !c.IsAllowed(senderID) {
		logger.DebugCF(c.name, "Sender not in allow list", map[string]interface{}{"sender_id": senderID})
		return
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:    c.name,
		SenderID:   senderID,
		ChatID:     chatID,
		Content:    content,
		MediaURL:   mediaURL,
		SessionKey: c.name + ":" + senderID,
		Metadata:   metadata,
	})
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}
