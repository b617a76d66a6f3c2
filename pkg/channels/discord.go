package channels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/dotsetgreg/wargabot/pkg/bus"
	"github.com/dotsetgreg/wargabot/pkg/config"
	"github.com/dotsetgreg/wargabot/pkg/logger"
)

const (
	sendTimeout           = 10 * time.Second
	typingRefreshInterval = 8 * time.Second
	// Turns that end without a reply (spam) never call Send.
	typingMaxDuration = time.Minute
	// Discord rejects messages over 2000 characters.
	maxMessageRunes = 1900
)

type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session
	typing  *typingIndicator
}

func NewDiscordChannel(cfg config.DiscordConfig, bus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	c := &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", bus, cfg.AllowFrom),
		session:     session,
	}
	c.typing = newTypingIndicator(c.sendTyping, typingRefreshInterval, typingMaxDuration)
	return c, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)
	c.typing.stopAll()

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}

	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}

	channelID := msg.ChatID
	if channelID == "" {
		return fmt.Errorf("channel ID is empty")
	}
	defer c.typing.end(channelID)

	for _, chunk := range splitMessage(msg.Content, maxMessageRunes) {
		if err := c.sendChunk(ctx, channelID, chunk); err != nil {
			return err
		}
	}

	return nil
}

// splitMessage breaks content into chunks of at most limit runes,
// preferring paragraph, line and word boundaries in that order.
func splitMessage(content string, limit int) []string {
	var chunks []string
	rest := []rune(strings.TrimSpace(content))
	for len(rest) > limit {
		cut := lastBoundary(rest[:limit])
		chunks = append(chunks, strings.TrimSpace(string(rest[:cut])))
		rest = []rune(strings.TrimSpace(string(rest[cut:])))
	}
	if len(rest) > 0 {
		chunks = append(chunks, string(rest))
	}
	return chunks
}

func lastBoundary(window []rune) int {
	s := string(window)
	for _, sep := range []string{"\n\n", "\n", ". ", " "} {
		if i := strings.LastIndex(s, sep); i > len(s)/2 {
			return len([]rune(s[:i+len(sep)]))
		}
	}
	return len(window)
}

func (c *DiscordChannel) sendChunk(ctx context.Context, channelID, content string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.session.ChannelMessageSend(channelID, content)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

func (c *DiscordChannel) sendTyping(channelID string) {
	if !c.IsRunning() {
		return
	}
	if err := c.session.ChannelTyping(channelID); err != nil {
		logger.DebugCF("discord", "Typing indicator failed", map[string]any{
			"channel_id": channelID,
			"error":      err.Error(),
		})
	}
}

// isImage reports whether an attachment can serve as complaint evidence.
func isImage(a *discordgo.MessageAttachment) bool {
	if strings.HasPrefix(strings.ToLower(a.ContentType), "image/") {
		return true
	}
	name := strings.ToLower(a.Filename)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".heic"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]any{
			"user_id": m.Author.ID,
		})
		return
	}

	var photos []string
	for _, a := range m.Attachments {
		if isImage(a) {
			photos = append(photos, a.URL)
		}
	}
	content := strings.TrimSpace(m.Content)
	if content == "" && len(photos) == 0 {
		return
	}

	c.typing.begin(m.ChannelID)

	logger.DebugCF("discord", "Received message", map[string]any{
		"sender_id": m.Author.ID,
		"photos":    len(photos),
		"preview":   preview(content, 50),
	})

	metadata := map[string]string{
		"message_id": m.ID,
		"username":   m.Author.Username,
		"guild_id":   m.GuildID,
		"is_dm":      fmt.Sprintf("%t", m.GuildID == ""),
	}

	// The first photo travels with the text; extra photos are delivered as
	// media-only messages so each one is accumulated.
	first := ""
	if len(photos) > 0 {
		first = photos[0]
	}
	c.HandleMessage(m.Author.ID, m.ChannelID, content, first, metadata)
	for _, url := range photos[min(1, len(photos)):] {
		c.typing.begin(m.ChannelID)
		c.HandleMessage(m.Author.ID, m.ChannelID, "", url, metadata)
	}
}
