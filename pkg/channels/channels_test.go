package channels

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/wargabot/pkg/bus"
	"github.com/dotsetgreg/wargabot/pkg/config"
)

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"halo"}, splitMessage("  halo  ", 100))
	assert.Empty(t, splitMessage("   ", 100))

	long := strings.Repeat("kata ", 50)
	chunks := splitMessage(long, 40)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 40)
		assert.False(t, strings.HasPrefix(c, " "))
	}
	assert.Equal(t, strings.Fields(long), strings.Fields(strings.Join(chunks, " ")))

	para := strings.Repeat("a", 30) + "\n\n" + strings.Repeat("b", 30)
	assert.Equal(t, []string{strings.Repeat("a", 30), strings.Repeat("b", 30)}, splitMessage(para, 40))
}

func TestIsAllowed(t *testing.T) {
	open := NewBaseChannel("discord", bus.NewMessageBus(), nil)
	assert.True(t, open.IsAllowed("anyone"))

	restricted := NewBaseChannel("discord", bus.NewMessageBus(), []string{"123", "@warga"})
	assert.True(t, restricted.IsAllowed("123"))
	assert.True(t, restricted.IsAllowed("999|warga"))
	assert.False(t, restricted.IsAllowed("456"))
}

func TestHandleMessagePublishesPerSender(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	ch := NewBaseChannel("discord", mb, nil)

	ch.HandleMessage("42", "chan-1", "lampu mati", "https://cdn.example/p.jpg", map[string]string{"is_dm": "false"})
	msg, ok := mb.ConsumeInbound(context.Background())
	require.True(t, ok)
	assert.Equal(t, "discord:42", msg.SessionKey)
	assert.Equal(t, "chan-1", msg.ChatID)
	assert.Equal(t, "https://cdn.example/p.jpg", msg.MediaURL)
}

func TestIsImage(t *testing.T) {
	assert.True(t, isImage(&discordgo.MessageAttachment{ContentType: "image/png"}))
	assert.True(t, isImage(&discordgo.MessageAttachment{Filename: "FOTO.JPG"}))
	assert.False(t, isImage(&discordgo.MessageAttachment{Filename: "voice.ogg", ContentType: "audio/ogg"}))
}

type recordingChannel struct {
	*BaseChannel
	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func (r *recordingChannel) Start(context.Context) error { r.setRunning(true); return nil }
func (r *recordingChannel) Stop(context.Context) error  { r.setRunning(false); return nil }
func (r *recordingChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingChannel) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestManagerDispatchesOutbound(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	m, err := NewManager(config.DefaultConfig(), mb)
	require.NoError(t, err)
	assert.Empty(t, m.GetEnabledChannels(), "discord is disabled by default")

	rec := &recordingChannel{BaseChannel: NewBaseChannel("test", mb, nil)}
	m.RegisterChannel("test", rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.StartAll(ctx))
	assert.True(t, rec.IsRunning())

	mb.PublishOutbound(bus.OutboundMessage{Channel: "cli", ChatID: "x", Content: "internal"})
	mb.PublishOutbound(bus.OutboundMessage{Channel: "test", ChatID: "c1", Content: "Laporan diterima."})

	mb.PublishOutbound(bus.OutboundMessage{Channel: "telegram", ChatID: "x", Content: "nowhere"})

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Laporan diterima.", rec.sent[0].Content)
	assert.Equal(t, []ChannelStatus{{Name: "test", Running: true, Sent: 1}}, m.Status())

	require.NoError(t, m.StopAll(ctx))
	assert.False(t, rec.IsRunning())
}

type failingChannel struct {
	*BaseChannel
	startErr error
}

func (f *failingChannel) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.setRunning(true)
	return nil
}
func (f *failingChannel) Stop(context.Context) error { f.setRunning(false); return nil }
func (f *failingChannel) Send(context.Context, bus.OutboundMessage) error {
	return errors.New("rate limited")
}

func TestManagerCountsFailedDeliveries(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	m, err := NewManager(config.DefaultConfig(), mb)
	require.NoError(t, err)
	m.RegisterChannel("flaky", &failingChannel{BaseChannel: NewBaseChannel("flaky", mb, nil)})

	ctx := context.Background()
	require.NoError(t, m.StartAll(ctx))
	mb.PublishOutbound(bus.OutboundMessage{Channel: "flaky", ChatID: "c", Content: "Halo"})
	require.Eventually(t, func() bool { return m.Status()[0].Failed == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.StopAll(ctx))
}

func TestManagerStartRollsBackOnFailure(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	m, err := NewManager(config.DefaultConfig(), mb)
	require.NoError(t, err)

	good := &failingChannel{BaseChannel: NewBaseChannel("a-good", mb, nil)}
	bad := &failingChannel{BaseChannel: NewBaseChannel("b-bad", mb, nil), startErr: errors.New("gateway refused")}
	m.RegisterChannel("a-good", good)
	m.RegisterChannel("b-bad", bad)

	err = m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b-bad")
	assert.False(t, good.IsRunning(), "started channels are stopped again")
}

func TestManagerRequiresTokenWhenEnabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Channels.Discord.Enabled = true
	_, err := NewManager(cfg, bus.NewMessageBus())
	assert.Error(t, err)
}

func TestTypingIndicatorRefcountsPerChat(t *testing.T) {
	var mu sync.Mutex
	sends := map[string]int{}
	ti := newTypingIndicator(func(chatID string) {
		mu.Lock()
		sends[chatID]++
		mu.Unlock()
	}, time.Hour, time.Hour)

	ti.begin("c1")
	ti.begin("c1")
	ti.begin("c2")
	ti.begin("")
	assert.Equal(t, 2, ti.active())

	ti.end("c1")
	assert.Equal(t, 2, ti.active(), "one turn still pending in c1")
	ti.end("c1")
	assert.Equal(t, 1, ti.active())
	ti.end("unknown")

	ti.stopAll()
	assert.Equal(t, 0, ti.active())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"c1": 1, "c2": 1}, sends)
}

func TestTypingIndicatorExpires(t *testing.T) {
	ti := newTypingIndicator(func(string) {}, time.Hour, 10*time.Millisecond)
	ti.begin("c1")
	require.Eventually(t, func() bool { return ti.active() == 0 }, time.Second, 5*time.Millisecond)
	ti.end("c1")
}
