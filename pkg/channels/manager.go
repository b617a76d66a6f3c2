// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

package channels

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dotsetgreg/wargabot/pkg/bus"
	"github.com/dotsetgreg/wargabot/pkg/config"
	"github.com/dotsetgreg/wargabot/pkg/logger"
)

// Replies on these channels are answered in-process (terminal chat, HTTP
// gateway) and never reach an adapter.
var internalChannels = map[string]bool{"cli": true, "web": true, "system": true}

type delivery struct {
	sent   atomic.Uint64
	failed atomic.Uint64
}

// ChannelStatus describes one registered adapter.
type ChannelStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
}

// Manager owns the chat adapters and routes outbound replies to them.
type Manager struct {
	bus *bus.MessageBus

	mu       sync.RWMutex
	channels map[string]Channel
	counts   map[string]*delivery
	stop     context.CancelFunc
	done     chan struct{}
}

// NewManager builds the adapters enabled in cfg. Discord is the only
// external channel; enabling it without a token is an error.
func NewManager(cfg *config.Config, msgBus *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		bus:      msgBus,
		channels: make(map[string]Channel),
		counts:   make(map[string]*delivery),
	}

	dc := cfg.Channels.Discord
	if !dc.Enabled {
		logger.InfoC("channels", "No chat channels enabled")
		return m, nil
	}
	if strings.TrimSpace(dc.Token) == "" {
		return nil, errors.New("channels.discord.token is required when discord is enabled")
	}
	discord, err := NewDiscordChannel(dc, msgBus)
	if err != nil {
		return nil, fmt.Errorf("initialize discord channel: %w", err)
	}
	m.RegisterChannel("discord", discord)
	return m, nil
}

func (m *Manager) RegisterChannel(name string, ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = ch
	if m.counts[name] == nil {
		m.counts[name] = &delivery{}
	}
}

// StartAll starts every adapter and the outbound dispatcher. If any adapter
// fails the ones already started are stopped again.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return nil
	}

	var started []Channel
	for _, name := range m.namesLocked() {
		ch := m.channels[name]
		if err := ch.Start(ctx); err != nil {
			for _, s := range started {
				if serr := s.Stop(ctx); serr != nil {
					logger.WarnCF("channels", "Failed to stop partially started channel", map[string]interface{}{
						"channel": s.Name(),
						"error":   serr.Error(),
					})
				}
			}
			return fmt.Errorf("start channel %s: %w", name, err)
		}
		started = append(started, ch)
		logger.InfoCF("channels", "Channel started", map[string]interface{}{"channel": name})
	}

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.stop = cancel
	m.done = make(chan struct{})
	go m.dispatch(dispatchCtx, m.done)
	return nil
}

// StopAll stops the dispatcher, waits for it to exit, then stops every
// adapter. Adapter errors are joined.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var errs []error
	for _, name := range m.namesLocked() {
		if err := m.channels[name].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) dispatch(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			logger.DebugC("channels", "Outbound dispatcher stopped")
			return
		}
		if internalChannels[msg.Channel] {
			continue
		}

		m.mu.RLock()
		ch, exists := m.channels[msg.Channel]
		counts := m.counts[msg.Channel]
		m.mu.RUnlock()
		if !exists {
			logger.WarnCF("channels", "Reply for unknown channel dropped", map[string]interface{}{"channel": msg.Channel})
			continue
		}

		if err := ch.Send(ctx, msg); err != nil {
			counts.failed.Add(1)
			logger.ErrorCF("channels", "Reply delivery failed", map[string]interface{}{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
			continue
		}
		counts.sent.Add(1)
	}
}

// GetEnabledChannels returns the registered adapter names, sorted.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.namesLocked()
}

func (m *Manager) Status() []ChannelStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChannelStatus, 0, len(m.channels))
	for _, name := range m.namesLocked() {
		c := m.counts[name]
		out = append(out, ChannelStatus{
			Name:    name,
			Running: m.channels[name].IsRunning(),
			Sent:    c.sent.Load(),
			Failed:  c.failed.Load(),
		})
	}
	return out
}

func (m *Manager) namesLocked() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
