// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dotsetgreg/wargabot/pkg/bus"
	"github.com/dotsetgreg/wargabot/pkg/logger"
)

// Loop feeds bus messages through the orchestrator and publishes replies.
type Loop struct {
	bus     *bus.MessageBus
	orch    *Orchestrator
	running atomic.Bool
	wg      sync.WaitGroup
}

func NewLoop(msgBus *bus.MessageBus, orch *Orchestrator) *Loop {
	return &Loop{bus: msgBus, orch: orch}
}

// Run consumes inbound messages until ctx ends, the bus closes or Stop is
// called. Each message is processed on its own goroutine; Run waits for
// them before returning.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	defer l.wg.Wait()

	for l.running.Load() {
		msg, ok := l.bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		l.wg.Add(1)
		go func(msg bus.InboundMessage) {
			defer l.wg.Done()
			l.handle(ctx, msg)
		}(msg)
	}
	return nil
}

func (l *Loop) Stop() {
	l.running.Store(false)
}

// handle serves channel traffic. Channel users are citizens, so slash
// commands are not interpreted here and reach the orchestrator as text.
func (l *Loop) handle(ctx context.Context, msg bus.InboundMessage) {
	response := formatReply(l.orch.ProcessTurn(ctx, turnInput(msg)))
	if response == "" {
		return
	}
	l.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: response,
	})
}

// ProcessDirect runs one message outside the bus, for the interactive CLI.
// Operator slash commands are only honoured here.
func (l *Loop) ProcessDirect(ctx context.Context, channel, userID, content string) string {
	msg := bus.InboundMessage{Channel: channel, SenderID: userID, ChatID: userID, Content: content}
	if response, handled := l.handleCommand(msg); handled {
		return response
	}
	return formatReply(l.orch.ProcessTurn(ctx, turnInput(msg)))
}

func turnInput(msg bus.InboundMessage) TurnInput {
	return TurnInput{
		UserID:   msg.SenderID,
		Channel:  msg.Channel,
		Text:     msg.Content,
		MediaURL: msg.MediaURL,
	}
}

func formatReply(res TurnResult) string {
	if res.ResponseText == "" {
		return ""
	}
	if res.GuidanceText == "" {
		return res.ResponseText
	}
	return res.ResponseText + "\n\n" + res.GuidanceText
}

// handleCommand answers operator slash commands; unknown commands fall
// through to the orchestrator.
func (l *Loop) handleCommand(msg bus.InboundMessage) (string, bool) {
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, "/") {
		return "", false
	}
	parts := strings.Fields(content)

	switch parts[0] {
	case "/reset":
		key, err := SessionKey(msg.Channel, msg.SenderID)
		if err != nil {
			return fmt.Sprintf("Cannot reset: %v", err), true
		}
		l.orch.deps.Slots.ClearAll(key)
		logger.InfoCF("agent", "Session slots reset by command", map[string]interface{}{"session_key": key})
		return "Percakapan diatur ulang.", true

	case "/slots":
		key, err := SessionKey(msg.Channel, msg.SenderID)
		if err != nil {
			return fmt.Sprintf("Cannot inspect: %v", err), true
		}
		active := l.orch.deps.Slots.Active(key)
		if len(active) == 0 {
			return "No pending slots.", true
		}
		names := make([]string, 0, len(active))
		for _, c := range active {
			names = append(names, string(c))
		}
		return "Pending slots: " + strings.Join(names, ", "), true

	case "/stats":
		b, err := json.MarshalIndent(struct {
			Turns Stats     `json:"turns"`
			Bus   bus.Stats `json:"bus"`
		}{l.orch.Stats(), l.bus.Stats()}, "", "  ")
		if err != nil {
			return fmt.Sprintf("Cannot encode stats: %v", err), true
		}
		return string(b), true
	}
	return "", false
}
