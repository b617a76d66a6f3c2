package bus

import (
	"context"
	"testing"
	"time"
)

func TestMessageBus_PublishInboundDropsWhenBufferFull(t *testing.T) {
	mb := NewMessageBus(WithCapacity(2), WithPublishTimeout(time.Millisecond))
	defer mb.Close()

	for i := 0; i < 2; i++ {
		if !mb.PublishInbound(InboundMessage{Channel: "discord", SenderID: "u", ChatID: "c", Content: "lampu mati"}) {
			t.Fatalf("expected message %d to be queued", i)
		}
	}
	if mb.PublishInbound(InboundMessage{Channel: "discord", SenderID: "u", ChatID: "c", Content: "overflow"}) {
		t.Fatalf("expected overflow to be dropped")
	}

	st := mb.Stats()
	if st.InboundDropped != 1 || st.InboundPublished != 2 || st.InboundDepth != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestMessageBus_PublishOutboundDropsWhenBufferFull(t *testing.T) {
	mb := NewMessageBus(WithCapacity(1), WithPublishTimeout(time.Millisecond))
	defer mb.Close()

	mb.PublishOutbound(OutboundMessage{Channel: "discord", ChatID: "c", Content: "Laporan diterima."})
	mb.PublishOutbound(OutboundMessage{Channel: "discord", ChatID: "c", Content: "overflow"})
	if got := mb.Stats().OutboundDropped; got != 1 {
		t.Fatalf("expected dropped outbound count 1, got %d", got)
	}
}

func TestMessageBus_PublishWaitsForRoom(t *testing.T) {
	mb := NewMessageBus(WithCapacity(1), WithPublishTimeout(time.Second))
	defer mb.Close()
	mb.PublishInbound(InboundMessage{Content: "first"})

	go func() {
		time.Sleep(20 * time.Millisecond)
		mb.ConsumeInbound(context.Background())
	}()
	if !mb.PublishInbound(InboundMessage{Content: "second"}) {
		t.Fatalf("expected publish to succeed once the consumer made room")
	}
}

func TestMessageBus_ClosedChannelsReturnFalse(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()
	mb.Close()

	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatalf("expected closed inbound consume to return ok=false")
	}
	if _, ok := mb.SubscribeOutbound(context.Background()); ok {
		t.Fatalf("expected closed outbound subscribe to return ok=false")
	}
	if mb.PublishInbound(InboundMessage{Content: "late"}) {
		t.Fatalf("expected publish after close to be ignored")
	}
}

func TestMessageBus_RoundTripKeepsMedia(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	mb.PublishInbound(InboundMessage{Channel: "discord", SenderID: "42", ChatID: "c1", MediaURL: "https://cdn.example/a.jpg"})
	msg, ok := mb.ConsumeInbound(context.Background())
	if !ok {
		t.Fatalf("expected an inbound message")
	}
	if msg.MediaURL != "https://cdn.example/a.jpg" || msg.Content != "" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestMessageBus_ConsumeHonorsContext(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatalf("expected cancelled consume to return ok=false")
	}
}
