package channels

import (
	"sync"
	"time"
)

// typingIndicator keeps a "typing..." hint alive per chat while turns are
// pending there. The hint is refreshed every interval and expires after
// maxAge even if no reply is ever sent.
type typingIndicator struct {
	send     func(chatID string)
	interval time.Duration
	maxAge   time.Duration

	mu    sync.Mutex
	chats map[string]*typingState
}

type typingState struct {
	pending int
	stop    chan struct{}
}

func newTypingIndicator(send func(chatID string), interval, maxAge time.Duration) *typingIndicator {
	return &typingIndicator{
		send:     send,
		interval: interval,
		maxAge:   maxAge,
		chats:    make(map[string]*typingState),
	}
}

// begin registers one pending turn in chatID.
func (t *typingIndicator) begin(chatID string) {
	if chatID == "" {
		return
	}
	t.mu.Lock()
	if st, ok := t.chats[chatID]; ok {
		st.pending++
		t.mu.Unlock()
		return
	}
	st := &typingState{pending: 1, stop: make(chan struct{})}
	t.chats[chatID] = st
	t.mu.Unlock()

	t.send(chatID)
	go t.refresh(chatID, st)
}

func (t *typingIndicator) refresh(chatID string, st *typingState) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	expire := time.NewTimer(t.maxAge)
	defer expire.Stop()

	for {
		select {
		case <-st.stop:
			return
		case <-expire.C:
			t.mu.Lock()
			if t.chats[chatID] == st {
				delete(t.chats, chatID)
			}
			t.mu.Unlock()
			return
		case <-ticker.C:
			t.send(chatID)
		}
	}
}

// end releases one pending turn; the hint stops when none remain.
func (t *typingIndicator) end(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.chats[chatID]
	if !ok {
		return
	}
	if st.pending--; st.pending > 0 {
		return
	}
	delete(t.chats, chatID)
	close(st.stop)
}

func (t *typingIndicator) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for chatID, st := range t.chats {
		close(st.stop)
		delete(t.chats, chatID)
	}
}

func (t *typingIndicator) active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chats)
}
