package history

import (
	"context"
	"time"

	"github.com/dotsetgreg/wargabot/pkg/cache"
)

// DefaultCacheTTL keeps a session's recent turns for one minute.
const DefaultCacheTTL = 60 * time.Second

// Cached serves Fetch from a short-lived per-session cache. Every Append
// refreshes the entry, so an active conversation does not round-trip to
// the backend on each message.
type Cached struct {
	backend Service
	window  int
	c       *cache.Cache[string, []Message]
}

type CachedOptions struct {
	// Window is how many recent turns are kept per session.
	Window   int
	Capacity int
	TTL      time.Duration
	Now      func() time.Time
}

func NewCached(backend Service, opts CachedOptions) *Cached {
	if opts.Window <= 0 {
		opts.Window = 20
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}
	return &Cached{
		backend: backend,
		window:  opts.Window,
		c: cache.New[string, []Message](cache.Options{
			Name:     "history",
			Capacity: opts.Capacity,
			TTL:      opts.TTL,
			Now:      opts.Now,
		}),
	}
}

// Fetch returns up to limit recent turns, oldest first. Limits above the
// cache window go to the backend.
func (c *Cached) Fetch(ctx context.Context, sessionKey string, limit int) ([]Message, error) {
	if limit <= 0 || limit > c.window {
		return c.backend.Fetch(ctx, sessionKey, limit)
	}
	if msgs, ok := c.c.Get(sessionKey); ok {
		return tail(msgs, limit), nil
	}
	msgs, err := c.backend.Fetch(ctx, sessionKey, c.window)
	if err != nil {
		return nil, err
	}
	c.c.Set(sessionKey, msgs)
	return tail(msgs, limit), nil
}

func (c *Cached) Append(ctx context.Context, sessionKey string, msgs ...Message) error {
	if err := c.backend.Append(ctx, sessionKey, msgs...); err != nil {
		c.c.Delete(sessionKey)
		return err
	}
	// Only extend an entry that is already warm; a cold session is loaded
	// in full on the next Fetch.
	if cur, ok := c.c.Get(sessionKey); ok {
		next := append(append([]Message(nil), cur...), msgs...)
		c.c.Set(sessionKey, tail(next, c.window))
	}
	return nil
}

func (c *Cached) Instance() cache.Instance {
	return c.c
}

func tail(msgs []Message, n int) []Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

var _ Service = (*Cached)(nil)
