package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dotsetgreg/wargabot/pkg/logger"
)

// Instance is the type-erased view of a Cache used for group sweeps and stats.
type Instance interface {
	Name() string
	PurgeExpired() int
	Stats() Stats
}

// Group sweeps a set of named caches on a single ticker.
type Group struct {
	mu        sync.RWMutex
	instances map[string]Instance
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewGroup() *Group {
	return &Group{instances: make(map[string]Instance)}
}

func (g *Group) Add(inst Instance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instances[inst.Name()] = inst
}

// Sweep purges every member once and returns the total removed.
func (g *Group) Sweep() int {
	g.mu.RLock()
	members := make([]Instance, 0, len(g.instances))
	for _, inst := range g.instances {
		members = append(members, inst)
	}
	g.mu.RUnlock()

	total := 0
	for _, inst := range members {
		total += inst.PurgeExpired()
	}
	return total
}

// Stats returns member stats sorted by name.
func (g *Group) Stats() []Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Stats, 0, len(g.instances))
	for _, inst := range g.instances {
		out = append(out, inst.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (g *Group) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	g.mu.Lock()
	if g.cancel != nil {
		g.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.done = make(chan struct{})
	done := g.done
	g.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := g.Sweep(); n > 0 {
					logger.DebugCF("cache", "Swept expired entries", map[string]interface{}{"removed": n})
				}
			}
		}
	}()
}

func (g *Group) Close() error {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
