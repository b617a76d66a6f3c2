package slots

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/wargabot/pkg/cache"
	"github.com/dotsetgreg/wargabot/pkg/config"
	"github.com/dotsetgreg/wargabot/pkg/intent"
)

func newTestStore(now func() time.Time) *Store {
	return NewStore(Options{Capacity: 100, TTL: 10 * time.Minute, PhotoTTL: 5 * time.Minute, Now: now})
}

func TestSlotExclusivity(t *testing.T) {
	s := newTestStore(nil)
	const u = "discord:42"

	s.Address.Set(u, AwaitingAddress{Category: "lampu_jalan", Description: "lampu jalan mati", Timestamp: s.Now()})
	s.ServiceFormOffer.Set(u, AwaitingServiceFormOffer{ServiceSlug: "ktp", Timestamp: s.Now()})

	addr, ok := s.Address.Get(u)
	require.True(t, ok)
	assert.Equal(t, "lampu_jalan", addr.Category)
	offer, ok := s.ServiceFormOffer.Get(u)
	require.True(t, ok)
	assert.Equal(t, "ktp", offer.ServiceSlug)

	assert.True(t, s.Address.Clear(u))
	_, ok = s.Address.Get(u)
	assert.False(t, ok)
	offer, ok = s.ServiceFormOffer.Get(u)
	require.True(t, ok, "clearing one category must leave the other intact")
	assert.Equal(t, "ktp", offer.ServiceSlug)
}

func TestSetSupersedesSameCategory(t *testing.T) {
	s := newTestStore(nil)
	const u = "web:1"

	s.CancelConfirmation.Set(u, AwaitingCancelConfirmation{TargetType: intent.CaseComplaint, TargetID: "LAP-20251201-001"})
	s.CancelConfirmation.Set(u, AwaitingCancelConfirmation{TargetType: intent.CaseServiceRequest, TargetID: "LAY-20251201-002"})

	got, ok := s.CancelConfirmation.Get(u)
	require.True(t, ok)
	assert.Equal(t, "LAY-20251201-002", got.TargetID)
	assert.Empty(t, got.Reason, "the new slot replaces the old one, it does not merge")
}

func TestSessionsAreIsolated(t *testing.T) {
	s := newTestStore(nil)
	s.Name.Set("discord:1", AwaitingName{Asked: 1})
	_, ok := s.Name.Get("discord:2")
	assert.False(t, ok)
	_, ok = s.Name.Get("web:1")
	assert.False(t, ok)
}

func TestSlotsExpire(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(func() time.Time { return now })
	const u = "web:1"

	s.Address.Set(u, AwaitingAddress{Category: "sampah"})
	_, ok := s.AddPhoto(u, "https://img/1.jpg")
	require.True(t, ok)

	now = now.Add(6 * time.Minute)
	_, ok = s.Photos.Get(u)
	assert.False(t, ok, "photos use the shorter TTL")
	_, ok = s.Address.Get(u)
	assert.True(t, ok)

	now = now.Add(5 * time.Minute)
	_, ok = s.Address.Get(u)
	assert.False(t, ok)
}

func TestAddPhotoBounded(t *testing.T) {
	s := newTestStore(nil)
	const u = "web:1"
	for i := 0; i < MaxPhotos; i++ {
		_, ok := s.AddPhoto(u, fmt.Sprintf("https://img/%d.jpg", i))
		require.True(t, ok)
	}
	set, ok := s.AddPhoto(u, "https://img/extra.jpg")
	assert.False(t, ok)
	assert.Len(t, set.URLs, MaxPhotos)

	urls := s.TakePhotos(u)
	assert.Len(t, urls, MaxPhotos)
	assert.Nil(t, s.TakePhotos(u))
}

func TestActiveAndClearAll(t *testing.T) {
	s := newTestStore(nil)
	const u = "web:1"
	assert.Empty(t, s.Active(u))

	s.Name.Set(u, AwaitingName{Asked: 1})
	s.CancelConfirmation.Set(u, AwaitingCancelConfirmation{TargetID: "LAP-20251201-001"})
	_, _ = s.AddPhoto(u, "https://img/1.jpg")
	assert.Equal(t, []Category{CategoryCancelConfirmation, CategoryName, CategoryPhotos}, s.Active(u))

	s.ClearAll(u)
	assert.Empty(t, s.Active(u))
}

func TestInstancesJoinGroup(t *testing.T) {
	s := NewStore(OptionsFromConfig(config.DefaultConfig().Cache))
	g := cache.NewGroup()
	for _, inst := range s.Instances() {
		g.Add(inst)
	}
	stats := g.Stats()
	require.Len(t, stats, len(Categories))
	assert.Equal(t, "slot.address", stats[0].Name)
	assert.Equal(t, 5000, stats[0].Capacity)
}

func TestConcurrentSessions(t *testing.T) {
	s := newTestStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("web:%d", i)
			s.Address.Set(key, AwaitingAddress{Category: key})
			s.ComplaintContact.Set(key, AwaitingComplaintContact{WaitingFor: WaitingForPhone})
			got, ok := s.Address.Get(key)
			if ok && got.Category != key {
				t.Errorf("cross-session leak: %s got %s", key, got.Category)
			}
		}(i)
	}
	wg.Wait()
}
