// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

// Package slots holds pending conversational state per session. Each slot
// category lives in its own cache, so categories expire and evict
// independently and setting one never disturbs another.
package slots

import (
	"time"

	"github.com/dotsetgreg/wargabot/pkg/cache"
	"github.com/dotsetgreg/wargabot/pkg/config"
	"github.com/dotsetgreg/wargabot/pkg/intent"
)

// MaxPhotos bounds an accumulated photo set.
const MaxPhotos = 5

type Category string

const (
	CategoryAddressConfirmation Category = "address_confirmation"
	CategoryAddress             Category = "address"
	CategoryCancelConfirmation  Category = "cancel_confirmation"
	CategoryName                Category = "name"
	CategoryServiceFormOffer    Category = "service_form_offer"
	CategoryComplaintContact    Category = "complaint_contact"
	CategoryPhotos              Category = "photos"
)

// Categories in the order the orchestrator resolves them.
var Categories = []Category{
	CategoryCancelConfirmation,
	CategoryAddressConfirmation,
	CategoryAddress,
	CategoryComplaintContact,
	CategoryServiceFormOffer,
	CategoryName,
	CategoryPhotos,
}

// AwaitingAddressConfirmation: an address was extracted and the user must
// confirm it before the complaint is filed.
type AwaitingAddressConfirmation struct {
	Address     string
	Category    string
	Description string
	Timestamp   time.Time
}

// AwaitingAddress: a complaint category is known but no location yet.
type AwaitingAddress struct {
	Category    string
	Description string
	Timestamp   time.Time
}

type AwaitingCancelConfirmation struct {
	TargetType intent.CaseType
	TargetID   string
	Reason     string
	Timestamp  time.Time
}

// AwaitingName: the assistant asked for the user's name. Asked counts the
// prompts so the second one can be more explicit. PendingMessage is the
// request that was held back by the question.
type AwaitingName struct {
	Asked          int
	PendingMessage string
	Timestamp      time.Time
}

type AwaitingServiceFormOffer struct {
	ServiceSlug string
	Timestamp   time.Time
}

type ContactField string

const (
	WaitingForName  ContactField = "name"
	WaitingForPhone ContactField = "phone"
)

// ComplaintDraft is a complaint waiting on reporter contact details.
type ComplaintDraft struct {
	Category    string
	Description string
	Address     string
	Name        string
	Phone       string
}

type AwaitingComplaintContact struct {
	Data       ComplaintDraft
	WaitingFor ContactField
	Timestamp  time.Time
}

type AccumulatedPhotos struct {
	URLs      []string
	Timestamp time.Time
}

// Slot is the typed accessor for one category.
type Slot[T any] struct {
	category Category
	c        *cache.Cache[string, T]
}

func newSlot[T any](category Category, capacity int, ttl time.Duration, now func() time.Time) *Slot[T] {
	return &Slot[T]{
		category: category,
		c: cache.New[string, T](cache.Options{
			Name:     "slot." + string(category),
			Capacity: capacity,
			TTL:      ttl,
			Now:      now,
		}),
	}
}

func (s *Slot[T]) Category() Category { return s.category }

func (s *Slot[T]) Get(sessionKey string) (T, bool) {
	return s.c.Get(sessionKey)
}

// Set replaces any existing slot of this category for the session.
func (s *Slot[T]) Set(sessionKey string, v T) {
	s.c.Set(sessionKey, v)
}

func (s *Slot[T]) Clear(sessionKey string) bool {
	return s.c.Delete(sessionKey)
}

func (s *Slot[T]) has(sessionKey string) bool {
	_, ok := s.c.Peek(sessionKey)
	return ok
}

// Options sizes the store. Zero values fall back to cache defaults.
type Options struct {
	Capacity int
	TTL      time.Duration
	PhotoTTL time.Duration
	Now      func() time.Time
}

func OptionsFromConfig(cfg config.CacheConfig) Options {
	return Options{
		Capacity: cfg.SlotCapacity,
		TTL:      config.Seconds(cfg.SlotTTLSeconds),
		PhotoTTL: config.Seconds(cfg.PhotoTTLSeconds),
	}
}

// Store owns one cache per category.
type Store struct {
	AddressConfirmation *Slot[AwaitingAddressConfirmation]
	Address             *Slot[AwaitingAddress]
	CancelConfirmation  *Slot[AwaitingCancelConfirmation]
	Name                *Slot[AwaitingName]
	ServiceFormOffer    *Slot[AwaitingServiceFormOffer]
	ComplaintContact    *Slot[AwaitingComplaintContact]
	Photos              *Slot[AccumulatedPhotos]

	now func() time.Time
}

func NewStore(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	photoTTL := opts.PhotoTTL
	if photoTTL <= 0 {
		photoTTL = opts.TTL
	}
	return &Store{
		AddressConfirmation: newSlot[AwaitingAddressConfirmation](CategoryAddressConfirmation, opts.Capacity, opts.TTL, opts.Now),
		Address:             newSlot[AwaitingAddress](CategoryAddress, opts.Capacity, opts.TTL, opts.Now),
		CancelConfirmation:  newSlot[AwaitingCancelConfirmation](CategoryCancelConfirmation, opts.Capacity, opts.TTL, opts.Now),
		Name:                newSlot[AwaitingName](CategoryName, opts.Capacity, opts.TTL, opts.Now),
		ServiceFormOffer:    newSlot[AwaitingServiceFormOffer](CategoryServiceFormOffer, opts.Capacity, opts.TTL, opts.Now),
		ComplaintContact:    newSlot[AwaitingComplaintContact](CategoryComplaintContact, opts.Capacity, opts.TTL, opts.Now),
		Photos:              newSlot[AccumulatedPhotos](CategoryPhotos, opts.Capacity, photoTTL, opts.Now),
		now:                 opts.Now,
	}
}

// Now is the store clock, used for slot timestamps.
func (s *Store) Now() time.Time {
	return s.now()
}

// Active lists the categories currently set for the session, in
// resolution order.
func (s *Store) Active(sessionKey string) []Category {
	var out []Category
	for _, cat := range Categories {
		if s.has(cat, sessionKey) {
			out = append(out, cat)
		}
	}
	return out
}

func (s *Store) has(cat Category, sessionKey string) bool {
	switch cat {
	case CategoryAddressConfirmation:
		return s.AddressConfirmation.has(sessionKey)
	case CategoryAddress:
		return s.Address.has(sessionKey)
	case CategoryCancelConfirmation:
		return s.CancelConfirmation.has(sessionKey)
	case CategoryName:
		return s.Name.has(sessionKey)
	case CategoryServiceFormOffer:
		return s.ServiceFormOffer.has(sessionKey)
	case CategoryComplaintContact:
		return s.ComplaintContact.has(sessionKey)
	case CategoryPhotos:
		return s.Photos.has(sessionKey)
	}
	return false
}

// ClearAll drops every slot for the session, e.g. on farewell.
func (s *Store) ClearAll(sessionKey string) {
	s.AddressConfirmation.Clear(sessionKey)
	s.Address.Clear(sessionKey)
	s.CancelConfirmation.Clear(sessionKey)
	s.Name.Clear(sessionKey)
	s.ServiceFormOffer.Clear(sessionKey)
	s.ComplaintContact.Clear(sessionKey)
	s.Photos.Clear(sessionKey)
}

// AddPhoto appends url to the session's photo set. It reports false, and
// leaves the set unchanged, once MaxPhotos is reached.
func (s *Store) AddPhoto(sessionKey, url string) (AccumulatedPhotos, bool) {
	cur, _ := s.Photos.Get(sessionKey)
	if len(cur.URLs) >= MaxPhotos {
		return cur, false
	}
	next := AccumulatedPhotos{
		URLs:      append(append([]string(nil), cur.URLs...), url),
		Timestamp: s.now(),
	}
	s.Photos.Set(sessionKey, next)
	return next, true
}

// TakePhotos returns and clears the session's photos.
func (s *Store) TakePhotos(sessionKey string) []string {
	cur, ok := s.Photos.Get(sessionKey)
	if !ok {
		return nil
	}
	s.Photos.Clear(sessionKey)
	return cur.URLs
}

// Instances exposes the underlying caches for sweeping and stats.
func (s *Store) Instances() []cache.Instance {
	return []cache.Instance{
		s.AddressConfirmation.c,
		s.Address.c,
		s.CancelConfirmation.c,
		s.Name.c,
		s.ServiceFormOffer.c,
		s.ComplaintContact.c,
		s.Photos.c,
	}
}
