// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

// Package cases is the case-management boundary: complaints and service
// requests identified by tracking codes.
package cases

import (
	"context"
	"time"

	"github.com/dotsetgreg/wargabot/pkg/intent"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
)

// Locked reports whether a case in this status accepts no more changes.
func (s Status) Locked() bool {
	switch s {
	case StatusDone, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Label is the Indonesian status name shown to citizens.
func (s Status) Label() string {
	switch s {
	case StatusOpen:
		return "Diterima"
	case StatusInProgress:
		return "Sedang diproses"
	case StatusDone:
		return "Selesai"
	case StatusRejected:
		return "Ditolak"
	case StatusCancelled:
		return "Dibatalkan"
	}
	return string(s)
}

type Case struct {
	TrackingCode  string
	Type          intent.CaseType
	UserKey       string
	Category      string
	ServiceSlug   string
	Description   string
	Address       string
	Status        Status
	Reason        string
	ReporterName  string
	ReporterPhone string
	Photos        []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ComplaintInput struct {
	UserKey       string
	Category      string
	Description   string
	Address       string
	ReporterName  string
	ReporterPhone string
	Photos        []string
}

type ServiceRequestInput struct {
	UserKey      string
	ServiceSlug  string
	Description  string
	ReporterName string
}

// Service creates and manages cases. Every call that names an existing
// case checks that userKey owns it.
type Service interface {
	CreateComplaint(ctx context.Context, in ComplaintInput) (Case, error)
	CreateServiceRequest(ctx context.Context, in ServiceRequestInput) (Case, error)
	Status(ctx context.Context, userKey, code string) (Case, error)
	Update(ctx context.Context, userKey, code, description string) (Case, error)
	Cancel(ctx context.Context, userKey, code, reason string) (Case, error)
	ListByUser(ctx context.Context, userKey string, limit int) ([]Case, error)
}
