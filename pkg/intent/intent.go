// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

// Package intent defines the closed set of user intents. Model output is
// converted to one of these variants, with its required fields checked, at
// the parse boundary.
package intent

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindCreateComplaint      Kind = "create_complaint"
	KindCreateServiceRequest Kind = "create_service_request"
	KindCheckStatus          Kind = "check_status"
	KindCancelCase           Kind = "cancel_case"
	KindUpdateCase           Kind = "update_case"
	KindHistory              Kind = "history"
	KindKnowledgeQuery       Kind = "knowledge_query"
	KindGreeting             Kind = "greeting"
	KindFarewell             Kind = "farewell"
	KindConfirmation         Kind = "confirmation"
	KindProvideName          Kind = "provide_name"
	KindSmallTalk            Kind = "small_talk"
	KindUnknown              Kind = "unknown"
)

// Kinds lists every variant in declaration order.
var Kinds = []Kind{
	KindCreateComplaint, KindCreateServiceRequest, KindCheckStatus, KindCancelCase, KindUpdateCase,
	KindHistory, KindKnowledgeQuery, KindGreeting, KindFarewell, KindConfirmation, KindProvideName,
	KindSmallTalk, KindUnknown,
}

// KnowledgeDependent reports whether replies for k state facts that must
// come from retrieved knowledge.
func (k Kind) KnowledgeDependent() bool {
	switch k {
	case KindKnowledgeQuery, KindCreateServiceRequest, KindSmallTalk, KindUnknown:
		return true
	}
	return false
}

// Intent is implemented only by the variants in this package.
type Intent interface {
	Kind() Kind
	// Fields returns the extracted values, omitting empty ones.
	Fields() map[string]string
	validate() error
}

type CreateComplaint struct {
	Category    string
	Description string
	Address     string
}

type CreateServiceRequest struct {
	ServiceSlug string
	Description string
}

type CheckStatus struct {
	TrackingCode string
}

type CancelCase struct {
	TrackingCode string
	Reason       string
}

type UpdateCase struct {
	TrackingCode string
	Description  string
}

type History struct{}

type KnowledgeQuery struct {
	Query string
}

type Greeting struct{}

type Farewell struct{}

type ConfirmValue string

const (
	ConfirmYes       ConfirmValue = "confirm"
	ConfirmNo        ConfirmValue = "reject"
	ConfirmUncertain ConfirmValue = "uncertain"
)

type Confirmation struct {
	Value ConfirmValue
}

type ProvideName struct {
	Name string
}

type SmallTalk struct{}

type Unknown struct{}

func (CreateComplaint) Kind() Kind      { return KindCreateComplaint }
func (CreateServiceRequest) Kind() Kind { return KindCreateServiceRequest }
func (CheckStatus) Kind() Kind          { return KindCheckStatus }
func (CancelCase) Kind() Kind           { return KindCancelCase }
func (UpdateCase) Kind() Kind           { return KindUpdateCase }
func (History) Kind() Kind              { return KindHistory }
func (KnowledgeQuery) Kind() Kind       { return KindKnowledgeQuery }
func (Greeting) Kind() Kind             { return KindGreeting }
func (Farewell) Kind() Kind             { return KindFarewell }
func (Confirmation) Kind() Kind         { return KindConfirmation }
func (ProvideName) Kind() Kind          { return KindProvideName }
func (SmallTalk) Kind() Kind            { return KindSmallTalk }
func (Unknown) Kind() Kind              { return KindUnknown }

func (i CreateComplaint) Fields() map[string]string {
	return compact(map[string]string{"category": i.Category, "description": i.Description, "address": i.Address})
}

func (i CreateServiceRequest) Fields() map[string]string {
	return compact(map[string]string{"service_slug": i.ServiceSlug, "description": i.Description})
}

func (i CheckStatus) Fields() map[string]string {
	return compact(map[string]string{"tracking_code": i.TrackingCode})
}

func (i CancelCase) Fields() map[string]string {
	return compact(map[string]string{"tracking_code": i.TrackingCode, "reason": i.Reason})
}

func (i UpdateCase) Fields() map[string]string {
	return compact(map[string]string{"tracking_code": i.TrackingCode, "description": i.Description})
}

func (i KnowledgeQuery) Fields() map[string]string {
	return compact(map[string]string{"query": i.Query})
}

func (i Confirmation) Fields() map[string]string {
	return compact(map[string]string{"value": string(i.Value)})
}

func (i ProvideName) Fields() map[string]string {
	return compact(map[string]string{"name": i.Name})
}

func (History) Fields() map[string]string   { return map[string]string{} }
func (Greeting) Fields() map[string]string  { return map[string]string{} }
func (Farewell) Fields() map[string]string  { return map[string]string{} }
func (SmallTalk) Fields() map[string]string { return map[string]string{} }
func (Unknown) Fields() map[string]string   { return map[string]string{} }

// ErrMissingField is wrapped by validation failures.
var ErrMissingField = errors.New("missing required field")

func missing(kind Kind, field string) error {
	return fmt.Errorf("%s: %w %q", kind, ErrMissingField, field)
}

// Address is optional: a complaint without one is completed by asking.
func (i CreateComplaint) validate() error {
	if strings.TrimSpace(i.Category) == "" {
		return missing(i.Kind(), "category")
	}
	return nil
}

func (i CreateServiceRequest) validate() error {
	if strings.TrimSpace(i.ServiceSlug) == "" {
		return missing(i.Kind(), "service_slug")
	}
	return nil
}

func (i CheckStatus) validate() error {
	return validateCode(i.Kind(), i.TrackingCode)
}

func (i CancelCase) validate() error {
	return validateCode(i.Kind(), i.TrackingCode)
}

func (i UpdateCase) validate() error {
	if err := validateCode(i.Kind(), i.TrackingCode); err != nil {
		return err
	}
	if strings.TrimSpace(i.Description) == "" {
		return missing(i.Kind(), "description")
	}
	return nil
}

func (i Confirmation) validate() error {
	switch i.Value {
	case ConfirmYes, ConfirmNo, ConfirmUncertain:
		return nil
	}
	return fmt.Errorf("%s: invalid value %q", i.Kind(), i.Value)
}

func (i ProvideName) validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return missing(i.Kind(), "name")
	}
	return nil
}

func (History) validate() error        { return nil }
func (KnowledgeQuery) validate() error { return nil }
func (Greeting) validate() error       { return nil }
func (Farewell) validate() error       { return nil }
func (SmallTalk) validate() error      { return nil }
func (Unknown) validate() error        { return nil }

func validateCode(kind Kind, code string) error {
	if strings.TrimSpace(code) == "" {
		return missing(kind, "tracking_code")
	}
	if !IsTrackingCode(code) {
		return fmt.Errorf("%s: malformed tracking code %q", kind, code)
	}
	return nil
}

// Validate checks the variant's required fields.
func Validate(i Intent) error {
	if i == nil {
		return errors.New("intent is nil")
	}
	return i.validate()
}

func compact(m map[string]string) map[string]string {
	for k, v := range m {
		if strings.TrimSpace(v) == "" {
			delete(m, k)
		}
	}
	return m
}

// SortedFieldNames is handy for stable log output.
func SortedFieldNames(i Intent) []string {
	fields := i.Fields()
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
