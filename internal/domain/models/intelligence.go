package models

import (
	"fmt"
	"slices"
	"strings"
)

// EntityKind names one sequence of ExtractedIntelligence
type EntityKind string

const (
	EntityBankAccount       EntityKind = "bank_account"
	EntityUPIID             EntityKind = "upi_id"
	EntityPhishingLink      EntityKind = "phishing_link"
	EntityPhoneNumber       EntityKind = "phone_number"
	EntityEmailAddress      EntityKind = "email_address"
	EntityCaseID            EntityKind = "case_id"
	EntityPolicyNumber      EntityKind = "policy_number"
	EntityOrderNumber       EntityKind = "order_number"
	EntitySuspiciousKeyword EntityKind = "suspicious_keyword"
)

// EntityKinds lists every kind in report order
var EntityKinds = []EntityKind{
	EntityBankAccount,
	EntityUPIID,
	EntityPhishingLink,
	EntityPhoneNumber,
	EntityEmailAddress,
	EntityCaseID,
	EntityPolicyNumber,
	EntityOrderNumber,
	EntitySuspiciousKeyword,
}

// ExtractedIntelligence accumulates entities mined from a conversation.
// Every sequence keeps insertion order and holds no duplicates. Entries
// are only ever appended.
type ExtractedIntelligence struct {
	BankAccounts       []string `json:"bankAccounts"`
	UPIIDs             []string `json:"upiIds"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	EmailAddresses     []string `json:"emailAddresses"`
	CaseIDs            []string `json:"caseIds"`
	PolicyNumbers      []string `json:"policyNumbers"`
	OrderNumbers       []string `json:"orderNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// NewExtractedIntelligence returns a record with empty, non-nil sequences so
// it serializes as [] rather than null.
func NewExtractedIntelligence() ExtractedIntelligence {
	return ExtractedIntelligence{
		BankAccounts:       []string{},
		UPIIDs:             []string{},
		PhishingLinks:      []string{},
		PhoneNumbers:       []string{},
		EmailAddresses:     []string{},
		CaseIDs:            []string{},
		PolicyNumbers:      []string{},
		OrderNumbers:       []string{},
		SuspiciousKeywords: []string{},
	}
}

func (ei *ExtractedIntelligence) sequence(kind EntityKind) *[]string {
	switch kind {
	case EntityBankAccount:
		return &ei.BankAccounts
	case EntityUPIID:
		return &ei.UPIIDs
	case EntityPhishingLink:
		return &ei.PhishingLinks
	case EntityPhoneNumber:
		return &ei.PhoneNumbers
	case EntityEmailAddress:
		return &ei.EmailAddresses
	case EntityCaseID:
		return &ei.CaseIDs
	case EntityPolicyNumber:
		return &ei.PolicyNumbers
	case EntityOrderNumber:
		return &ei.OrderNumbers
	case EntitySuspiciousKeyword:
		return &ei.SuspiciousKeywords
	}
	return nil
}

// Values returns the sequence for kind. The slice must not be modified.
func (ei *ExtractedIntelligence) Values(kind EntityKind) []string {
	seq := ei.sequence(kind)
	if seq == nil {
		return nil
	}
	return *seq
}

// Contains reports whether value is already recorded under kind
func (ei *ExtractedIntelligence) Contains(kind EntityKind, value string) bool {
	return slices.Contains(ei.Values(kind), value)
}

// Add appends value under kind unless it is already present.
// It reports whether the value was new.
func (ei *ExtractedIntelligence) Add(kind EntityKind, value string) bool {
	seq := ei.sequence(kind)
	if seq == nil || value == "" || slices.Contains(*seq, value) {
		return false
	}
	*seq = append(*seq, value)
	return true
}

// Clone returns a deep copy that shares no backing arrays with ei
func (ei ExtractedIntelligence) Clone() ExtractedIntelligence {
	out := NewExtractedIntelligence()
	for _, kind := range EntityKinds {
		dst := out.sequence(kind)
		*dst = append(*dst, ei.Values(kind)...)
	}
	return out
}

// Count returns the number of entries recorded under kind
func (ei *ExtractedIntelligence) Count(kind EntityKind) int {
	return len(ei.Values(kind))
}

// Total returns the number of identifier entities, excluding keyword tags
func (ei *ExtractedIntelligence) Total() int {
	total := 0
	for _, kind := range EntityKinds {
		if kind != EntitySuspiciousKeyword {
			total += ei.Count(kind)
		}
	}
	return total
}

// HasFinancialIntel reports whether a payment handle, account or link was captured
func (ei *ExtractedIntelligence) HasFinancialIntel() bool {
	return len(ei.UPIIDs) > 0 || len(ei.BankAccounts) > 0 || len(ei.PhishingLinks) > 0
}

// Diff returns the entries in ei that are not in prev, keyed by kind.
// Kinds with nothing new are omitted.
func (ei *ExtractedIntelligence) Diff(prev ExtractedIntelligence) map[EntityKind][]string {
	added := make(map[EntityKind][]string)
	for _, kind := range EntityKinds {
		for _, v := range ei.Values(kind) {
			if !prev.Contains(kind, v) {
				added[kind] = append(added[kind], v)
			}
		}
	}
	return added
}

// Summary renders a short human readable description of what was captured
func (ei *ExtractedIntelligence) Summary() string {
	labels := []struct {
		kind  EntityKind
		label string
	}{
		{EntityUPIID, "UPI ID(s)"},
		{EntityBankAccount, "bank account(s)"},
		{EntityPhoneNumber, "phone number(s)"},
		{EntityPhishingLink, "phishing link(s)"},
		{EntityEmailAddress, "email address(es)"},
		{EntityCaseID, "case ID(s)"},
		{EntityPolicyNumber, "policy number(s)"},
		{EntityOrderNumber, "order number(s)"},
	}

	var parts []string
	for _, l := range labels {
		if n := ei.Count(l.kind); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, l.label))
		}
	}

	if len(parts) == 0 {
		return "No intelligence extracted yet"
	}
	return "Extracted: " + strings.Join(parts, ", ")
}
