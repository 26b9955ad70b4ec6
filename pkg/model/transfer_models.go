package model

import "time"

// TransferVersion is the format version written into export documents.
const TransferVersion = "1.0.0"

// TransferScope says which slice of an account's data an export contains.
type TransferScope string

const (
	ScopeAll      TransferScope = "all"
	ScopeGroup    TransferScope = "group"
	ScopeSelected TransferScope = "selected"
)

// Valid reports whether s is a known transfer scope.
func (s TransferScope) Valid() bool {
	return s == ScopeAll || s == ScopeGroup || s == ScopeSelected
}

// TransferMetadata describes an export document.
type TransferMetadata struct {
	Version    string        `json:"version" validate:"required"`
	ExportedAt time.Time     `json:"exportedAt" validate:"required"`
	AccountID  string        `json:"accountId"`
	Scope      TransferScope `json:"scope" validate:"required"`
}

// TransferDocument is the self-contained export/import format: a consistent
// snapshot of groups and templates with every semantically meaningful field
// preserved verbatim.
type TransferDocument struct {
	Metadata  TransferMetadata `json:"metadata"`
	Groups    []Group          `json:"groups"`
	Templates []Template       `json:"templates"`
}

// ConflictReport lists, per entity kind, the importable records whose id
// already exists in the destination store.
type ConflictReport struct {
	GroupIDs    []string `json:"groupIds"`
	TemplateIDs []string `json:"templateIds"`
}

// Empty reports whether no conflict was detected.
func (r ConflictReport) Empty() bool {
	return len(r.GroupIDs) == 0 && len(r.TemplateIDs) == 0
}
