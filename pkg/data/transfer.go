package data

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"quickreply/pkg/errors"
	"quickreply/pkg/model"
)

var transferValidate = validator.New()

// ValidateTransferDocument checks the structural contract shared by the
// export and import sides: metadata with version and export time, a known
// scope, and groups/templates present as arrays. Content-level conflicts are
// not errors; only structurally invalid documents fail.
func ValidateTransferDocument(doc *model.TransferDocument) error {
	const op = "data.ValidateTransferDocument"

	if doc == nil {
		return errors.Validation(op, "transfer document is null")
	}
	if err := transferValidate.Struct(doc.Metadata); err != nil {
		return errors.Validation(op, "transfer metadata is incomplete: %v", err)
	}
	if !doc.Metadata.Scope.Valid() {
		return errors.Validation(op, "unknown transfer scope %q", doc.Metadata.Scope)
	}
	if doc.Groups == nil {
		return errors.Validation(op, "transfer document is missing the groups array")
	}
	if doc.Templates == nil {
		return errors.Validation(op, "transfer document is missing the templates array")
	}
	return nil
}

// DetectConflicts reports, per entity kind, every importable record whose id
// already exists in the destination store. With no pre-existing data the
// report is always empty.
func DetectConflicts(doc *model.TransferDocument, existingGroups []model.Group, existingTemplates []model.Template) model.ConflictReport {
	groupIDs := make(map[string]bool, len(existingGroups))
	for _, g := range existingGroups {
		groupIDs[g.ID] = true
	}
	templateIDs := make(map[string]bool, len(existingTemplates))
	for _, t := range existingTemplates {
		templateIDs[t.ID] = true
	}

	report := model.ConflictReport{GroupIDs: []string{}, TemplateIDs: []string{}}
	for _, g := range doc.Groups {
		if groupIDs[g.ID] {
			report.GroupIDs = append(report.GroupIDs, g.ID)
		}
	}
	for _, t := range doc.Templates {
		if templateIDs[t.ID] {
			report.TemplateIDs = append(report.TemplateIDs, t.ID)
		}
	}
	return report
}

// GenerateUniqueName returns base unchanged when it is not already used
// (case-insensitively); otherwise it appends " (1)", " (2)", … until the
// result is unused.
func GenerateUniqueName(base string, existing []string) string {
	used := make(map[string]bool, len(existing))
	for _, name := range existing {
		used[strings.ToLower(name)] = true
	}
	if !used[strings.ToLower(base)] {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)", base, i)
		if !used[strings.ToLower(candidate)] {
			return candidate
		}
	}
}
