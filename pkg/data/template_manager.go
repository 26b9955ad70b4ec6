package data

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"quickreply/pkg/errors"
	"quickreply/pkg/event"
	"quickreply/pkg/log"
	"quickreply/pkg/model"
	"quickreply/pkg/storage"
)

// DefaultVisibility is assigned to templates created without an explicit
// visibility value.
const DefaultVisibility = "all"

// TemplateManager handles template CRUD, ordering, batch mutation, usage
// tracking and search for one account. Group references are checked against
// the groups document under both writer locks, so a cascade delete can never
// slip between the check and the template write.
type TemplateManager struct {
	store        *storage.AccountStore
	eventManager *event.Manager
	logger       *log.Logger
}

// NewTemplateManager creates a new TemplateManager bound to one account's
// store.
func NewTemplateManager(store *storage.AccountStore, eventManager *event.Manager, logger *log.Logger) (*TemplateManager, error) {
	if store == nil {
		return nil, stderrors.New("account store not initialized")
	}
	if eventManager == nil {
		return nil, stderrors.New("event manager not initialized")
	}
	if logger == nil {
		return nil, stderrors.New("logger not initialized")
	}
	return &TemplateManager{store: store, eventManager: eventManager, logger: logger}, nil
}

// TemplateAdd creates a template in a group. A blank label gets the
// type-specific default; content is validated against the type; the template
// takes the last order slot of the group with zeroed usage stats.
func (tm *TemplateManager) TemplateAdd(ctx context.Context, groupID string, templateType model.TemplateType, label string, content model.TemplateContent) (*model.Template, error) {
	const op = "data.TemplateAdd"

	if !templateType.Valid() {
		return nil, errors.Validation(op, "unknown template type %q", templateType)
	}
	if err := validateContent(op, templateType, content); err != nil {
		return nil, err
	}

	label = strings.TrimSpace(label)
	if label == "" {
		label = templateType.DefaultLabel()
	}

	var created *model.Template
	err := tm.store.UpdateTemplatesWithGroups(ctx, func(groups []model.Group, templates []model.Template) ([]model.Template, error) {
		if findGroup(groups, groupID) == nil {
			return nil, errors.Validation(op, "group %q does not exist", groupID)
		}
		now := time.Now()
		template := model.Template{
			ID:         uuid.NewString(),
			GroupID:    groupID,
			Type:       templateType,
			Visibility: DefaultVisibility,
			Label:      label,
			Content:    content,
			Order:      countInGroup(templates, groupID) + 1,
			UsageCount: 0,
			LastUsedAt: nil,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		created = &template
		return append(templates, template), nil
	})
	if err != nil {
		tm.logger.Error(ctx, "Failed to add template", log.Fields{"groupId": groupID, "error": err})
		return nil, err
	}

	tm.logger.Info(ctx, "Template added", log.Fields{"templateId": created.ID, "groupId": groupID, "type": string(templateType)})
	tm.eventManager.Publish(event.Event{Type: event.TemplateAdded, Data: *created})
	return created, nil
}

// TemplateGet retrieves a template by id, returning nil when it does not
// exist; absence is never an error.
func (tm *TemplateManager) TemplateGet(ctx context.Context, id string) (*model.Template, error) {
	templates, err := tm.store.Templates.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range templates {
		if templates[i].ID == id {
			copied := templates[i]
			return &copied, nil
		}
	}
	return nil, nil
}

// TemplateGetAll returns every template of the account.
func (tm *TemplateManager) TemplateGetAll(ctx context.Context) ([]model.Template, error) {
	return tm.store.Templates.LoadAll(ctx)
}

// TemplateUpdate applies a partial update to a template. A type change must
// come with content, and the pair is validated together; a blank label is
// rejected because labels are mandatory.
func (tm *TemplateManager) TemplateUpdate(ctx context.Context, id string, patch model.TemplatePatch) (*model.Template, error) {
	const op = "data.TemplateUpdate"

	if patch.Label != nil {
		trimmed := strings.TrimSpace(*patch.Label)
		if trimmed == "" {
			return nil, errors.Validation(op, "template label must not be empty")
		}
		patch.Label = &trimmed
	}
	if patch.Type != nil {
		if !patch.Type.Valid() {
			return nil, errors.Validation(op, "unknown template type %q", *patch.Type)
		}
		if patch.Content == nil {
			return nil, errors.Validation(op, "changing the template type requires new content")
		}
	}

	var updated *model.Template
	err := tm.store.Templates.Update(ctx, func(templates []model.Template) ([]model.Template, error) {
		idx := indexOfTemplate(templates, id)
		if idx == -1 {
			return nil, errors.NotFound(op, "template %q does not exist", id)
		}
		template := templates[idx]

		if patch.Label != nil {
			template.Label = *patch.Label
		}
		if patch.Visibility != nil {
			template.Visibility = *patch.Visibility
		}
		if patch.Type != nil {
			template.Type = *patch.Type
		}
		if patch.Content != nil {
			if err := validateContent(op, template.Type, *patch.Content); err != nil {
				return nil, err
			}
			template.Content = *patch.Content
		}

		template.UpdatedAt = time.Now()
		templates[idx] = template
		updated = &template
		return templates, nil
	})
	if err != nil {
		return nil, err
	}

	tm.logger.Info(ctx, "Template updated", log.Fields{"templateId": id})
	tm.eventManager.Publish(event.Event{Type: event.TemplateUpdated, Data: *updated})
	return updated, nil
}

// TemplateDelete removes a template and renumbers the remaining templates of
// its group. Deleting an unknown id is a no-op that returns false.
func (tm *TemplateManager) TemplateDelete(ctx context.Context, id string) (bool, error) {
	n, err := tm.removeTemplates(ctx, []string{id})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TemplateDeleteBatch removes every existing template in ids in a single
// pass, ignoring unknown ids. It rejects an empty list and returns the count
// actually deleted.
func (tm *TemplateManager) TemplateDeleteBatch(ctx context.Context, ids []string) (int, error) {
	const op = "data.TemplateDeleteBatch"

	if len(ids) == 0 {
		return 0, errors.Validation(op, "template id list must not be empty")
	}
	return tm.removeTemplates(ctx, ids)
}

func (tm *TemplateManager) removeTemplates(ctx context.Context, ids []string) (int, error) {
	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}

	deleted := 0
	err := tm.store.Templates.Update(ctx, func(templates []model.Template) ([]model.Template, error) {
		kept := make([]model.Template, 0, len(templates))
		affected := make(map[string]bool)
		deleted = 0
		for _, t := range templates {
			if doomed[t.ID] {
				deleted++
				affected[t.GroupID] = true
				continue
			}
			kept = append(kept, t)
		}
		if deleted == 0 {
			return nil, errNoChange
		}
		for groupID := range affected {
			renumberGroup(kept, groupID)
		}
		return kept, nil
	})
	if stderrors.Is(err, errNoChange) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	tm.logger.Info(ctx, "Templates deleted", log.Fields{"requested": len(ids), "deleted": deleted})
	tm.eventManager.Publish(event.Event{Type: event.TemplateDeleted, Data: ids})
	return deleted, nil
}

// TemplateMove moves a template to another group: it takes the last order
// slot in the target and the source group is renumbered back to a dense
// 1..N range.
func (tm *TemplateManager) TemplateMove(ctx context.Context, id, targetGroupID string) (*model.Template, error) {
	const op = "data.TemplateMove"

	moved, err := tm.moveTemplates(ctx, op, []string{id}, targetGroupID)
	if err != nil {
		return nil, err
	}
	if len(moved) == 0 {
		return nil, errors.NotFound(op, "template %q does not exist", id)
	}
	return &moved[0], nil
}

// TemplateMoveBatch moves every existing template in ids to the target group
// in a single pass, ignoring unknown ids. It rejects an empty list and an
// unknown target, and returns the count actually moved.
func (tm *TemplateManager) TemplateMoveBatch(ctx context.Context, ids []string, targetGroupID string) (int, error) {
	const op = "data.TemplateMoveBatch"

	if len(ids) == 0 {
		return 0, errors.Validation(op, "template id list must not be empty")
	}
	moved, err := tm.moveTemplates(ctx, op, ids, targetGroupID)
	if err != nil {
		return 0, err
	}
	return len(moved), nil
}

func (tm *TemplateManager) moveTemplates(ctx context.Context, op string, ids []string, targetGroupID string) ([]model.Template, error) {
	if targetGroupID == "" {
		return nil, errors.Validation(op, "target group id must not be empty")
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var moved []model.Template
	err := tm.store.UpdateTemplatesWithGroups(ctx, func(groups []model.Group, templates []model.Template) ([]model.Template, error) {
		if findGroup(groups, targetGroupID) == nil {
			return nil, errors.Validation(op, "target group %q does not exist", targetGroupID)
		}
		moved = moved[:0]
		sources := make(map[string]bool)
		next := countInGroup(templates, targetGroupID)

		for i := range templates {
			t := &templates[i]
			if !wanted[t.ID] {
				continue
			}
			// A same-group move repositions the template at the end.
			sources[t.GroupID] = true
			next++
			t.GroupID = targetGroupID
			t.Order = next
			t.UpdatedAt = time.Now()
			moved = append(moved, *t)
		}
		if len(moved) == 0 {
			return nil, errNoChange
		}
		for groupID := range sources {
			renumberGroup(templates, groupID)
		}
		// Re-read the moved templates so returned orders reflect the
		// renumbering.
		moved = moved[:0]
		for _, t := range templates {
			if wanted[t.ID] {
				moved = append(moved, t)
			}
		}
		return templates, nil
	})
	if stderrors.Is(err, errNoChange) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	tm.logger.Info(ctx, "Templates moved", log.Fields{"targetGroupId": targetGroupID, "moved": len(moved)})
	tm.eventManager.Publish(event.Event{Type: event.TemplateMoved, Data: moved})
	return moved, nil
}

// TemplateRecordUsage increments a template's usage count by exactly one and
// stamps the usage time. Concurrent calls are serialized by the collection's
// writer queue, so N calls always add exactly N.
func (tm *TemplateManager) TemplateRecordUsage(ctx context.Context, id string) error {
	const op = "data.TemplateRecordUsage"

	err := tm.store.Templates.Update(ctx, func(templates []model.Template) ([]model.Template, error) {
		idx := indexOfTemplate(templates, id)
		if idx == -1 {
			return nil, errors.NotFound(op, "template %q does not exist", id)
		}
		now := time.Now()
		templates[idx].UsageCount++
		templates[idx].LastUsedAt = &now
		templates[idx].UpdatedAt = now
		return templates, nil
	})
	if err != nil {
		return err
	}

	tm.eventManager.Publish(event.Event{Type: event.TemplateUsed, Data: id})
	return nil
}

// TemplateUsageStats returns a template's usage projection.
func (tm *TemplateManager) TemplateUsageStats(ctx context.Context, id string) (*model.UsageStats, error) {
	const op = "data.TemplateUsageStats"

	template, err := tm.TemplateGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, errors.NotFound(op, "template %q does not exist", id)
	}
	return &model.UsageStats{UsageCount: template.UsageCount, LastUsedAt: template.LastUsedAt}, nil
}

// TemplateGetByGroup returns the templates of a group ordered by their slot.
func (tm *TemplateManager) TemplateGetByGroup(ctx context.Context, groupID string) ([]model.Template, error) {
	templates, err := tm.store.Templates.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	inGroup := make([]model.Template, 0)
	for _, t := range templates {
		if t.GroupID == groupID {
			inGroup = append(inGroup, t)
		}
	}
	sort.SliceStable(inGroup, func(i, j int) bool { return inGroup[i].Order < inGroup[j].Order })
	return inGroup, nil
}

// TemplateGetByType returns the templates of a group with the given type,
// ordered by slot.
func (tm *TemplateManager) TemplateGetByType(ctx context.Context, groupID string, templateType model.TemplateType) ([]model.Template, error) {
	inGroup, err := tm.TemplateGetByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	matched := make([]model.Template, 0)
	for _, t := range inGroup {
		if t.Type == templateType {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// TemplateSearch returns the templates matching a keyword. The keyword is
// trimmed and lower-cased; a template matches on its label or text content,
// and a match on the owning group's name includes every template of that
// group. A blank keyword matches everything.
func (tm *TemplateManager) TemplateSearch(ctx context.Context, keyword string, allGroups []model.Group) ([]model.Template, error) {
	templates, err := tm.store.Templates.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return templates, nil
	}

	matchedGroups := make(map[string]bool)
	for _, g := range allGroups {
		if strings.Contains(strings.ToLower(g.Name), keyword) {
			matchedGroups[g.ID] = true
		}
	}

	matched := make([]model.Template, 0)
	for _, t := range templates {
		switch {
		case matchedGroups[t.GroupID]:
			matched = append(matched, t)
		case strings.Contains(strings.ToLower(t.Label), keyword):
			matched = append(matched, t)
		case strings.Contains(strings.ToLower(t.Content.Text), keyword):
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// TemplateImport upserts records prepared by the import pipeline: a record
// whose id already exists supersedes it, everything else is appended. Every
// referenced group must exist, and each touched group is renumbered so the
// order invariant holds after the merge. It returns the number of records
// applied.
func (tm *TemplateManager) TemplateImport(ctx context.Context, incoming []model.Template) (int, error) {
	const op = "data.TemplateImport"

	if len(incoming) == 0 {
		return 0, nil
	}
	for _, t := range incoming {
		if !t.Type.Valid() {
			return 0, errors.Validation(op, "imported template %q has unknown type %q", t.ID, t.Type)
		}
	}

	err := tm.store.UpdateTemplatesWithGroups(ctx, func(groups []model.Group, templates []model.Template) ([]model.Template, error) {
		affected := make(map[string]bool)
		for _, t := range incoming {
			if findGroup(groups, t.GroupID) == nil {
				return nil, errors.Validation(op, "imported template %q references unknown group %q", t.ID, t.GroupID)
			}
			affected[t.GroupID] = true
		}
		for _, t := range incoming {
			if idx := indexOfTemplate(templates, t.ID); idx != -1 {
				// A superseded record may land in another group; its old
				// group must be renumbered too or a gap is left behind.
				affected[templates[idx].GroupID] = true
				templates[idx] = t
			} else {
				templates = append(templates, t)
			}
		}
		for groupID := range affected {
			renumberGroup(templates, groupID)
		}
		return templates, nil
	})
	if err != nil {
		return 0, err
	}

	tm.logger.Info(ctx, "Templates imported", log.Fields{"count": len(incoming)})
	return len(incoming), nil
}

// validateContent checks a content payload against its type, exhaustively
// over the known type set: payload fields that do not belong to the type are
// rejected the same way missing ones are.
func validateContent(op string, templateType model.TemplateType, content model.TemplateContent) error {
	switch templateType {
	case model.TypeText:
		if strings.TrimSpace(content.Text) == "" {
			return errors.Validation(op, "text template content requires text")
		}
		if content.HasMedia() || content.Contact != nil {
			return errors.Validation(op, "text template content must carry only text")
		}
	case model.TypeImage, model.TypeAudio, model.TypeVideo:
		if !content.HasMedia() {
			return errors.Validation(op, "%s template content requires a media path", templateType)
		}
		if content.Text != "" || content.Contact != nil {
			return errors.Validation(op, "%s template content must carry only media", templateType)
		}
	case model.TypeMixed:
		if strings.TrimSpace(content.Text) == "" || !content.HasMedia() {
			return errors.Validation(op, "mixed template content requires both text and a media path")
		}
		if content.Contact != nil {
			return errors.Validation(op, "mixed template content must not carry contact info")
		}
	case model.TypeContact:
		if content.Contact == nil || strings.TrimSpace(content.Contact.Name) == "" || strings.TrimSpace(content.Contact.Phone) == "" {
			return errors.Validation(op, "contact template content requires a name and phone")
		}
		if content.Text != "" || content.HasMedia() {
			return errors.Validation(op, "contact template content must carry only contact info")
		}
	default:
		return errors.Validation(op, "unknown template type %q", templateType)
	}
	return nil
}

func indexOfTemplate(templates []model.Template, id string) int {
	for i := range templates {
		if templates[i].ID == id {
			return i
		}
	}
	return -1
}

func countInGroup(templates []model.Template, groupID string) int {
	n := 0
	for _, t := range templates {
		if t.GroupID == groupID {
			n++
		}
	}
	return n
}

// renumberGroup reassigns a dense 1..N order to the templates of one group,
// preserving their relative order.
func renumberGroup(templates []model.Template, groupID string) {
	idxs := make([]int, 0)
	for i := range templates {
		if templates[i].GroupID == groupID {
			idxs = append(idxs, i)
		}
	}
	sort.SliceStable(idxs, func(a, b int) bool { return templates[idxs[a]].Order < templates[idxs[b]].Order })
	for slot, i := range idxs {
		templates[i].Order = slot + 1
	}
}
