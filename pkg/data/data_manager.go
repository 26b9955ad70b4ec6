package data

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quickreply/pkg/errors"
	"quickreply/pkg/event"
	"quickreply/pkg/log"
	"quickreply/pkg/model"
	"quickreply/pkg/storage"
)

// DataManager coordinates the per-account managers and implements
// export/import on top of their read/write APIs; it never touches the
// storage documents directly.
type DataManager struct {
	GroupManager    *GroupManager
	TemplateManager *TemplateManager
	ConfigManager   *ConfigManager
	EventManager    *event.Manager
	Logger          *log.Logger

	store *storage.AccountStore
}

// NewDataManager creates the manager set for one account.
func NewDataManager(store *storage.AccountStore, eventManager *event.Manager, logger *log.Logger) (*DataManager, error) {
	m := &DataManager{
		EventManager: eventManager,
		Logger:       logger,
		store:        store,
	}

	var err error
	m.GroupManager, err = NewGroupManager(store, eventManager, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GroupManager: %w", err)
	}
	m.TemplateManager, err = NewTemplateManager(store, eventManager, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create TemplateManager: %w", err)
	}
	m.ConfigManager, err = NewConfigManager(store, eventManager, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ConfigManager: %w", err)
	}

	// Keep the config record free of references to deleted groups.
	eventManager.Subscribe(event.GroupDeleted, m.ConfigManager.handleGroupsDeleted)

	return m, nil
}

// AccountID returns the account this manager set is bound to.
func (m *DataManager) AccountID() string {
	return m.store.AccountID
}

// Search is the account-level keyword search: it resolves the group list and
// delegates to the template manager.
func (m *DataManager) Search(ctx context.Context, keyword string) ([]model.Template, error) {
	groups, err := m.GroupManager.GroupGetAll(ctx)
	if err != nil {
		return nil, err
	}
	return m.TemplateManager.TemplateSearch(ctx, keyword, groups)
}

// ExportOptions selects what an export contains.
type ExportOptions struct {
	Scope       model.TransferScope
	GroupIDs    []string // scope "group": roots of the exported subtrees
	TemplateIDs []string // scope "selected": the exported templates
	EmbedMedia  bool     // embed referenced media files as base64
}

// ImportOptions controls conflict handling on import.
type ImportOptions struct {
	// Merge keeps conflicting destination records and renames imported ones;
	// otherwise conflicting records are superseded in place.
	Merge bool
}

// ImportResult summarizes an applied import.
type ImportResult struct {
	GroupsImported    int
	TemplatesImported int
	Conflicts         model.ConflictReport
	RenamedGroups     map[string]string // imported group id -> new name
	RenamedTemplates  map[string]string // imported template id -> new label
}

// Export produces a lossless snapshot of the selected groups and templates:
// labels, content, order, usage stats and hierarchy pointers are projected
// verbatim, never re-derived.
func (m *DataManager) Export(ctx context.Context, opts ExportOptions) (*model.TransferDocument, error) {
	const op = "data.Export"

	if opts.Scope == "" {
		opts.Scope = model.ScopeAll
	}
	if !opts.Scope.Valid() {
		return nil, errors.Validation(op, "unknown export scope %q", opts.Scope)
	}

	allGroups, err := m.GroupManager.GroupGetAll(ctx)
	if err != nil {
		return nil, err
	}
	allTemplates, err := m.TemplateManager.TemplateGetAll(ctx)
	if err != nil {
		return nil, err
	}

	var groups []model.Group
	var templates []model.Template
	switch opts.Scope {
	case model.ScopeAll:
		groups, templates = allGroups, allTemplates
	case model.ScopeGroup:
		if len(opts.GroupIDs) == 0 {
			return nil, errors.Validation(op, "group scope requires at least one group id")
		}
		groups = subtreeClosure(allGroups, opts.GroupIDs)
		included := groupIDSet(groups)
		for _, t := range allTemplates {
			if included[t.GroupID] {
				templates = append(templates, t)
			}
		}
	case model.ScopeSelected:
		if len(opts.TemplateIDs) == 0 {
			return nil, errors.Validation(op, "selected scope requires at least one template id")
		}
		wanted := make(map[string]bool, len(opts.TemplateIDs))
		for _, id := range opts.TemplateIDs {
			wanted[id] = true
		}
		owners := make(map[string]bool)
		for _, t := range allTemplates {
			if wanted[t.ID] {
				templates = append(templates, t)
				owners[t.GroupID] = true
			}
		}
		// Owning groups plus their ancestor chains, so hierarchy pointers in
		// the document never dangle.
		groups = ancestorClosure(allGroups, owners)
	}

	if opts.EmbedMedia {
		embedded := make([]model.Template, len(templates))
		copy(embedded, templates)
		for i := range embedded {
			if embedded[i].Content.MediaPath == "" {
				continue
			}
			data, ext, err := storage.ReadMediaFile(embedded[i].Content.MediaPath)
			if err != nil {
				return nil, err
			}
			embedded[i].Content.MediaData = data
			embedded[i].Content.MediaExt = ext
			embedded[i].Content.MediaPath = ""
		}
		templates = embedded
	}

	if groups == nil {
		groups = []model.Group{}
	}
	if templates == nil {
		templates = []model.Template{}
	}
	doc := &model.TransferDocument{
		Metadata: model.TransferMetadata{
			Version:    model.TransferVersion,
			ExportedAt: time.Now(),
			AccountID:  m.store.AccountID,
			Scope:      opts.Scope,
		},
		Groups:    groups,
		Templates: templates,
	}
	if err := ValidateTransferDocument(doc); err != nil {
		return nil, err
	}

	m.Logger.Info(ctx, "Exported account data", log.Fields{
		"accountId": m.store.AccountID, "scope": string(opts.Scope),
		"groups": len(doc.Groups), "templates": len(doc.Templates),
	})
	return doc, nil
}

// ExportToFile writes an export document to a file.
func (m *DataManager) ExportToFile(ctx context.Context, filename string, opts ExportOptions) error {
	doc, err := m.Export(ctx, opts)
	if err != nil {
		return err
	}
	return storage.FileExport(doc, filename)
}

// Import applies a transfer document to this account. Conflicting ids are
// superseded when opts.Merge is false; with Merge they are kept alongside the
// existing records, imported groups and templates get fresh ids and
// conflict-free names, and group references are remapped so a renamed group
// still owns the correct templates.
func (m *DataManager) Import(ctx context.Context, doc *model.TransferDocument, opts ImportOptions) (*ImportResult, error) {
	if err := ValidateTransferDocument(doc); err != nil {
		return nil, err
	}

	existingGroups, err := m.GroupManager.GroupGetAll(ctx)
	if err != nil {
		return nil, err
	}
	existingTemplates, err := m.TemplateManager.TemplateGetAll(ctx)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		Conflicts:        DetectConflicts(doc, existingGroups, existingTemplates),
		RenamedGroups:    map[string]string{},
		RenamedTemplates: map[string]string{},
	}

	groups := make([]model.Group, len(doc.Groups))
	copy(groups, doc.Groups)
	templates := make([]model.Template, len(doc.Templates))
	copy(templates, doc.Templates)

	if opts.Merge {
		groups, templates = m.resolveMergeConflicts(groups, templates, existingGroups, existingTemplates, result)
	}

	// Materialize embedded media before any record is written.
	for i := range templates {
		if templates[i].Content.MediaData == "" {
			continue
		}
		path, err := storage.WriteMediaFile(m.store.MediaDir(), templates[i].ID, templates[i].Content.MediaExt, templates[i].Content.MediaData)
		if err != nil {
			return nil, err
		}
		templates[i].Content.MediaPath = path
		templates[i].Content.MediaData = ""
		templates[i].Content.MediaExt = ""
	}

	result.GroupsImported, err = m.GroupManager.GroupImport(ctx, groups)
	if err != nil {
		return nil, err
	}
	result.TemplatesImported, err = m.TemplateManager.TemplateImport(ctx, templates)
	if err != nil {
		return nil, err
	}

	m.Logger.Info(ctx, "Imported account data", log.Fields{
		"accountId": m.store.AccountID, "merge": opts.Merge,
		"groups": result.GroupsImported, "templates": result.TemplatesImported,
	})
	m.EventManager.Publish(event.Event{Type: event.AccountImported, Data: *result})
	return result, nil
}

// ImportFromFile reads a transfer document from a file and applies it.
func (m *DataManager) ImportFromFile(ctx context.Context, filename string, opts ImportOptions) (*ImportResult, error) {
	doc, err := storage.FileImport(filename)
	if err != nil {
		return nil, err
	}
	return m.Import(ctx, doc, opts)
}

// resolveMergeConflicts rewrites the imported records for a merge import:
// conflicting ids get fresh ones, conflicting group names and template
// labels get unique variants, and every parent/group reference is remapped
// consistently.
func (m *DataManager) resolveMergeConflicts(groups []model.Group, templates []model.Template, existingGroups []model.Group, existingTemplates []model.Template, result *ImportResult) ([]model.Group, []model.Template) {
	existingGroupIDs := groupIDSet(existingGroups)
	existingTemplateIDs := make(map[string]bool, len(existingTemplates))
	for _, t := range existingTemplates {
		existingTemplateIDs[t.ID] = true
	}

	idRemap := make(map[string]string)
	for i := range groups {
		if existingGroupIDs[groups[i].ID] {
			fresh := uuid.NewString()
			idRemap[groups[i].ID] = fresh
			groups[i].ID = fresh
		}
	}
	for i := range groups {
		if groups[i].ParentID != nil {
			if fresh, ok := idRemap[*groups[i].ParentID]; ok {
				groups[i].ParentID = &fresh
			}
		}
	}

	// Group names are deduplicated against the destination and against the
	// names already claimed by this import.
	names := make([]string, 0, len(existingGroups))
	for _, g := range existingGroups {
		names = append(names, g.Name)
	}
	for i := range groups {
		unique := GenerateUniqueName(groups[i].Name, names)
		if unique != groups[i].Name {
			result.RenamedGroups[groups[i].ID] = unique
			groups[i].Name = unique
		}
		names = append(names, unique)
	}

	// Template labels are deduplicated per destination group, independently
	// of id collisions.
	labelsByGroup := make(map[string][]string)
	for _, t := range existingTemplates {
		labelsByGroup[t.GroupID] = append(labelsByGroup[t.GroupID], t.Label)
	}
	for i := range templates {
		if existingTemplateIDs[templates[i].ID] {
			templates[i].ID = uuid.NewString()
		}
		if fresh, ok := idRemap[templates[i].GroupID]; ok {
			templates[i].GroupID = fresh
		}
		unique := GenerateUniqueName(templates[i].Label, labelsByGroup[templates[i].GroupID])
		if unique != templates[i].Label {
			result.RenamedTemplates[templates[i].ID] = unique
			templates[i].Label = unique
		}
		labelsByGroup[templates[i].GroupID] = append(labelsByGroup[templates[i].GroupID], unique)
	}

	return groups, templates
}

// subtreeClosure returns the groups rooted at the given ids plus all their
// descendants, using a worklist walk.
func subtreeClosure(groups []model.Group, rootIDs []string) []model.Group {
	included := make(map[string]bool)
	stack := make([]string, 0, len(rootIDs))
	for _, id := range rootIDs {
		if findGroup(groups, id) != nil {
			stack = append(stack, id)
		}
	}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if included[current] {
			continue
		}
		included[current] = true
		for _, g := range groups {
			if g.ParentID != nil && *g.ParentID == current {
				stack = append(stack, g.ID)
			}
		}
	}

	out := make([]model.Group, 0, len(included))
	for _, g := range groups {
		if included[g.ID] {
			out = append(out, g)
		}
	}
	return out
}

// ancestorClosure returns the groups in seed plus every ancestor up to the
// root.
func ancestorClosure(groups []model.Group, seed map[string]bool) []model.Group {
	included := make(map[string]bool)
	for id := range seed {
		for current := findGroup(groups, id); current != nil; {
			if included[current.ID] {
				break
			}
			included[current.ID] = true
			if current.ParentID == nil {
				break
			}
			current = findGroup(groups, *current.ParentID)
		}
	}

	out := make([]model.Group, 0, len(included))
	for _, g := range groups {
		if included[g.ID] {
			out = append(out, g)
		}
	}
	return out
}

func groupIDSet(groups []model.Group) map[string]bool {
	set := make(map[string]bool, len(groups))
	for _, g := range groups {
		set[g.ID] = true
	}
	return set
}
