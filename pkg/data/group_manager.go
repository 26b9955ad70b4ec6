// Package data implements the engine's manager layer: group hierarchy,
// template CRUD and ordering, per-account configuration, and export/import.
// Managers are the only writers of the storage collections; consumers never
// bypass them.
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

// errNoChange aborts a storage update cycle without treating it as a failure;
// nothing is written when a closure returns it.
var errNoChange = stderrors.New("no change")

// GroupManager handles all group-hierarchy operations for one account.
type GroupManager struct {
	store        *storage.AccountStore
	eventManager *event.Manager
	logger       *log.Logger
}

// NewGroupManager creates a new GroupManager bound to one account's store.
func NewGroupManager(store *storage.AccountStore, eventManager *event.Manager, logger *log.Logger) (*GroupManager, error) {
	if store == nil {
		return nil, stderrors.New("account store not initialized")
	}
	if eventManager == nil {
		return nil, stderrors.New("event manager not initialized")
	}
	if logger == nil {
		return nil, stderrors.New("logger not initialized")
	}
	return &GroupManager{store: store, eventManager: eventManager, logger: logger}, nil
}

// GroupAdd creates a new group under the given parent (nil for a root
// group). The new group takes the next sibling slot and starts expanded.
func (gm *GroupManager) GroupAdd(ctx context.Context, name string, parentID *string) (*model.Group, error) {
	const op = "data.GroupAdd"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Validation(op, "group name must not be empty")
	}

	var created *model.Group
	err := gm.store.Groups.Update(ctx, func(groups []model.Group) ([]model.Group, error) {
		if parentID != nil && findGroup(groups, *parentID) == nil {
			return nil, errors.Validation(op, "parent group %q does not exist", *parentID)
		}

		now := time.Now()
		group := model.Group{
			ID:        uuid.NewString(),
			Name:      name,
			ParentID:  parentID,
			Order:     countSiblings(groups, parentID) + 1,
			Expanded:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created = &group
		return append(groups, group), nil
	})
	if err != nil {
		gm.logger.Error(ctx, "Failed to add group", log.Fields{"name": name, "error": err})
		return nil, err
	}

	gm.logger.Info(ctx, "Group added", log.Fields{"groupId": created.ID, "name": created.Name})
	gm.eventManager.Publish(event.Event{Type: event.GroupAdded, Data: *created})
	return created, nil
}

// GroupGet retrieves a group by id, returning nil when it does not exist.
func (gm *GroupManager) GroupGet(ctx context.Context, id string) (*model.Group, error) {
	groups, err := gm.store.Groups.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if g := findGroup(groups, id); g != nil {
		copied := *g
		return &copied, nil
	}
	return nil, nil
}

// GroupGetAll returns every group of the account.
func (gm *GroupManager) GroupGetAll(ctx context.Context) ([]model.Group, error) {
	return gm.store.Groups.LoadAll(ctx)
}

// GroupGetChildren returns the direct children of a parent (nil for root
// groups), ordered by their sibling slot.
func (gm *GroupManager) GroupGetChildren(ctx context.Context, parentID *string) ([]model.Group, error) {
	groups, err := gm.store.Groups.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	children := make([]model.Group, 0)
	for _, g := range groups {
		if sameParent(g.ParentID, parentID) {
			children = append(children, g)
		}
	}
	sort.SliceStable(children, func(i, j int) bool { return children[i].Order < children[j].Order })
	return children, nil
}

// GroupExists reports whether a group id references an existing group.
func (gm *GroupManager) GroupExists(ctx context.Context, id string) (bool, error) {
	groups, err := gm.store.Groups.LoadAll(ctx)
	if err != nil {
		return false, err
	}
	return findGroup(groups, id) != nil, nil
}

// GroupUpdate applies a partial update to a group. Renames must be non-empty
// after trimming; reparenting validates the target and rejects cycles.
func (gm *GroupManager) GroupUpdate(ctx context.Context, id string, patch model.GroupPatch) (*model.Group, error) {
	const op = "data.GroupUpdate"

	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return nil, errors.Validation(op, "group name must not be empty")
		}
		patch.Name = &trimmed
	}

	var updated *model.Group
	err := gm.store.Groups.Update(ctx, func(groups []model.Group) ([]model.Group, error) {
		idx := indexOfGroup(groups, id)
		if idx == -1 {
			return nil, errors.NotFound(op, "group %q does not exist", id)
		}
		group := groups[idx]

		if patch.Name != nil {
			group.Name = *patch.Name
		}
		if patch.Expanded != nil {
			group.Expanded = *patch.Expanded
		}
		if patch.ParentID != nil {
			newParent, err := resolveParentChange(groups, group, *patch.ParentID)
			if err != nil {
				return nil, err
			}
			if !sameParent(group.ParentID, newParent) {
				oldParent := group.ParentID
				group.ParentID = newParent
				group.Order = countSiblings(groups, newParent) + 1
				groups[idx] = group
				renumberSiblings(groups, oldParent)
			}
		}

		group.UpdatedAt = time.Now()
		groups[idx] = group
		updated = &group
		return groups, nil
	})
	if err != nil {
		return nil, err
	}

	gm.logger.Info(ctx, "Group updated", log.Fields{"groupId": id})
	gm.eventManager.Publish(event.Event{Type: event.GroupUpdated, Data: *updated})
	return updated, nil
}

// GroupToggleExpanded flips a group's expanded flag. Two consecutive toggles
// restore the original value.
func (gm *GroupManager) GroupToggleExpanded(ctx context.Context, id string) (*model.Group, error) {
	const op = "data.GroupToggleExpanded"

	var updated *model.Group
	err := gm.store.Groups.Update(ctx, func(groups []model.Group) ([]model.Group, error) {
		idx := indexOfGroup(groups, id)
		if idx == -1 {
			return nil, errors.NotFound(op, "group %q does not exist", id)
		}
		groups[idx].Expanded = !groups[idx].Expanded
		groups[idx].UpdatedAt = time.Now()
		copied := groups[idx]
		updated = &copied
		return groups, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GroupDelete removes a group, every descendant group, and every template
// owned by any of them, in one atomic pass over both documents. Deleting an
// unknown id is a no-op that returns false.
func (gm *GroupManager) GroupDelete(ctx context.Context, id string) (bool, error) {
	deleted, err := gm.deleteCascade(ctx, []string{id})
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}

// GroupDeleteBatch deletes every existing group in ids (with its cascade) in
// a single pass, ignoring unknown ids. It rejects an empty id list and
// returns the number of top-level groups actually deleted.
func (gm *GroupManager) GroupDeleteBatch(ctx context.Context, ids []string) (int, error) {
	const op = "data.GroupDeleteBatch"

	if len(ids) == 0 {
		return 0, errors.Validation(op, "group id list must not be empty")
	}
	return gm.deleteCascade(ctx, ids)
}

// deleteCascade implements the shared cascade for GroupDelete and
// GroupDeleteBatch: collect every requested subtree with an explicit
// worklist, then drop templates and groups together under both writer locks.
func (gm *GroupManager) deleteCascade(ctx context.Context, ids []string) (int, error) {
	var (
		topLevel   int
		removedIDs []string
	)

	err := gm.store.UpdateGroupsAndTemplates(ctx, func(groups []model.Group, templates []model.Template) ([]model.Group, []model.Template, error) {
		doomed := make(map[string]bool)
		removedIDs = removedIDs[:0]
		topLevel = 0

		for _, id := range ids {
			if findGroup(groups, id) == nil || doomed[id] {
				continue
			}
			topLevel++
			// Worklist walk instead of recursion keeps the transaction
			// boundary explicit and the stack bounded on deep trees.
			stack := []string{id}
			for len(stack) > 0 {
				current := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if doomed[current] {
					continue
				}
				doomed[current] = true
				removedIDs = append(removedIDs, current)
				for _, g := range groups {
					if g.ParentID != nil && *g.ParentID == current {
						stack = append(stack, g.ID)
					}
				}
			}
		}

		if topLevel == 0 {
			return nil, nil, errNoChange
		}

		keptTemplates := make([]model.Template, 0, len(templates))
		for _, t := range templates {
			if !doomed[t.GroupID] {
				keptTemplates = append(keptTemplates, t)
			}
		}

		keptGroups := make([]model.Group, 0, len(groups))
		affectedParents := make(map[string]*string)
		for _, g := range groups {
			if doomed[g.ID] {
				if g.ParentID == nil {
					affectedParents[""] = nil
				} else if !doomed[*g.ParentID] {
					affectedParents[*g.ParentID] = g.ParentID
				}
				continue
			}
			keptGroups = append(keptGroups, g)
		}
		for _, parent := range affectedParents {
			renumberSiblings(keptGroups, parent)
		}

		return keptGroups, keptTemplates, nil
	})
	if stderrors.Is(err, errNoChange) {
		return 0, nil
	}
	if err != nil {
		gm.logger.Error(ctx, "Failed to delete groups", log.Fields{"groupIds": ids, "error": err})
		return 0, err
	}

	gm.logger.Info(ctx, "Groups deleted", log.Fields{"requested": len(ids), "deleted": topLevel, "cascaded": len(removedIDs)})
	gm.eventManager.Publish(event.Event{Type: event.GroupDeleted, Data: event.GroupsDeletedData{
		AccountID: gm.store.AccountID,
		GroupIDs:  removedIDs,
	}})
	return topLevel, nil
}

// GroupImport upserts records prepared by the import pipeline: a record
// whose id already exists supersedes it, everything else is appended.
// Sibling orders are renumbered afterwards so the order invariant holds in
// the merged tree. It returns the number of records applied.
func (gm *GroupManager) GroupImport(ctx context.Context, incoming []model.Group) (int, error) {
	const op = "data.GroupImport"

	if len(incoming) == 0 {
		return 0, nil
	}
	for _, g := range incoming {
		if strings.TrimSpace(g.Name) == "" {
			return 0, errors.Validation(op, "imported group %q has an empty name", g.ID)
		}
	}

	err := gm.store.Groups.Update(ctx, func(groups []model.Group) ([]model.Group, error) {
		// Parent pointers must resolve within the union of existing and
		// incoming ids, so a hand-crafted document cannot persist a dangling
		// pointer.
		known := make(map[string]bool, len(groups)+len(incoming))
		for _, g := range groups {
			known[g.ID] = true
		}
		for _, g := range incoming {
			known[g.ID] = true
		}
		for _, g := range incoming {
			if g.ParentID == nil {
				continue
			}
			if *g.ParentID == g.ID {
				return nil, errors.Validation(op, "imported group %q is its own parent", g.ID)
			}
			if !known[*g.ParentID] {
				return nil, errors.Validation(op, "imported group %q references unknown parent %q", g.ID, *g.ParentID)
			}
		}

		parents := make(map[string]*string)
		recordParent := func(parent *string) {
			if parent == nil {
				parents[""] = nil
			} else {
				parents[*parent] = parent
			}
		}
		for _, g := range incoming {
			if idx := indexOfGroup(groups, g.ID); idx != -1 {
				// A superseded record may have moved to another parent; its
				// old sibling list must be renumbered too.
				recordParent(groups[idx].ParentID)
				groups[idx] = g
			} else {
				groups = append(groups, g)
			}
			recordParent(g.ParentID)
		}
		for _, parent := range parents {
			renumberSiblings(groups, parent)
		}
		return groups, nil
	})
	if err != nil {
		return 0, err
	}

	gm.logger.Info(ctx, "Groups imported", log.Fields{"count": len(incoming)})
	return len(incoming), nil
}

// resolveParentChange maps a patch's parent value ("" means root) to the new
// parent pointer, validating existence and acyclicity.
func resolveParentChange(groups []model.Group, group model.Group, parent string) (*string, error) {
	const op = "data.GroupUpdate"

	if parent == "" {
		return nil, nil
	}
	if parent == group.ID {
		return nil, errors.Validation(op, "group %q cannot be its own parent", group.ID)
	}
	target := findGroup(groups, parent)
	if target == nil {
		return nil, errors.Validation(op, "parent group %q does not exist", parent)
	}
	// Walk up from the target; hitting the moved group means a cycle.
	for current := target; current != nil && current.ParentID != nil; current = findGroup(groups, *current.ParentID) {
		if *current.ParentID == group.ID {
			return nil, errors.Validation(op, "moving group %q under %q would create a cycle", group.ID, parent)
		}
	}
	id := target.ID
	return &id, nil
}

func findGroup(groups []model.Group, id string) *model.Group {
	for i := range groups {
		if groups[i].ID == id {
			return &groups[i]
		}
	}
	return nil
}

func indexOfGroup(groups []model.Group, id string) int {
	for i := range groups {
		if groups[i].ID == id {
			return i
		}
	}
	return -1
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func countSiblings(groups []model.Group, parentID *string) int {
	n := 0
	for _, g := range groups {
		if sameParent(g.ParentID, parentID) {
			n++
		}
	}
	return n
}

// renumberSiblings reassigns a dense 1..N order to the children of parent,
// preserving their relative order.
func renumberSiblings(groups []model.Group, parent *string) {
	idxs := make([]int, 0)
	for i := range groups {
		if sameParent(groups[i].ParentID, parent) {
			idxs = append(idxs, i)
		}
	}
	sort.SliceStable(idxs, func(a, b int) bool { return groups[idxs[a]].Order < groups[idxs[b]].Order })
	for slot, i := range idxs {
		groups[i].Order = slot + 1
	}
}
