package storage

import (
	"context"
	"path/filepath"

	"quickreply/pkg/log"
	"quickreply/pkg/migration"
	"quickreply/pkg/model"
)

// AccountStore bundles the three collection documents of one account. Each
// manager instance is bound to exactly one AccountStore for its lifetime, so
// account selection is explicit rather than ambient state.
type AccountStore struct {
	AccountID string
	Dir       string

	Groups    *Collection[model.Group]
	Templates *Collection[model.Template]
	Config    *ConfigStore

	logger *log.Logger
}

// NewAccountStore creates the stores for one account's isolated namespace
// under dataDir.
func NewAccountStore(dataDir, accountID string, logger *log.Logger) *AccountStore {
	dir := AccountDir(dataDir, accountID)
	return &AccountStore{
		AccountID: accountID,
		Dir:       dir,
		Groups:    NewCollection[model.Group](filepath.Join(dir, "groups.json"), migration.KindGroups, accountID, logger),
		Templates: NewCollection[model.Template](filepath.Join(dir, "templates.json"), migration.KindTemplates, accountID, logger),
		Config:    NewConfigStore(filepath.Join(dir, "config.json"), accountID, logger),
		logger:    logger,
	}
}

// MediaDir returns the directory for the account's imported media files.
func (s *AccountStore) MediaDir() string {
	return filepath.Join(s.Dir, "media")
}

// UpdateGroupsAndTemplates runs one load-modify-save cycle over both the
// groups and templates documents while holding both writer locks, so a
// cascade is observed atomically: no operation queued on either document can
// see groups deleted without their templates or vice versa. Lock order is
// fixed (groups, then templates) to keep cross-collection updates
// deadlock-free. The templates document is saved first so a failure between
// the two writes never leaves templates pointing at already-deleted groups.
func (s *AccountStore) UpdateGroupsAndTemplates(ctx context.Context, fn func(groups []model.Group, templates []model.Template) ([]model.Group, []model.Template, error)) error {
	s.Groups.mu.Lock()
	defer s.Groups.mu.Unlock()
	s.Templates.mu.Lock()
	defer s.Templates.mu.Unlock()

	groups, err := s.Groups.loadLocked(ctx)
	if err != nil {
		return err
	}
	templates, err := s.Templates.loadLocked(ctx)
	if err != nil {
		return err
	}

	outGroups, outTemplates, err := fn(groups, templates)
	if err != nil {
		return err
	}

	if err := s.Templates.saveLocked(ctx, outTemplates); err != nil {
		return err
	}
	return s.Groups.saveLocked(ctx, outGroups)
}

// UpdateTemplatesWithGroups runs one load-modify-save cycle over the
// templates document while holding both writer locks, giving fn a consistent
// read of the groups document. Template mutations that depend on a group
// existing must check it inside fn rather than beforehand, so no cascade can
// delete the group between the check and the write. Only the templates
// document is written. Lock order matches UpdateGroupsAndTemplates.
func (s *AccountStore) UpdateTemplatesWithGroups(ctx context.Context, fn func(groups []model.Group, templates []model.Template) ([]model.Template, error)) error {
	s.Groups.mu.Lock()
	defer s.Groups.mu.Unlock()
	s.Templates.mu.Lock()
	defer s.Templates.mu.Unlock()

	groups, err := s.Groups.loadLocked(ctx)
	if err != nil {
		return err
	}
	templates, err := s.Templates.loadLocked(ctx)
	if err != nil {
		return err
	}

	out, err := fn(groups, templates)
	if err != nil {
		return err
	}
	return s.Templates.saveLocked(ctx, out)
}
