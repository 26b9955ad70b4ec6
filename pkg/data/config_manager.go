package data

import (
	"context"
	stderrors "errors"
	"time"

	"quickreply/pkg/errors"
	"quickreply/pkg/event"
	"quickreply/pkg/log"
	"quickreply/pkg/model"
	"quickreply/pkg/storage"
)

// ConfigManager handles the per-account configuration record. Its lifecycle
// is independent from groups and templates, but it subscribes to group
// deletions so stale group references never linger in the record.
type ConfigManager struct {
	store        *storage.AccountStore
	eventManager *event.Manager
	logger       *log.Logger
}

// NewConfigManager creates a new ConfigManager bound to one account's store.
func NewConfigManager(store *storage.AccountStore, eventManager *event.Manager, logger *log.Logger) (*ConfigManager, error) {
	if store == nil {
		return nil, stderrors.New("account store not initialized")
	}
	if eventManager == nil {
		return nil, stderrors.New("event manager not initialized")
	}
	if logger == nil {
		return nil, stderrors.New("logger not initialized")
	}
	return &ConfigManager{store: store, eventManager: eventManager, logger: logger}, nil
}

// defaultConfig builds the record created on an account's first access.
func (cm *ConfigManager) defaultConfig() *model.AccountConfig {
	now := time.Now()
	return &model.AccountConfig{
		AccountID:           cm.store.AccountID,
		SendMode:            model.SendOriginal,
		ExpandedGroups:      []string{},
		LastSelectedGroupID: nil,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// ConfigGet returns the account's configuration, creating the default record
// on first access.
func (cm *ConfigManager) ConfigGet(ctx context.Context) (*model.AccountConfig, error) {
	cfg, err := cm.store.Config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}

	cfg = cm.defaultConfig()
	if err := cm.store.Config.Save(ctx, cfg); err != nil {
		return nil, err
	}
	cm.logger.Info(ctx, "Created default account config", log.Fields{"accountId": cm.store.AccountID})
	return cfg, nil
}

// ConfigUpdate applies a partial update to the account's configuration.
func (cm *ConfigManager) ConfigUpdate(ctx context.Context, patch model.AccountConfigPatch) (*model.AccountConfig, error) {
	const op = "data.ConfigUpdate"

	if patch.SendMode != nil && !patch.SendMode.Valid() {
		return nil, errors.Validation(op, "unknown send mode %q", *patch.SendMode)
	}

	var updated *model.AccountConfig
	err := cm.store.Config.Update(ctx, func(cfg *model.AccountConfig) (*model.AccountConfig, error) {
		if cfg == nil {
			cfg = cm.defaultConfig()
		}
		if patch.SendMode != nil {
			cfg.SendMode = *patch.SendMode
		}
		if patch.LastSelectedGroupID != nil {
			if *patch.LastSelectedGroupID == "" {
				cfg.LastSelectedGroupID = nil
			} else {
				cfg.LastSelectedGroupID = patch.LastSelectedGroupID
			}
		}
		cfg.UpdatedAt = time.Now()
		updated = cfg
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ConfigSetGroupExpanded records or clears a group id in the expanded set.
func (cm *ConfigManager) ConfigSetGroupExpanded(ctx context.Context, groupID string, expanded bool) error {
	const op = "data.ConfigSetGroupExpanded"

	if groupID == "" {
		return errors.Validation(op, "group id must not be empty")
	}

	return cm.store.Config.Update(ctx, func(cfg *model.AccountConfig) (*model.AccountConfig, error) {
		if cfg == nil {
			cfg = cm.defaultConfig()
		}
		cfg.ExpandedGroups = setMembership(cfg.ExpandedGroups, groupID, expanded)
		cfg.UpdatedAt = time.Now()
		return cfg, nil
	})
}

// handleGroupsDeleted prunes deleted group ids from the expanded set and the
// last selection. Wired by the DataManager against event.GroupDeleted.
func (cm *ConfigManager) handleGroupsDeleted(e event.Event) {
	ctx := context.Background()

	data, ok := e.Data.(event.GroupsDeletedData)
	if !ok || data.AccountID != cm.store.AccountID {
		return
	}
	deleted := make(map[string]bool, len(data.GroupIDs))
	for _, id := range data.GroupIDs {
		deleted[id] = true
	}

	err := cm.store.Config.Update(ctx, func(cfg *model.AccountConfig) (*model.AccountConfig, error) {
		if cfg == nil {
			return nil, errNoChange
		}
		changed := false

		kept := cfg.ExpandedGroups[:0]
		for _, id := range cfg.ExpandedGroups {
			if deleted[id] {
				changed = true
				continue
			}
			kept = append(kept, id)
		}
		cfg.ExpandedGroups = kept

		if cfg.LastSelectedGroupID != nil && deleted[*cfg.LastSelectedGroupID] {
			cfg.LastSelectedGroupID = nil
			changed = true
		}
		if !changed {
			return nil, errNoChange
		}
		cfg.UpdatedAt = time.Now()
		return cfg, nil
	})
	if err != nil && !stderrors.Is(err, errNoChange) {
		cm.logger.Error(ctx, "Failed to prune config after group deletion", log.Fields{
			"accountId": cm.store.AccountID, "error": err,
		})
	}
}

// setMembership adds or removes an id from a string set kept as a slice.
func setMembership(set []string, id string, present bool) []string {
	idx := -1
	for i, v := range set {
		if v == id {
			idx = i
			break
		}
	}
	if present && idx == -1 {
		return append(set, id)
	}
	if !present && idx != -1 {
		return append(set[:idx], set[idx+1:]...)
	}
	return set
}
