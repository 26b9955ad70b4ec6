package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"quickreply/pkg/errors"
	"quickreply/pkg/log"
	"quickreply/pkg/migration"
	"quickreply/pkg/model"
)

// ConfigStore is the single-document store for one account's configuration
// record. Unlike the entity collections it holds one object, not an array,
// but shares the same envelope, migration and atomic-write semantics.
type ConfigStore struct {
	path      string
	accountID string
	mu        *sync.Mutex
	logger    *log.Logger
}

// NewConfigStore creates the store for an account's configuration document.
func NewConfigStore(path, accountID string, logger *log.Logger) *ConfigStore {
	return &ConfigStore{
		path:      path,
		accountID: accountID,
		mu:        lockFor(path),
		logger:    logger,
	}
}

// Load reads the configuration record. A missing document yields nil without
// an error so the caller can create the default record.
func (s *ConfigStore) Load(ctx context.Context) (*model.AccountConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Save atomically replaces the configuration document.
func (s *ConfigStore) Save(ctx context.Context, cfg *model.AccountConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, cfg)
}

// Update runs one load-modify-save cycle under the document's writer lock.
func (s *ConfigStore) Update(ctx context.Context, fn func(cfg *model.AccountConfig) (*model.AccountConfig, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	out, err := fn(cfg)
	if err != nil {
		return err
	}
	return s.saveLocked(ctx, out)
}

func (s *ConfigStore) loadLocked(ctx context.Context) (*model.AccountConfig, error) {
	const op = "storage.config.load"

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Storage(op, fmt.Sprintf("failed to read %s", s.path), err)
	}

	migrated, changed, err := migration.EnsureCurrent(raw, migration.KindConfig, s.accountID, s.path)
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info(ctx, "Migrated legacy config document", log.Fields{"path": s.path})
		if err := writeAtomic(s.path, migrated); err != nil {
			return nil, errors.Storage(op, "failed to persist migrated document", err)
		}
		raw = migrated
	}

	var envelope struct {
		Config *model.AccountConfig `json:"config"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.Storage(op, fmt.Sprintf("corrupt document %s", s.path), err)
	}
	return envelope.Config, nil
}

func (s *ConfigStore) saveLocked(ctx context.Context, cfg *model.AccountConfig) error {
	const op = "storage.config.save"

	envelope := map[string]any{
		"version":   migration.CurrentVersion,
		"accountId": s.accountID,
		"config":    cfg,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return errors.Storage(op, "failed to encode document", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		s.logger.Error(ctx, "Failed to save config document", log.Fields{
			"path": s.path, "error": err,
		})
		return errors.Storage(op, fmt.Sprintf("failed to write %s", s.path), err)
	}
	return nil
}
