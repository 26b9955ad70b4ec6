// Package session binds accounts to their manager sets. Each account gets
// exactly one DataManager for the process lifetime, which keeps the single
// logical writer per account.
package session

import (
	stderrors "errors"
	"os"
	"sort"
	"sync"

	"quickreply/pkg/data"
	"quickreply/pkg/errors"
	"quickreply/pkg/event"
	"quickreply/pkg/log"
	"quickreply/pkg/model"
	"quickreply/pkg/storage"
)

// Manager hands out per-account DataManagers, creating them lazily.
type Manager struct {
	cfg    *model.Config
	logger *log.Logger

	mu       sync.Mutex
	accounts map[string]*data.DataManager
}

// NewManager creates a session manager over the configured data directory.
func NewManager(cfg *model.Config, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, stderrors.New("config not initialized")
	}
	if logger == nil {
		return nil, stderrors.New("logger not initialized")
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		accounts: make(map[string]*data.DataManager),
	}, nil
}

// Account returns the manager set for an account, creating it on first use.
func (m *Manager) Account(accountID string) (*data.DataManager, error) {
	const op = "session.Account"

	if accountID == "" {
		return nil, errors.Validation(op, "account id must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if dm, ok := m.accounts[accountID]; ok {
		return dm, nil
	}

	store := storage.NewAccountStore(m.cfg.DataDir, accountID, m.logger)
	dm, err := data.NewDataManager(store, event.NewManager(m.logger), m.logger)
	if err != nil {
		return nil, err
	}
	m.accounts[accountID] = dm
	return dm, nil
}

// ListAccounts returns the sanitized ids of every account with stored data.
func (m *Manager) ListAccounts() ([]string, error) {
	const op = "session.ListAccounts"

	entries, err := os.ReadDir(storage.AccountsRoot(m.cfg.DataDir))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Storage(op, "failed to list account directories", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
