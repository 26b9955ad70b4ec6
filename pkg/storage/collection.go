package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"quickreply/pkg/errors"
	"quickreply/pkg/log"
	"quickreply/pkg/migration"
)

// renameFile replaces a document with its fully-written successor. Indirect
// so tests can inject a rename failure and verify the prior document survives.
var renameFile = os.Rename

// Collection is the single-document store for one account's entities of one
// kind. The whole collection is read and written as one unit; partial writes
// never reach the target path because every save goes through a temporary
// file that replaces the document only on success.
type Collection[T any] struct {
	path      string
	kind      migration.Kind
	accountID string
	mu        *sync.Mutex
	logger    *log.Logger
}

// NewCollection creates the store for one collection document.
func NewCollection[T any](path string, kind migration.Kind, accountID string, logger *log.Logger) *Collection[T] {
	return &Collection[T]{
		path:      path,
		kind:      kind,
		accountID: accountID,
		mu:        lockFor(path),
		logger:    logger,
	}
}

// Path returns the collection's document path.
func (c *Collection[T]) Path() string {
	return c.path
}

// LoadAll reads the whole collection. A missing document yields an empty
// collection. Legacy documents are upgraded (after a backup is written) and
// the upgraded document is persisted before any item is returned.
func (c *Collection[T]) LoadAll(ctx context.Context) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

// SaveAll atomically replaces the whole collection document.
func (c *Collection[T]) SaveAll(ctx context.Context, items []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked(ctx, items)
}

// Update runs one load-modify-save cycle under the collection's writer lock.
// When fn returns an error nothing is written and the error is passed
// through, so a rejected mutation leaves the document untouched.
func (c *Collection[T]) Update(ctx context.Context, fn func(items []T) ([]T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.loadLocked(ctx)
	if err != nil {
		return err
	}
	out, err := fn(items)
	if err != nil {
		return err
	}
	return c.saveLocked(ctx, out)
}

func (c *Collection[T]) loadLocked(ctx context.Context) ([]T, error) {
	op := fmt.Sprintf("storage.%s.load", c.kind)

	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return []T{}, nil
	}
	if err != nil {
		return nil, errors.Storage(op, fmt.Sprintf("failed to read %s", c.path), err)
	}

	// Upgrade legacy documents in place before decoding.
	migrated, changed, err := migration.EnsureCurrent(raw, c.kind, c.accountID, c.path)
	if err != nil {
		return nil, err
	}
	if changed {
		c.logger.Info(ctx, "Migrated legacy collection document", log.Fields{
			"kind": string(c.kind), "path": c.path,
		})
		if err := writeAtomic(c.path, migrated); err != nil {
			return nil, errors.Storage(op, "failed to persist migrated document", err)
		}
		raw = migrated
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.Storage(op, fmt.Sprintf("corrupt document %s", c.path), err)
	}
	payload, ok := envelope[string(c.kind)]
	if !ok {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, errors.Storage(op, fmt.Sprintf("corrupt %s collection in %s", c.kind, c.path), err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (c *Collection[T]) saveLocked(ctx context.Context, items []T) error {
	op := fmt.Sprintf("storage.%s.save", c.kind)

	if items == nil {
		items = []T{}
	}
	envelope := map[string]any{
		"version":      migration.CurrentVersion,
		"accountId":    c.accountID,
		string(c.kind): items,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return errors.Storage(op, "failed to encode document", err)
	}
	if err := writeAtomic(c.path, data); err != nil {
		c.logger.Error(ctx, "Failed to save collection document", log.Fields{
			"kind": string(c.kind), "path": c.path, "error": err,
		})
		return errors.Storage(op, fmt.Sprintf("failed to write %s", c.path), err)
	}
	return nil
}

// writeAtomic writes data to a temporary file in the target's directory and
// renames it over the target, so a crash mid-write cannot leave a
// half-written document behind.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := renameFile(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}
