package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickreply/pkg/errors"
	"quickreply/pkg/log"
	"quickreply/pkg/migration"
	"quickreply/pkg/model"
)

func newTestLogger(t *testing.T) *log.Logger {
	t.Helper()
	logger, err := log.New(t.TempDir(), log.LevelError, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}

func newGroupCollection(t *testing.T) (*Collection[model.Group], string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "groups.json")
	return NewCollection[model.Group](path, migration.KindGroups, "acct-1", newTestLogger(t)), path
}

func TestCollectionMissingFileYieldsEmpty(t *testing.T) {
	c, _ := newGroupCollection(t)

	items, err := c.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCollectionSaveAndLoadRoundTrip(t *testing.T) {
	c, path := newGroupCollection(t)
	ctx := context.Background()

	groups := []model.Group{
		{ID: "g1", Name: "Sales", Order: 1, Expanded: true},
		{ID: "g2", Name: "Support", Order: 2, Expanded: true},
	}
	require.NoError(t, c.SaveAll(ctx, groups))

	loaded, err := c.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, groups, loaded)

	// The document on disk carries the versioned envelope.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.JSONEq(t, fmt.Sprintf("%q", migration.CurrentVersion), string(envelope["version"]))
	assert.JSONEq(t, `"acct-1"`, string(envelope["accountId"]))
	assert.Contains(t, envelope, "groups")
}

func TestCollectionUpdateErrorLeavesDocumentUntouched(t *testing.T) {
	c, _ := newGroupCollection(t)
	ctx := context.Background()

	require.NoError(t, c.SaveAll(ctx, []model.Group{{ID: "g1", Name: "Sales"}}))

	wantErr := fmt.Errorf("rejected")
	err := c.Update(ctx, func(items []model.Group) ([]model.Group, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	loaded, err := c.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "g1", loaded[0].ID)
}

func TestCollectionAtomicWriteFailureKeepsPriorDocument(t *testing.T) {
	c, _ := newGroupCollection(t)
	ctx := context.Background()

	require.NoError(t, c.SaveAll(ctx, []model.Group{{ID: "g1", Name: "Sales"}}))

	orig := renameFile
	renameFile = func(oldpath, newpath string) error {
		return fmt.Errorf("disk full")
	}
	defer func() { renameFile = orig }()

	err := c.SaveAll(ctx, []model.Group{{ID: "g2", Name: "Broken"}})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindStorage))

	renameFile = orig

	loaded, err := c.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "g1", loaded[0].ID, "failed write must not clobber the prior document")

	// No stray temporary files survive the failed write.
	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(c.Path()), "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestCollectionMigratesLegacyDocumentOnLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.json")
	legacy := `[{"id":"t1","groupId":"g1","type":"text","label":"Hi","content":{"text":"hello"}}]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	c := NewCollection[model.Template](path, migration.KindTemplates, "acct-1", newTestLogger(t))

	items, err := c.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "t1", items[0].ID)
	assert.Equal(t, 0, items[0].UsageCount)
	assert.Nil(t, items[0].LastUsedAt)

	// The upgraded document replaced the legacy one on disk, and a backup of
	// the original was written next to it.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, migration.CurrentVersion, migration.DetectVersion(raw))

	backups, err := filepath.Glob(path + ".backup-*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	backupRaw, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.JSONEq(t, legacy, string(backupRaw))
}

func TestCollectionCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "groups.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	c := NewCollection[model.Group](path, migration.KindGroups, "acct-1", newTestLogger(t))

	_, err := c.LoadAll(context.Background())
	require.Error(t, err)
}

func TestCollectionConcurrentUpdatesSerialize(t *testing.T) {
	c, _ := newGroupCollection(t)
	ctx := context.Background()

	const writers = 8
	const rounds = 5

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				err := c.Update(ctx, func(items []model.Group) ([]model.Group, error) {
					return append(items, model.Group{ID: fmt.Sprintf("g-%d-%d", w, r)}), nil
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	loaded, err := c.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, writers*rounds, "no update may be lost under concurrency")
}
