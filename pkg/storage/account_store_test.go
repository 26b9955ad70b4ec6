package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickreply/pkg/model"
)

func newTestAccountStore(t *testing.T) *AccountStore {
	t.Helper()
	return NewAccountStore(t.TempDir(), "acct-1", newTestLogger(t))
}

func TestAccountStoreLayout(t *testing.T) {
	dataDir := t.TempDir()
	s := NewAccountStore(dataDir, "acct-1", newTestLogger(t))

	assert.Equal(t, AccountDir(dataDir, "acct-1"), s.Dir)
	assert.Equal(t, filepath.Join(s.Dir, "groups.json"), s.Groups.Path())
	assert.Equal(t, filepath.Join(s.Dir, "templates.json"), s.Templates.Path())
	assert.Equal(t, filepath.Join(s.Dir, "media"), s.MediaDir())
}

func TestAccountStoreIsolation(t *testing.T) {
	dataDir := t.TempDir()
	logger := newTestLogger(t)
	ctx := context.Background()

	a := NewAccountStore(dataDir, "acct-a", logger)
	b := NewAccountStore(dataDir, "acct-b", logger)

	require.NoError(t, a.Groups.SaveAll(ctx, []model.Group{{ID: "g1", Name: "Only A"}}))

	got, err := b.Groups.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "accounts must not see each other's data")
}

func TestUpdateGroupsAndTemplatesCrossDocument(t *testing.T) {
	s := newTestAccountStore(t)
	ctx := context.Background()

	require.NoError(t, s.Groups.SaveAll(ctx, []model.Group{{ID: "g1", Name: "Sales", Order: 1}}))
	require.NoError(t, s.Templates.SaveAll(ctx, []model.Template{
		{ID: "t1", GroupID: "g1", Type: model.TypeText, Label: "Hi", Order: 1},
	}))

	err := s.UpdateGroupsAndTemplates(ctx, func(groups []model.Group, templates []model.Template) ([]model.Group, []model.Template, error) {
		require.Len(t, groups, 1)
		require.Len(t, templates, 1)
		return []model.Group{}, []model.Template{}, nil
	})
	require.NoError(t, err)

	groups, err := s.Groups.LoadAll(ctx)
	require.NoError(t, err)
	templates, err := s.Templates.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Empty(t, templates)
}

func TestUpdateGroupsAndTemplatesErrorWritesNothing(t *testing.T) {
	s := newTestAccountStore(t)
	ctx := context.Background()

	require.NoError(t, s.Groups.SaveAll(ctx, []model.Group{{ID: "g1", Name: "Sales"}}))

	err := s.UpdateGroupsAndTemplates(ctx, func(groups []model.Group, templates []model.Template) ([]model.Group, []model.Template, error) {
		return nil, nil, fmt.Errorf("rejected")
	})
	require.Error(t, err)

	groups, err := s.Groups.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestConfigStoreMissingDocument(t *testing.T) {
	s := newTestAccountStore(t)

	cfg, err := s.Config.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cfg, "missing config document loads as nil, not an error")
}

func TestConfigStoreSaveAndLoad(t *testing.T) {
	s := newTestAccountStore(t)
	ctx := context.Background()

	in := &model.AccountConfig{
		AccountID:      "acct-1",
		SendMode:       model.SendTranslated,
		ExpandedGroups: []string{"g1", "g2"},
	}
	require.NoError(t, s.Config.Save(ctx, in))

	out, err := s.Config.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, model.SendTranslated, out.SendMode)
	assert.Equal(t, []string{"g1", "g2"}, out.ExpandedGroups)
	assert.Nil(t, out.LastSelectedGroupID)
}

func TestFileExportImportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")

	doc := &model.TransferDocument{
		Metadata: model.TransferMetadata{
			Version:   model.TransferVersion,
			AccountID: "acct-1",
			Scope:     model.ScopeAll,
		},
		Groups:    []model.Group{{ID: "g1", Name: "Sales", Order: 1, Expanded: true}},
		Templates: []model.Template{{ID: "t1", GroupID: "g1", Type: model.TypeText, Label: "Hi", Order: 1}},
	}
	require.NoError(t, FileExport(doc, path))

	got, err := FileImport(path)
	require.NoError(t, err)
	assert.Equal(t, doc.Metadata.Version, got.Metadata.Version)
	assert.Equal(t, doc.Groups, got.Groups)
	assert.Equal(t, doc.Templates, got.Templates)
}

func TestFileImportMissingFile(t *testing.T) {
	_, err := FileImport(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
