package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickreply/pkg/errors"
	"quickreply/pkg/model"
)

func TestExportAll(t *testing.T) {
	dm := newTestDataManager(t)
	ctx := context.Background()

	sales := mustAddGroup(t, dm.GroupManager, "Sales", nil)
	eu := mustAddGroup(t, dm.GroupManager, "EU", &sales.ID)
	tpl := mustAddTemplate(t, dm.TemplateManager, eu.ID, "Greeting", "hello")
	require.NoError(t, dm.TemplateManager.TemplateRecordUsage(ctx, tpl.ID))

	doc, err := dm.Export(ctx, ExportOptions{Scope: model.ScopeAll})
	require.NoError(t, err)

	assert.Equal(t, model.TransferVersion, doc.Metadata.Version)
	assert.Equal(t, "acct-1", doc.Metadata.AccountID)
	assert.Equal(t, model.ScopeAll, doc.Metadata.Scope)
	assert.False(t, doc.Metadata.ExportedAt.IsZero())

	require.Len(t, doc.Groups, 2)
	require.Len(t, doc.Templates, 1)

	// The snapshot is lossless: usage stats, order and hierarchy pointers
	// are projected verbatim.
	got := doc.Templates[0]
	assert.Equal(t, tpl.ID, got.ID)
	assert.Equal(t, eu.ID, got.GroupID)
	assert.Equal(t, 1, got.UsageCount)
	assert.NotNil(t, got.LastUsedAt)
	assert.Equal(t, 1, got.Order)
}

func TestExportGroupScopeIncludesSubtree(t *testing.T) {
	dm := newTestDataManager(t)
	ctx := context.Background()

	sales := mustAddGroup(t, dm.GroupManager, "Sales", nil)
	eu := mustAddGroup(t, dm.GroupManager, "EU", &sales.ID)
	other := mustAddGroup(t, dm.GroupManager, "Other", nil)

	inEU := mustAddTemplate(t, dm.TemplateManager, eu.ID, "In EU", "a")
	mustAddTemplate(t, dm.TemplateManager, other.ID, "Elsewhere", "b")

	doc, err := dm.Export(ctx, ExportOptions{Scope: model.ScopeGroup, GroupIDs: []string{sales.ID}})
	require.NoError(t, err)

	ids := make([]string, 0, len(doc.Groups))
	for _, g := range doc.Groups {
		ids = append(ids, g.ID)
	}
	assert.ElementsMatch(t, []string{sales.ID, eu.ID}, ids)
	require.Len(t, doc.Templates, 1)
	assert.Equal(t, inEU.ID, doc.Templates[0].ID)

	_, err = dm.Export(ctx, ExportOptions{Scope: model.ScopeGroup})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestExportSelectedScopeIncludesAncestors(t *testing.T) {
	dm := newTestDataManager(t)
	ctx := context.Background()

	root := mustAddGroup(t, dm.GroupManager, "Root", nil)
	child := mustAddGroup(t, dm.GroupManager, "Child", &root.ID)
	mustAddGroup(t, dm.GroupManager, "Unrelated", nil)

	wanted := mustAddTemplate(t, dm.TemplateManager, child.ID, "Wanted", "a")
	mustAddTemplate(t, dm.TemplateManager, child.ID, "Ignored", "b")

	doc, err := dm.Export(ctx, ExportOptions{Scope: model.ScopeSelected, TemplateIDs: []string{wanted.ID}})
	require.NoError(t, err)

	require.Len(t, doc.Templates, 1)
	assert.Equal(t, wanted.ID, doc.Templates[0].ID)

	// The owning group and its ancestor chain come along so no parent
	// pointer in the document dangles.
	ids := make([]string, 0, len(doc.Groups))
	for _, g := range doc.Groups {
		ids = append(ids, g.ID)
	}
	assert.ElementsMatch(t, []string{root.ID, child.ID}, ids)
}

func TestExportEmbedsMedia(t *testing.T) {
	dm := newTestDataManager(t)
	ctx := context.Background()

	mediaPath := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(mediaPath, []byte("fake image bytes"), 0644))

	g := mustAddGroup(t, dm.GroupManager, "Media", nil)
	_, err := dm.TemplateManager.TemplateAdd(ctx, g.ID, model.TypeImage, "Pic", model.TemplateContent{MediaPath: mediaPath})
	require.NoError(t, err)

	doc, err := dm.Export(ctx, ExportOptions{Scope: model.ScopeAll, EmbedMedia: true})
	require.NoError(t, err)

	require.Len(t, doc.Templates, 1)
	content := doc.Templates[0].Content
	assert.Empty(t, content.MediaPath)
	assert.NotEmpty(t, content.MediaData)
	assert.Equal(t, "png", content.MediaExt)

	// The store itself keeps the path; embedding only affects the document.
	stored, err := dm.TemplateManager.TemplateGetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, mediaPath, stored[0].Content.MediaPath)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestDataManager(t)
	dst := newTestDataManager(t)
	ctx := context.Background()

	sales := mustAddGroup(t, src.GroupManager, "Sales", nil)
	eu := mustAddGroup(t, src.GroupManager, "EU", &sales.ID)
	tpl := mustAddTemplate(t, src.TemplateManager, eu.ID, "Greeting", "hello")
	require.NoError(t, src.TemplateManager.TemplateRecordUsage(ctx, tpl.ID))

	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, src.ExportToFile(ctx, path, ExportOptions{Scope: model.ScopeAll}))

	result, err := dst.ImportFromFile(ctx, path, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.GroupsImported)
	assert.Equal(t, 1, result.TemplatesImported)
	assert.True(t, result.Conflicts.Empty(), "no prior data, no conflicts")

	groups, err := dst.GroupManager.GroupGetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	imported, err := dst.TemplateManager.TemplateGet(ctx, tpl.ID)
	require.NoError(t, err)
	require.NotNil(t, imported)
	assert.Equal(t, "Greeting", imported.Label)
	assert.Equal(t, eu.ID, imported.GroupID)
	assert.Equal(t, 1, imported.UsageCount, "usage stats survive the round trip")
	assert.NotNil(t, imported.LastUsedAt)
}

func TestImportSupersedesConflictsWithoutMerge(t *testing.T) {
	src := newTestDataManager(t)
	dst := newTestDataManager(t)
	ctx := context.Background()

	// Source: group A with templates 1 and 2.
	a := mustAddGroup(t, src.GroupManager, "A", nil)
	t1 := mustAddTemplate(t, src.TemplateManager, a.ID, "One", "1")
	t2 := mustAddTemplate(t, src.TemplateManager, a.ID, "Two", "2")

	doc, err := src.Export(ctx, ExportOptions{Scope: model.ScopeAll})
	require.NoError(t, err)

	// Destination already holds the same ids with different content, plus an
	// unrelated record of its own.
	_, err = dst.GroupManager.GroupImport(ctx, []model.Group{
		{ID: a.ID, Name: "Stale A", Order: 1},
		{ID: "b", Name: "B", Order: 2},
	})
	require.NoError(t, err)
	_, err = dst.TemplateManager.TemplateImport(ctx, []model.Template{
		{ID: t1.ID, GroupID: a.ID, Type: model.TypeText, Label: "Stale", Content: model.TemplateContent{Text: "old"}, Order: 1},
		{ID: "t3", GroupID: "b", Type: model.TypeText, Label: "Keep", Content: model.TemplateContent{Text: "keep"}, Order: 1},
	})
	require.NoError(t, err)

	result, err := dst.Import(ctx, doc, ImportOptions{Merge: false})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, result.Conflicts.GroupIDs)
	assert.Equal(t, []string{t1.ID}, result.Conflicts.TemplateIDs)
	assert.Empty(t, result.RenamedGroups)
	assert.Empty(t, result.RenamedTemplates)

	// Conflicting records are superseded in place, non-conflicting ones kept.
	groups, err := dst.GroupManager.GroupGetAll(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	imported, err := dst.GroupManager.GroupGet(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", imported.Name)

	templates, err := dst.TemplateManager.TemplateGetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, templates, 3)
	one, err := dst.TemplateManager.TemplateGet(ctx, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, "One", one.Label)
	two, err := dst.TemplateManager.TemplateGet(ctx, t2.ID)
	require.NoError(t, err)
	require.NotNil(t, two)
	assert.Equal(t, "Two", two.Label)
}

func TestImportMergeKeepsBothSides(t *testing.T) {
	src := newTestDataManager(t)
	dst := newTestDataManager(t)
	ctx := context.Background()

	g := mustAddGroup(t, src.GroupManager, "Sales", nil)
	tpl := mustAddTemplate(t, src.TemplateManager, g.ID, "Greeting", "from source")

	doc, err := src.Export(ctx, ExportOptions{Scope: model.ScopeAll})
	require.NoError(t, err)

	// Destination holds records with the same ids and names.
	_, err = dst.GroupManager.GroupImport(ctx, []model.Group{{ID: g.ID, Name: "Sales", Order: 1}})
	require.NoError(t, err)
	_, err = dst.TemplateManager.TemplateImport(ctx, []model.Template{
		{ID: tpl.ID, GroupID: g.ID, Type: model.TypeText, Label: "Greeting", Content: model.TemplateContent{Text: "at destination"}, Order: 1},
	})
	require.NoError(t, err)

	result, err := dst.Import(ctx, doc, ImportOptions{Merge: true})
	require.NoError(t, err)
	assert.False(t, result.Conflicts.Empty())

	// Both sides survive: the existing records untouched, the imported ones
	// under fresh ids and deduplicated names.
	groups, err := dst.GroupManager.GroupGetAll(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	names := []string{groups[0].Name, groups[1].Name}
	assert.ElementsMatch(t, []string{"Sales", "Sales (1)"}, names)
	assert.Len(t, result.RenamedGroups, 1)

	templates, err := dst.TemplateManager.TemplateGetAll(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 2)

	original, err := dst.TemplateManager.TemplateGet(ctx, tpl.ID)
	require.NoError(t, err)
	require.NotNil(t, original)
	assert.Equal(t, "at destination", original.Content.Text)

	// The imported template follows its renamed group, so labels did not
	// collide within one group and no rename was needed for it.
	var importedTpl *model.Template
	for i := range templates {
		if templates[i].ID != tpl.ID {
			importedTpl = &templates[i]
		}
	}
	require.NotNil(t, importedTpl)
	assert.Equal(t, "from source", importedTpl.Content.Text)
	assert.NotEqual(t, g.ID, importedTpl.GroupID, "group reference follows the remapped id")
	renamedGroup, err := dst.GroupManager.GroupGet(ctx, importedTpl.GroupID)
	require.NoError(t, err)
	require.NotNil(t, renamedGroup)
	assert.Equal(t, "Sales (1)", renamedGroup.Name)
	assert.Equal(t, "Greeting", importedTpl.Label)
}

func TestImportMaterializesEmbeddedMedia(t *testing.T) {
	src := newTestDataManager(t)
	dst := newTestDataManager(t)
	ctx := context.Background()

	mediaPath := filepath.Join(t.TempDir(), "pic.png")
	payload := []byte("fake image bytes")
	require.NoError(t, os.WriteFile(mediaPath, payload, 0644))

	g := mustAddGroup(t, src.GroupManager, "Media", nil)
	_, err := src.TemplateManager.TemplateAdd(ctx, g.ID, model.TypeImage, "Pic", model.TemplateContent{MediaPath: mediaPath})
	require.NoError(t, err)

	doc, err := src.Export(ctx, ExportOptions{Scope: model.ScopeAll, EmbedMedia: true})
	require.NoError(t, err)

	_, err = dst.Import(ctx, doc, ImportOptions{})
	require.NoError(t, err)

	templates, err := dst.TemplateManager.TemplateGetAll(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	content := templates[0].Content
	assert.Empty(t, content.MediaData)
	require.NotEmpty(t, content.MediaPath)

	written, err := os.ReadFile(content.MediaPath)
	require.NoError(t, err)
	assert.Equal(t, payload, written)
}

func TestSalesGroupLifecycle(t *testing.T) {
	dm := newTestDataManager(t)
	ctx := context.Background()

	sales, err := dm.GroupManager.GroupAdd(ctx, "Sales", nil)
	require.NoError(t, err)

	tpl, err := dm.TemplateManager.TemplateAdd(ctx, sales.ID, model.TypeText, "", model.TemplateContent{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "新模板", tpl.Label)
	assert.Equal(t, 1, tpl.Order)

	deleted, err := dm.GroupManager.GroupDelete(ctx, sales.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	inGroup, err := dm.TemplateManager.TemplateGetByGroup(ctx, sales.ID)
	require.NoError(t, err)
	assert.Empty(t, inGroup)

	got, err := dm.GroupManager.GroupGet(ctx, sales.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTransferIntoEmptyAccountIsExact(t *testing.T) {
	a := newTestDataManager(t)
	b := newTestDataManager(t)
	ctx := context.Background()

	g1 := mustAddGroup(t, a.GroupManager, "Greetings", nil)
	g2 := mustAddGroup(t, a.GroupManager, "Closings", nil)
	t1 := mustAddTemplate(t, a.TemplateManager, g1.ID, "Hello", "hi there")
	t2 := mustAddTemplate(t, a.TemplateManager, g1.ID, "Welcome", "welcome aboard")
	t3 := mustAddTemplate(t, a.TemplateManager, g2.ID, "Bye", "see you")
	require.NoError(t, a.TemplateManager.TemplateRecordUsage(ctx, t2.ID))
	require.NoError(t, a.TemplateManager.TemplateRecordUsage(ctx, t2.ID))

	doc, err := a.Export(ctx, ExportOptions{Scope: model.ScopeAll})
	require.NoError(t, err)

	result, err := b.Import(ctx, doc, ImportOptions{Merge: false})
	require.NoError(t, err)
	assert.Equal(t, 2, result.GroupsImported)
	assert.Equal(t, 3, result.TemplatesImported)

	groups, err := b.GroupManager.GroupGetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	for _, want := range []*model.Template{t1, t2, t3} {
		got, err := b.TemplateManager.TemplateGet(ctx, want.ID)
		require.NoError(t, err)
		require.NotNil(t, got, "template %s must exist in B", want.Label)
		assert.Equal(t, want.Label, got.Label)
		assert.Equal(t, want.Content, got.Content)
		assert.Equal(t, want.GroupID, got.GroupID)
	}
	stats, err := b.TemplateManager.TemplateUsageStats(ctx, t2.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.UsageCount)

	got, err := b.TemplateManager.TemplateGet(ctx, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, t1.Type, got.Type)
	assert.Equal(t, t1.Visibility, got.Visibility)

	// Importing the same document again reports a conflict for every
	// pre-existing id.
	result, err = b.Import(ctx, doc, ImportOptions{Merge: false})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{g1.ID, g2.ID}, result.Conflicts.GroupIDs)
	assert.ElementsMatch(t, []string{t1.ID, t2.ID, t3.ID}, result.Conflicts.TemplateIDs)
}

func TestImportRejectsInvalidDocument(t *testing.T) {
	dm := newTestDataManager(t)
	ctx := context.Background()

	_, err := dm.Import(ctx, nil, ImportOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	doc := validDoc()
	doc.Templates = []model.Template{{ID: "t1", GroupID: "no-such-group", Type: model.TypeText, Label: "X"}}
	_, err = dm.Import(ctx, doc, ImportOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}
