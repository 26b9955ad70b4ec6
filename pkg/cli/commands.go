package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"quickreply/pkg/data"
	"quickreply/pkg/model"
)

// executeCommand dispatches one parsed command line.
func (c *CLI) executeCommand(args []string) error {
	ctx := context.Background()
	scope := strings.ToLower(args[0])
	if scope == "account" {
		return c.accountCommand(ctx, args[1:])
	}

	if c.current == nil {
		return fmt.Errorf("no account selected; use 'account use <account-id>' first")
	}

	switch scope {
	case "group":
		return c.groupCommand(ctx, args[1:])
	case "template":
		return c.templateCommand(ctx, args[1:])
	case "config":
		return c.configCommand(ctx, args[1:])
	case "data":
		return c.dataCommand(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q; type 'help' for a list", scope)
	}
}

func (c *CLI) accountCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: account <use|list> [arguments]")
	}
	switch strings.ToLower(args[0]) {
	case "use":
		if len(args) != 2 {
			return fmt.Errorf("usage: account use <account-id>")
		}
		if err := c.SelectAccount(args[1]); err != nil {
			return err
		}
		fmt.Printf("Using account %s\n", c.current.AccountID())
		return nil
	case "list":
		ids, err := c.sessions.ListAccounts()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No accounts with stored data.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	default:
		return fmt.Errorf("unknown account operation %q", args[0])
	}
}

func (c *CLI) groupCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: group <add|list|tree|rename|toggle|delete> [arguments]")
	}
	gm := c.current.GroupManager

	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: group add <name> [parent-id]")
		}
		var parentID *string
		if len(args) == 3 {
			parentID = &args[2]
		}
		group, err := gm.GroupAdd(ctx, args[1], parentID)
		if err != nil {
			return err
		}
		fmt.Printf("Created group %s (%s)\n", group.Name, group.ID)
		return nil
	case "list":
		var parentID *string
		if len(args) == 2 {
			parentID = &args[1]
		}
		children, err := gm.GroupGetChildren(ctx, parentID)
		if err != nil {
			return err
		}
		for _, g := range children {
			fmt.Printf("%2d. %s (%s)\n", g.Order, g.Name, g.ID)
		}
		return nil
	case "tree":
		groups, err := gm.GroupGetAll(ctx)
		if err != nil {
			return err
		}
		printTree(groups, nil, 0)
		return nil
	case "rename":
		if len(args) != 3 {
			return fmt.Errorf("usage: group rename <group-id> <name>")
		}
		if _, err := gm.GroupUpdate(ctx, args[1], model.GroupPatch{Name: &args[2]}); err != nil {
			return err
		}
		fmt.Println("Renamed.")
		return nil
	case "toggle":
		if len(args) != 2 {
			return fmt.Errorf("usage: group toggle <group-id>")
		}
		group, err := gm.GroupToggleExpanded(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Group %s expanded=%v\n", group.Name, group.Expanded)
		return nil
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: group delete <group-id>...")
		}
		n, err := gm.GroupDeleteBatch(ctx, args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d group(s).\n", n)
		return nil
	default:
		return fmt.Errorf("unknown group operation %q", args[0])
	}
}

func (c *CLI) templateCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: template <add|list|show|move|delete|use|search> [arguments]")
	}
	tm := c.current.TemplateManager

	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 4 {
			return fmt.Errorf("usage: template add <group-id> <type> <label> <content>...")
		}
		content, err := parseContent(model.TemplateType(args[2]), args[4:])
		if err != nil {
			return err
		}
		template, err := tm.TemplateAdd(ctx, args[1], model.TemplateType(args[2]), args[3], content)
		if err != nil {
			return err
		}
		fmt.Printf("Created template %s (%s)\n", template.Label, template.ID)
		return nil
	case "list":
		if len(args) != 2 {
			return fmt.Errorf("usage: template list <group-id>")
		}
		templates, err := tm.TemplateGetByGroup(ctx, args[1])
		if err != nil {
			return err
		}
		for _, t := range templates {
			fmt.Printf("%2d. [%s] %s (%s) used %d times\n", t.Order, t.Type, t.Label, t.ID, t.UsageCount)
		}
		return nil
	case "show":
		if len(args) != 2 {
			return fmt.Errorf("usage: template show <template-id>")
		}
		t, err := tm.TemplateGet(ctx, args[1])
		if err != nil {
			return err
		}
		if t == nil {
			fmt.Println("Template not found.")
			return nil
		}
		printTemplate(t)
		return nil
	case "move":
		if len(args) < 3 {
			return fmt.Errorf("usage: template move <group-id> <template-id>...")
		}
		n, err := tm.TemplateMoveBatch(ctx, args[2:], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Moved %d template(s).\n", n)
		return nil
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: template delete <template-id>...")
		}
		n, err := tm.TemplateDeleteBatch(ctx, args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d template(s).\n", n)
		return nil
	case "use":
		if len(args) != 2 {
			return fmt.Errorf("usage: template use <template-id>")
		}
		if err := tm.TemplateRecordUsage(ctx, args[1]); err != nil {
			return err
		}
		stats, err := tm.TemplateUsageStats(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Usage count is now %d\n", stats.UsageCount)
		return nil
	case "search":
		if len(args) != 2 {
			return fmt.Errorf("usage: template search <keyword>")
		}
		matches, err := c.current.Search(ctx, args[1])
		if err != nil {
			return err
		}
		for _, t := range matches {
			fmt.Printf("[%s] %s (%s)\n", t.Type, t.Label, t.ID)
		}
		fmt.Printf("%d match(es).\n", len(matches))
		return nil
	default:
		return fmt.Errorf("unknown template operation %q", args[0])
	}
}

func (c *CLI) configCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: config <show|sendmode> [arguments]")
	}
	cm := c.current.ConfigManager

	switch strings.ToLower(args[0]) {
	case "show":
		cfg, err := cm.ConfigGet(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Account:   %s\n", cfg.AccountID)
		fmt.Printf("Send mode: %s\n", cfg.SendMode)
		fmt.Printf("Expanded:  %d group(s)\n", len(cfg.ExpandedGroups))
		if cfg.LastSelectedGroupID != nil {
			fmt.Printf("Selected:  %s\n", *cfg.LastSelectedGroupID)
		}
		return nil
	case "sendmode":
		if len(args) != 2 {
			return fmt.Errorf("usage: config sendmode <original|translated>")
		}
		mode := model.SendMode(args[1])
		if _, err := cm.ConfigUpdate(ctx, model.AccountConfigPatch{SendMode: &mode}); err != nil {
			return err
		}
		fmt.Println("Send mode updated.")
		return nil
	default:
		return fmt.Errorf("unknown config operation %q", args[0])
	}
}

func (c *CLI) dataCommand(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: data <export|import> <file> [arguments]")
	}

	switch strings.ToLower(args[0]) {
	case "export":
		opts := data.ExportOptions{Scope: model.ScopeAll}
		if len(args) > 2 {
			opts.Scope = model.ScopeGroup
			opts.GroupIDs = args[2:]
		}
		if err := c.current.ExportToFile(ctx, args[1], opts); err != nil {
			return err
		}
		fmt.Printf("Exported to %s\n", args[1])
		return nil
	case "import":
		merge := len(args) > 2 && args[2] == "--merge"
		result, err := c.current.ImportFromFile(ctx, args[1], data.ImportOptions{Merge: merge})
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d group(s) and %d template(s)", result.GroupsImported, result.TemplatesImported)
		if !result.Conflicts.Empty() {
			fmt.Printf(" (%d group and %d template conflict(s) resolved)",
				len(result.Conflicts.GroupIDs), len(result.Conflicts.TemplateIDs))
		}
		fmt.Println()
		return nil
	default:
		return fmt.Errorf("unknown data operation %q", args[0])
	}
}

// parseContent builds a content payload from trailing command arguments,
// following the per-type shape.
func parseContent(templateType model.TemplateType, args []string) (model.TemplateContent, error) {
	switch templateType {
	case model.TypeText:
		if len(args) != 1 {
			return model.TemplateContent{}, fmt.Errorf("text templates take exactly one content argument")
		}
		return model.TemplateContent{Text: args[0]}, nil
	case model.TypeImage, model.TypeAudio, model.TypeVideo:
		if len(args) != 1 {
			return model.TemplateContent{}, fmt.Errorf("%s templates take exactly one media path argument", templateType)
		}
		return model.TemplateContent{MediaPath: args[0]}, nil
	case model.TypeMixed:
		if len(args) != 2 {
			return model.TemplateContent{}, fmt.Errorf("mixed templates take text and a media path")
		}
		return model.TemplateContent{Text: args[0], MediaPath: args[1]}, nil
	case model.TypeContact:
		if len(args) < 2 || len(args) > 3 {
			return model.TemplateContent{}, fmt.Errorf("contact templates take name, phone and an optional email")
		}
		contact := &model.ContactInfo{Name: args[0], Phone: args[1]}
		if len(args) == 3 {
			contact.Email = args[2]
		}
		return model.TemplateContent{Contact: contact}, nil
	default:
		return model.TemplateContent{}, fmt.Errorf("unknown template type %q", templateType)
	}
}

func printTree(groups []model.Group, parentID *string, depth int) {
	children := make([]model.Group, 0)
	for _, g := range groups {
		if (g.ParentID == nil && parentID == nil) || (g.ParentID != nil && parentID != nil && *g.ParentID == *parentID) {
			children = append(children, g)
		}
	}
	sort.SliceStable(children, func(i, j int) bool { return children[i].Order < children[j].Order })
	for _, g := range children {
		marker := "-"
		if g.Expanded {
			marker = "+"
		}
		fmt.Printf("%s%s %s (%s)\n", strings.Repeat("  ", depth), marker, g.Name, g.ID)
		id := g.ID
		printTree(groups, &id, depth+1)
	}
}

func printTemplate(t *model.Template) {
	fmt.Printf("ID:         %s\n", t.ID)
	fmt.Printf("Group:      %s\n", t.GroupID)
	fmt.Printf("Type:       %s\n", t.Type)
	fmt.Printf("Label:      %s\n", t.Label)
	fmt.Printf("Order:      %d\n", t.Order)
	fmt.Printf("Usage:      %d\n", t.UsageCount)
	if t.LastUsedAt != nil {
		fmt.Printf("Last used:  %s\n", t.LastUsedAt.Format("2006-01-02 15:04:05"))
	}
	switch t.Type {
	case model.TypeText:
		fmt.Printf("Text:       %s\n", t.Content.Text)
	case model.TypeImage, model.TypeAudio, model.TypeVideo:
		fmt.Printf("Media:      %s\n", t.Content.MediaPath)
	case model.TypeMixed:
		fmt.Printf("Text:       %s\n", t.Content.Text)
		fmt.Printf("Media:      %s\n", t.Content.MediaPath)
	case model.TypeContact:
		fmt.Printf("Contact:    %s %s %s\n", t.Content.Contact.Name, t.Content.Contact.Phone, t.Content.Contact.Email)
	}
}
