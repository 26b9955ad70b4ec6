// Package cli implements the interactive administration shell. It is purely
// a consumer of the manager APIs and never touches storage itself.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"quickreply/pkg/data"
	"quickreply/pkg/log"
	"quickreply/pkg/session"
)

// CLI represents the command-line interface.
type CLI struct {
	sessions *session.Manager
	current  *data.DataManager
	rl       *readline.Instance
	logger   *log.Logger
}

// NewCLI creates a new CLI instance over a session manager.
func NewCLI(sessions *session.Manager, rl *readline.Instance, logger *log.Logger) *CLI {
	return &CLI{
		sessions: sessions,
		rl:       rl,
		logger:   logger,
	}
}

// SelectAccount switches the shell to the given account, opening its data
// manager on first use.
func (c *CLI) SelectAccount(accountID string) error {
	dm, err := c.sessions.Account(accountID)
	if err != nil {
		return err
	}
	c.current = dm
	c.UpdatePrompt()
	return nil
}

// UpdatePrompt reflects the selected account in the readline prompt.
func (c *CLI) UpdatePrompt() {
	if c.current == nil {
		c.rl.SetPrompt("> ")
		return
	}
	c.rl.SetPrompt(fmt.Sprintf("%s> ", c.current.AccountID()))
}

// Run reads and executes one command line. It returns io.EOF when the user
// asks to exit.
func (c *CLI) Run() error {
	line, err := c.rl.Readline()
	if err != nil {
		return err
	}

	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	args := parseArgs(line)
	switch strings.ToLower(args[0]) {
	case "exit", "quit":
		return io.EOF
	case "help":
		c.printHelp(args[1:])
		return nil
	}
	return c.executeCommand(args)
}

// parseArgs splits a command line into fields, honoring double quotes so
// labels and content may contain spaces.
func parseArgs(input string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false

	for _, char := range input {
		switch char {
		case '"':
			inQuotes = !inQuotes
		case ' ':
			if !inQuotes {
				if current.Len() > 0 {
					args = append(args, current.String())
					current.Reset()
				}
			} else {
				current.WriteRune(char)
			}
		default:
			current.WriteRune(char)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

// printHelp prints either the general overview or help for one scope.
func (c *CLI) printHelp(args []string) {
	if len(args) == 0 {
		fmt.Println("Command syntax: <scope> <operation> [arguments]")
		fmt.Println("\nAvailable commands:")
		currentScope := ""
		for _, cmd := range commandHelps {
			if cmd.Scope != currentScope {
				fmt.Printf("\n%s:\n", cmd.Scope)
				currentScope = cmd.Scope
			}
			fmt.Printf("  %-10s %-40s %s\n", cmd.Operation, cmd.Syntax, cmd.ShortDesc)
		}
		return
	}
	scope := strings.ToLower(args[0])
	for _, cmd := range commandHelps {
		if cmd.Scope == scope {
			fmt.Printf("%-10s %-40s %s\n", cmd.Operation, cmd.Syntax, cmd.ShortDesc)
		}
	}
}

// CommandHelp describes one shell command for the help output.
type CommandHelp struct {
	Scope     string
	Operation string
	Syntax    string
	ShortDesc string
}

var commandHelps = []CommandHelp{
	{"account", "use", "account use <account-id>", "Select the account to operate on"},
	{"account", "list", "account list", "List accounts with stored data"},
	{"group", "add", "group add <name> [parent-id]", "Create a group, optionally nested"},
	{"group", "list", "group list [parent-id]", "List root groups or a parent's children"},
	{"group", "tree", "group tree", "Print the whole group hierarchy"},
	{"group", "rename", "group rename <group-id> <name>", "Rename a group"},
	{"group", "toggle", "group toggle <group-id>", "Flip a group's expanded flag"},
	{"group", "delete", "group delete <group-id>...", "Delete groups with their subtrees and templates"},
	{"template", "add", "template add <group-id> <type> <label> <content>...", "Create a template (blank label picks the type default)"},
	{"template", "list", "template list <group-id>", "List a group's templates in order"},
	{"template", "show", "template show <template-id>", "Print one template with content and usage"},
	{"template", "move", "template move <group-id> <template-id>...", "Move templates to another group"},
	{"template", "delete", "template delete <template-id>...", "Delete templates"},
	{"template", "use", "template use <template-id>", "Record one usage of a template"},
	{"template", "search", "template search <keyword>", "Search templates by label, text or group name"},
	{"config", "show", "config show", "Print the account configuration"},
	{"config", "sendmode", "config sendmode <original|translated>", "Set the account's send mode"},
	{"data", "export", "data export <file> [group-id...]", "Export the account (or selected subtrees) to a file"},
	{"data", "import", "data import <file> [--merge]", "Import a transfer file, optionally merging"},
}
