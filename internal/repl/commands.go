package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lerian-mcp-git/internal/audit"
	"lerian-mcp-git/internal/tools"

	"github.com/olekukonko/tablewriter"
)

const helpText = `Available commands:
  setrepo <path>           Select the repository to work on
  commits <n>              Show the latest n commits
  version                  Show the current version from version.txt
  bump                     Increment the patch version
  tools                    List operations and their arguments
  call <operation> [arg]   Invoke an operation by name
  history                  Show commands entered in this session
  audit [n]                Show the latest n recorded operation calls (default 10)
  help                     Show this help
  exit                     Leave the console`

// processCommand runs one input line
func (r *REPL) processCommand(ctx context.Context, input string) error {
	name, rest := splitCommand(input)

	switch strings.ToLower(name) {
	case "exit", "quit":
		return errExit
	case "help":
		r.printInfo(helpText)
		return nil
	case "history":
		r.printHistory()
		return nil
	case "tools":
		r.printTools()
		return nil
	case "audit":
		return r.printAudit(ctx, rest)
	case "setrepo":
		r.invoke(ctx, input, tools.OpSetRepositoryPath, map[string]string{tools.ArgPath: rest})
	case "commits":
		r.invoke(ctx, input, tools.OpGetLatestCommits, map[string]string{tools.ArgNumberOfCommits: rest})
	case "version":
		r.invoke(ctx, input, tools.OpGetLatestVersion, nil)
	case "bump":
		r.invoke(ctx, input, tools.OpBumpPatchVersion, nil)
	case "call":
		return r.handleCall(ctx, input, rest)
	default:
		return fmt.Errorf("unknown command %q, type 'help' for available commands", name)
	}
	return nil
}

// handleCall maps "call <operation> [arg]" onto the operation's single argument
func (r *REPL) handleCall(ctx context.Context, input, rest string) error {
	op, arg := splitCommand(rest)
	if op == "" {
		return fmt.Errorf("usage: call <operation> [arg]")
	}

	descriptor, ok := tools.Lookup(op)
	if !ok {
		return fmt.Errorf("unknown operation %q", op)
	}

	args := map[string]string{}
	if len(descriptor.Arguments) > 0 {
		args[descriptor.Arguments[0].Name] = arg
	}
	r.invoke(ctx, input, descriptor.Name, args)
	return nil
}

func (r *REPL) invoke(ctx context.Context, input, operation string, args map[string]string) {
	result := r.server.Call(ctx, operation, args)

	r.addToHistory(Command{
		Input:     input,
		Output:    result.String(),
		Failed:    !result.OK(),
		Timestamp: time.Now(),
	})

	if result.OK() {
		r.printOutput(result.String())
		return
	}
	r.printError(result.String())
}

func (r *REPL) printTools() {
	table := tablewriter.NewWriter(r.output)
	table.Header("Operation", "Writes", "Description")
	for _, d := range tools.Describe() {
		names := make([]string, 0, len(d.Arguments))
		for _, a := range d.Arguments {
			names = append(names, a.Name)
		}
		writes := "no"
		if d.Writes {
			writes = "yes"
		}
		_ = table.Append([]string{fmt.Sprintf("%s(%s)", d.Name, strings.Join(names, ", ")), writes, d.Description})
	}
	if err := table.Render(); err != nil {
		r.printError(fmt.Sprintf("Error: %v", err))
	}
}

func (r *REPL) printHistory() {
	for i, cmd := range r.History() {
		status := "ok"
		if cmd.Failed {
			status = "failed"
		}
		r.printInfo(fmt.Sprintf("%3d  %s  [%s]", i+1, cmd.Input, status))
	}
}

const defaultAuditRows = 10

// printAudit shows the latest recorded calls as a table
func (r *REPL) printAudit(ctx context.Context, arg string) error {
	limit := defaultAuditRows
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return fmt.Errorf("usage: audit [n]")
		}
		limit = n
	}

	events, err := r.server.AuditEvents(ctx, audit.SearchCriteria{Limit: limit})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		r.printInfo("No recorded calls.")
		return nil
	}

	table := tablewriter.NewWriter(r.output)
	table.Header("Time", "Operation", "Result", "Transport")
	for _, e := range events {
		outcome := "ok"
		if !e.Success {
			outcome = e.Code
		}
		_ = table.Append([]string{e.Timestamp.Local().Format(tools.CommitTimeLayout), e.Operation, outcome, e.Transport})
	}
	return table.Render()
}

// splitCommand returns the first word and the trimmed remainder
func splitCommand(input string) (string, string) {
	input = strings.TrimSpace(input)
	idx := strings.IndexAny(input, " \t")
	if idx < 0 {
		return input, ""
	}
	return input[:idx], strings.TrimSpace(input[idx+1:])
}
