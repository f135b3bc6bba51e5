// Package repl provides an interactive console over the git operations.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"lerian-mcp-git/internal/logging"
	"lerian-mcp-git/internal/mcp"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

// errExit ends the loop without an error
var errExit = errors.New("exit requested")

// Command represents a command executed in the session
type Command struct {
	Input     string
	Output    string
	Failed    bool
	Timestamp time.Time
}

// REPL represents the Read-Eval-Print Loop interface
type REPL struct {
	id          string
	server      *mcp.GitServer
	logger      logging.Logger
	input       io.Reader
	output      io.Writer
	colorOutput bool
	promptColor *color.Color
	outputColor *color.Color
	errorColor  *color.Color
	infoColor   *color.Color

	mu      sync.RWMutex
	history []Command
}

// NewREPL creates a console reading stdin and writing stdout
func NewREPL(server *mcp.GitServer, logger logging.Logger) *REPL {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &REPL{
		id:          uuid.New().String(),
		server:      server,
		logger:      logger.WithComponent("repl"),
		input:       os.Stdin,
		output:      os.Stdout,
		colorOutput: true,
		promptColor: color.New(color.FgCyan, color.Bold),
		outputColor: color.New(color.FgGreen),
		errorColor:  color.New(color.FgRed),
		infoColor:   color.New(color.FgYellow),
	}
}

// SetIO replaces the console streams
func (r *REPL) SetIO(in io.Reader, out io.Writer) {
	r.input = in
	r.output = out
}

// SetColorOutput toggles colored output
func (r *REPL) SetColorOutput(enabled bool) {
	r.colorOutput = enabled
}

// Start runs the loop until exit, end of input or ctx cancellation
func (r *REPL) Start(ctx context.Context) error {
	ctx = mcp.WithTransport(ctx, mcp.TransportREPL)
	r.logger.Info("REPL session started", "session_id", r.id)
	r.printWelcome()

	scanner := bufio.NewScanner(r.input)
	for {
		if err := ctx.Err(); err != nil {
			return r.shutdown()
		}

		r.showPrompt()
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("input error: %w", err)
			}
			return r.shutdown()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if err := r.processCommand(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				return r.shutdown()
			}
			r.printError(fmt.Sprintf("Error: %v", err))
		}
	}
}

// History returns a copy of the executed commands
func (r *REPL) History() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.history...)
}

func (r *REPL) addToHistory(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, cmd)
}

func (r *REPL) printWelcome() {
	r.printInfo("Git version assistant. Type 'help' for available commands.")
}

func (r *REPL) showPrompt() {
	if r.colorOutput {
		_, _ = r.promptColor.Fprint(r.output, "git> ")
		return
	}
	_, _ = fmt.Fprint(r.output, "git> ")
}

func (r *REPL) printOutput(output string) {
	if output == "" {
		return
	}
	if r.colorOutput {
		_, _ = r.outputColor.Fprintln(r.output, output)
	} else {
		_, _ = fmt.Fprintln(r.output, output)
	}
}

func (r *REPL) printError(message string) {
	if r.colorOutput {
		_, _ = r.errorColor.Fprintln(r.output, message)
	} else {
		_, _ = fmt.Fprintln(r.output, message)
	}
}

func (r *REPL) printInfo(message string) {
	if r.colorOutput {
		_, _ = r.infoColor.Fprintln(r.output, message)
	} else {
		_, _ = fmt.Fprintln(r.output, message)
	}
}

func (r *REPL) shutdown() error {
	r.printInfo("Goodbye.")
	r.logger.Info("REPL session ended", "session_id", r.id, "commands", len(r.History()))
	return nil
}
