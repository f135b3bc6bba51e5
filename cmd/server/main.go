// server is the MCP git server binary. It exposes repository inspection and
// patch-version bumping over stdio, HTTP/WebSocket or an interactive console.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lerian-mcp-git/internal/api"
	"lerian-mcp-git/internal/audit"
	"lerian-mcp-git/internal/config"
	"lerian-mcp-git/internal/git"
	"lerian-mcp-git/internal/logging"
	"lerian-mcp-git/internal/mcp"
	"lerian-mcp-git/internal/repl"
	"lerian-mcp-git/internal/session"
	"lerian-mcp-git/internal/tools"
	"lerian-mcp-git/internal/version"

	"github.com/mattn/go-isatty"
)

// Server modes
const (
	modeStdio = "stdio"
	modeHTTP  = "http"
	modeREPL  = "repl"
)

type options struct {
	mode       string
	addr       string
	configPath string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		log.Printf("server failed: %v", err)
		cancel()
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.mode, "mode", modeStdio, "Server mode: stdio, http or repl")
	fs.StringVar(&opts.addr, "addr", "", "HTTP listen address (mode=http), defaults to the configured host:port")
	fs.StringVar(&opts.configPath, "config", "", "Optional YAML config file")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	switch opts.mode {
	case modeStdio, modeHTTP, modeREPL:
	default:
		return opts, fmt.Errorf("invalid mode %q, use stdio, http or repl", opts.mode)
	}
	return opts, nil
}

func newLogger(cfg *config.Config, out io.Writer) logging.Logger {
	return logging.New(logging.Options{
		Level:  logging.ParseLogLevel(cfg.Logging.Level),
		JSON:   cfg.Logging.Format != "text",
		Color:  cfg.Logging.Color,
		Output: out,
	})
}

// buildServer wires the session, registry, audit recorder and MCP server
func buildServer(ctx context.Context, cfg *config.Config, logger logging.Logger) (*mcp.GitServer, error) {
	recorder, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit recorder: %w", err)
	}

	registry := tools.NewRegistry(
		session.New(),
		git.NewGoGitClient(),
		version.NewStore(cfg.Repository.VersionFile, cfg.Repository.SeedVersion),
		logger,
	)

	gs, err := mcp.NewGitServer(cfg, registry, recorder, logger)
	if err != nil {
		_ = recorder.Close()
		return nil, err
	}

	if cfg.Repository.InitialPath != "" {
		result := gs.Call(ctx, tools.OpSetRepositoryPath, map[string]string{tools.ArgPath: cfg.Repository.InitialPath})
		if !result.OK() {
			logger.Warn("Initial repository not selected", "path", cfg.Repository.InitialPath, "reason", result.String())
		}
	}

	return gs, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg, stderr)
	logging.SetDefaultLogger(logger)

	gs, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := gs.Close(); err != nil {
			logger.Error("Error during shutdown", "error", err)
		}
	}()

	switch opts.mode {
	case modeHTTP:
		addr := opts.addr
		if addr == "" {
			addr = cfg.Address()
		}
		return serveHTTP(ctx, cfg, api.NewRouter(cfg, gs, logger).Handler(), addr, logger)

	case modeREPL:
		console := repl.NewREPL(gs, logger)
		console.SetIO(stdin, stdout)
		console.SetColorOutput(cfg.Logging.Color || isTerminal(stdout))
		return console.Start(ctx)

	default:
		logger.Info("Starting MCP git server in stdio mode", "name", cfg.Server.Name, "version", cfg.Server.Version)
		if err := gs.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	}
}

// serveHTTP runs handler on addr until ctx is cancelled, then shuts down gracefully
func serveHTTP(ctx context.Context, cfg *config.Config, handler http.Handler, addr string, logger logging.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("MCP git server listening", "addr", addr,
		"mcp", "/mcp", "websocket", "/ws", "health", "/health", "api", "/api/v1")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// parent context is already cancelled
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server")
	return httpServer.Shutdown(shutdownCtx) //nolint:contextcheck // fresh context needed after cancellation
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
