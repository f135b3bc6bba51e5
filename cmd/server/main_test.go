package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"lerian-mcp-git/internal/config"
	"lerian-mcp-git/internal/logging"
	"lerian-mcp-git/internal/testutil"
	"lerian-mcp-git/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, modeStdio, opts.mode)
	assert.Empty(t, opts.addr)

	opts, err = parseFlags([]string{"-mode", "http", "-addr", ":7000", "-config", "cfg.yaml"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, options{mode: modeHTTP, addr: ":7000", configPath: "cfg.yaml"}, opts)

	_, err = parseFlags([]string{"-mode", "grpc"}, io.Discard)
	assert.Error(t, err)

	_, err = parseFlags([]string{"-unknown"}, io.Discard)
	assert.Error(t, err)
}

func TestBuildServer_InitialPath(t *testing.T) {
	repo := testutil.NewRepository(t, testutil.Messages("init")...)

	cfg := config.DefaultConfig()
	cfg.Repository.InitialPath = repo
	gs, err := buildServer(context.Background(), cfg, logging.NewNoOpLogger())
	require.NoError(t, err)
	defer func() { _ = gs.Close() }()

	path, ok := gs.Registry().Session().CurrentPath()
	require.True(t, ok)
	assert.Equal(t, repo, path)
}

func TestBuildServer_InvalidInitialPathIsNotFatal(t *testing.T) {
	var logs bytes.Buffer
	cfg := config.DefaultConfig()
	cfg.Repository.InitialPath = t.TempDir()

	gs, err := buildServer(context.Background(), cfg, newLogger(cfg, &logs))
	require.NoError(t, err)
	defer func() { _ = gs.Close() }()

	_, ok := gs.Registry().Session().CurrentPath()
	assert.False(t, ok)
	assert.Contains(t, logs.String(), "Initial repository not selected")
}

func TestBuildServer_CustomVersionFile(t *testing.T) {
	repo := testutil.NewRepository(t)
	cfg := config.DefaultConfig()
	cfg.Repository.InitialPath = repo
	cfg.Repository.VersionFile = "VERSION"
	cfg.Repository.SeedVersion = "2.0.0"

	gs, err := buildServer(context.Background(), cfg, logging.NewNoOpLogger())
	require.NoError(t, err)
	defer func() { _ = gs.Close() }()

	res := gs.Call(context.Background(), tools.OpBumpPatchVersion, nil)
	assert.Equal(t, "Version bumped to 2.0.1", res.String())
}

func TestRun_REPLMode(t *testing.T) {
	repo := testutil.NewRepository(t, testutil.Messages("init")...)
	t.Setenv("MCP_GIT_REPOSITORY_PATH", repo)
	t.Setenv("MCP_GIT_LOG_FORMAT", "text")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-mode", "repl"}, strings.NewReader("version\nbump\nexit\n"), &stdout, &stderr)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "version.txt not found.")
	assert.Contains(t, stdout.String(), "Version bumped to 1.0.1")
}

func TestRun_HTTPModeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{"-mode", "http", "-addr", "127.0.0.1:0"}, strings.NewReader(""), &stdout, &stderr)
	assert.NoError(t, err)
	assert.Contains(t, stderr.String(), "MCP git server listening")
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("MCP_GIT_LOG_FORMAT", "xml")

	err := run(context.Background(), []string{"-mode", "repl"}, strings.NewReader(""), io.Discard, io.Discard)
	assert.Error(t, err)
}

func TestRun_InvalidMode(t *testing.T) {
	err := run(context.Background(), []string{"-mode", "carrier-pigeon"}, strings.NewReader(""), io.Discard, io.Discard)
	assert.Error(t, err)
}
