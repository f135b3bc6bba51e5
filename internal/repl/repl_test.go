package repl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"lerian-mcp-git/internal/audit"
	"lerian-mcp-git/internal/config"
	"lerian-mcp-git/internal/git"
	"lerian-mcp-git/internal/mcp"
	"lerian-mcp-git/internal/session"
	"lerian-mcp-git/internal/testutil"
	"lerian-mcp-git/internal/tools"
	"lerian-mcp-git/internal/version"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScript(t *testing.T, lines ...string) (string, *REPL) {
	t.Helper()
	return runScriptWithRecorder(t, audit.NoopRecorder{}, lines...)
}

func runScriptWithRecorder(t *testing.T, recorder audit.Recorder, lines ...string) (string, *REPL) {
	t.Helper()
	registry := tools.NewRegistry(session.New(), git.NewGoGitClient(), version.NewStore("", ""), nil)
	gs, err := mcp.NewGitServer(config.DefaultConfig(), registry, recorder, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	r := NewREPL(gs, nil)
	r.SetIO(strings.NewReader(strings.Join(lines, "\n")+"\n"), &out)
	r.SetColorOutput(false)

	require.NoError(t, r.Start(context.Background()))
	return out.String(), r
}

func TestREPL_Workflow(t *testing.T) {
	repo := testutil.NewRepository(t,
		testutil.Commit{Message: "first", Author: "Alice"},
		testutil.Commit{Message: "second", Author: "Bob"},
	)

	out, r := runScript(t,
		"commits 1",
		"setrepo "+repo,
		"commits 1",
		"version",
		"bump",
		"version",
		"call BumpPatchVersion",
		"exit",
		"bump",
	)

	assert.Contains(t, out, "Repository path not set. Use 'setrepo <path>'.")
	assert.Contains(t, out, "Repository path confirmed as: "+repo)
	assert.Contains(t, out, "- second (by Bob on ")
	assert.NotContains(t, out, "- first (by Alice")
	assert.Contains(t, out, "version.txt not found.")
	assert.Contains(t, out, "Version bumped to 1.0.1")
	assert.Contains(t, out, "1.0.1\n")
	assert.Contains(t, out, "Version bumped to 1.0.2")
	assert.NotContains(t, out, "Version bumped to 1.0.3", "commands after exit are not run")
	assert.Contains(t, out, "Goodbye.")

	history := r.History()
	require.Len(t, history, 7)
	assert.True(t, history[0].Failed)
	assert.False(t, history[1].Failed)
	assert.Equal(t, "call BumpPatchVersion", history[6].Input)
}

func TestREPL_PathWithSpaces(t *testing.T) {
	out, _ := runScript(t, "setrepo /no/such dir/here")
	assert.Contains(t, out, "Invalid or non-Git directory: /no/such dir/here")
}

func TestREPL_InfoCommands(t *testing.T) {
	out, _ := runScript(t, "help", "tools", "history", "")

	assert.Contains(t, out, "setrepo <path>")
	assert.Contains(t, out, "SetRepositoryPath(path)")
	assert.Contains(t, out, "GetLatestCommits(numberOfCommits)")
	assert.Contains(t, out, "BumpPatchVersion()")
}

func TestREPL_Errors(t *testing.T) {
	out, r := runScript(t, "frobnicate", "call", "call Nope x", "commits abc")

	assert.Contains(t, out, `Error: unknown command "frobnicate"`)
	assert.Contains(t, out, "Error: usage: call <operation> [arg]")
	assert.Contains(t, out, `Error: unknown operation "Nope"`)
	assert.Contains(t, out, "Repository path not set.")
	assert.Len(t, r.History(), 1)
}

func TestREPL_CancelledContext(t *testing.T) {
	registry := tools.NewRegistry(session.New(), git.NewGoGitClient(), version.NewStore("", ""), nil)
	gs, err := mcp.NewGitServer(nil, registry, nil, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	r := NewREPL(gs, nil)
	r.SetIO(strings.NewReader("bump\n"), &out)
	r.SetColorOutput(false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Start(ctx))
	assert.Empty(t, r.History())
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		input, name, rest string
	}{
		{"bump", "bump", ""},
		{"setrepo  /a b ", "setrepo", "/a b"},
		{"commits\t5", "commits", "5"},
		{"", "", ""},
	}
	for _, tt := range tests {
		name, rest := splitCommand(tt.input)
		assert.Equal(t, tt.name, name, tt.input)
		assert.Equal(t, tt.rest, rest, tt.input)
	}
}

func TestREPL_Audit(t *testing.T) {
	recorder, err := audit.NewFileRecorder(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = recorder.Close() }()

	repo := testutil.NewRepository(t, testutil.Messages("init")...)
	out, _ := runScriptWithRecorder(t, recorder, "audit", "version", "setrepo "+repo, "audit 5", "audit x")

	assert.Contains(t, out, "No recorded calls.")
	assert.Contains(t, out, "GetLatestVersion")
	assert.Contains(t, out, "NO_REPOSITORY_SELECTED")
	assert.Contains(t, out, "SetRepositoryPath")
	assert.Contains(t, out, "repl")
	assert.Contains(t, out, "Error: usage: audit [n]")
}

func TestREPL_Audit_Disabled(t *testing.T) {
	out, _ := runScript(t, "audit")
	assert.Contains(t, out, "audit search is not available")
}
