package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"lerian-mcp-git/internal/audit"
	"lerian-mcp-git/internal/config"
	mcperrors "lerian-mcp-git/internal/errors"
	"lerian-mcp-git/internal/git"
	"lerian-mcp-git/internal/session"
	"lerian-mcp-git/internal/testutil"
	"lerian-mcp-git/internal/tools"
	"lerian-mcp-git/internal/version"

	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRecorder struct {
	events []audit.Event
	err    error
	closed bool
}

func (m *memoryRecorder) Record(_ context.Context, e audit.Event) error {
	m.events = append(m.events, e)
	return m.err
}

func (m *memoryRecorder) Close() error {
	m.closed = true
	return nil
}

func newTestServer(t *testing.T) (*GitServer, *memoryRecorder) {
	t.Helper()
	registry := tools.NewRegistry(session.New(), git.NewGoGitClient(), version.NewStore("", ""), nil)
	recorder := &memoryRecorder{}
	gs, err := NewGitServer(config.DefaultConfig(), registry, recorder, nil)
	require.NoError(t, err)
	return gs, recorder
}

func callTool(t *testing.T, gs *GitServer, name string, args map[string]interface{}) *protocol.ToolCallResult {
	t.Helper()
	resp := gs.HandleRequest(context.Background(), &protocol.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  protocol.ToolCallRequest{Name: name, Arguments: args},
	})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(*protocol.ToolCallResult)
	require.True(t, ok, "unexpected result type %T", resp.Result)
	require.Len(t, result.Content, 1)
	return result
}

func TestNewGitServer(t *testing.T) {
	_, err := NewGitServer(nil, nil, nil, nil)
	assert.Error(t, err)

	gs, _ := newTestServer(t)
	assert.NotNil(t, gs.GetMCPServer())
	assert.NotNil(t, gs.Registry())
}

func TestGitServer_ToolsList(t *testing.T) {
	gs, _ := newTestServer(t)

	resp := gs.HandleRequest(context.Background(), &protocol.JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	list, ok := result["tools"].([]protocol.Tool)
	require.True(t, ok)

	names := make([]string, 0, len(list))
	for _, tool := range list {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		tools.OpBumpPatchVersion, tools.OpGetLatestCommits, tools.OpGetLatestVersion, tools.OpSetRepositoryPath,
	}, names)
}

func TestGitServer_ToolCalls(t *testing.T) {
	gs, recorder := newTestServer(t)
	repo := testutil.NewRepository(t, testutil.Messages("first", "second")...)

	res := callTool(t, gs, tools.OpGetLatestVersion, nil)
	assert.True(t, res.IsError)
	assert.Equal(t, "Repository path not set.", res.Content[0].Text)

	res = callTool(t, gs, tools.OpSetRepositoryPath, map[string]interface{}{"path": repo})
	assert.False(t, res.IsError)
	assert.Equal(t, "Repository path confirmed as: "+repo, res.Content[0].Text)

	// numeric arguments arrive as JSON numbers from some clients
	res = callTool(t, gs, tools.OpGetLatestCommits, map[string]interface{}{"numberOfCommits": float64(1)})
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "- second (by Test Author on ")

	res = callTool(t, gs, tools.OpGetLatestCommits, map[string]interface{}{"numberOfCommits": "abc"})
	assert.True(t, res.IsError)
	assert.Equal(t, "Invalid number format.", res.Content[0].Text)

	res = callTool(t, gs, tools.OpBumpPatchVersion, map[string]interface{}{})
	assert.Equal(t, "Version bumped to 1.0.1", res.Content[0].Text)

	data, err := os.ReadFile(filepath.Join(repo, version.DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", string(data))

	require.Len(t, recorder.events, 5)
	assert.False(t, recorder.events[0].Success)
	assert.Equal(t, string(mcperrors.ErrorCodeNoRepositorySelected), recorder.events[0].Code)
	assert.Equal(t, repo, recorder.events[1].Repository)
	assert.Equal(t, "1", recorder.events[2].Arguments["numberOfCommits"])
	assert.Equal(t, TransportStdio, recorder.events[4].Transport)
	for _, e := range recorder.events {
		assert.NotEmpty(t, e.TraceID)
	}
}

func TestGitServer_InvalidArguments(t *testing.T) {
	gs, _ := newTestServer(t)

	res := callTool(t, gs, tools.OpSetRepositoryPath, map[string]interface{}{"path": map[string]interface{}{"nested": true}})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "Invalid tool arguments")
}

func TestGitServer_UnknownTool(t *testing.T) {
	gs, _ := newTestServer(t)

	resp := gs.HandleRequest(context.Background(), &protocol.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  protocol.ToolCallRequest{Name: "DeleteEverything"},
	})
	require.NotNil(t, resp.Error)
}

func TestGitServer_Call(t *testing.T) {
	gs, recorder := newTestServer(t)
	recorder.err = errors.New("sink unavailable")

	ctx := WithTransport(context.Background(), TransportREPL)
	res := gs.Call(ctx, tools.OpGetLatestCommits, map[string]string{"numberOfCommits": "3"})
	assert.Equal(t, mcperrors.ErrorCodeNoRepositorySelected, res.Code())
	assert.NotEmpty(t, res.Err.ErrorInfo.TraceID)

	require.Len(t, recorder.events, 1, "audit failures do not change the result")
	assert.Equal(t, TransportREPL, recorder.events[0].Transport)
}

func TestDecodeArguments(t *testing.T) {
	args, err := DecodeArguments(map[string]interface{}{"path": "/r", "numberOfCommits": 7, "extra": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"path": "/r", "numberOfCommits": "7"}, args)

	args, err = DecodeArguments(nil)
	require.NoError(t, err)
	assert.Empty(t, args)
}

func TestGitServer_Close(t *testing.T) {
	gs, recorder := newTestServer(t)
	require.NoError(t, gs.Close())
	assert.True(t, recorder.closed)
}
