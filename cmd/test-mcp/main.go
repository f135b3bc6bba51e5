// test-mcp drives an in-process git server through the MCP JSON-RPC surface
// and reports whether each protocol step behaves.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"lerian-mcp-git/internal/audit"
	"lerian-mcp-git/internal/config"
	"lerian-mcp-git/internal/git"
	"lerian-mcp-git/internal/logging"
	"lerian-mcp-git/internal/mcp"
	"lerian-mcp-git/internal/session"
	"lerian-mcp-git/internal/tools"
	"lerian-mcp-git/internal/version"

	"github.com/fatih/color"
	"github.com/fredcamaral/gomcp-sdk/protocol"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, failMark("error:"), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("test-mcp", flag.ContinueOnError)
	fs.SetOutput(out)
	repo := fs.String("repo", ".", "Repository to select during the check")
	commits := fs.String("commits", "5", "Commit count passed to GetLatestCommits")
	bump := fs.Bool("bump", false, "Also call BumpPatchVersion (writes the version file)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	registry := tools.NewRegistry(
		session.New(),
		git.NewGoGitClient(),
		version.NewStore(cfg.Repository.VersionFile, cfg.Repository.SeedVersion),
		logging.NewNoOpLogger(),
	)
	gs, err := mcp.NewGitServer(cfg, registry, audit.NoopRecorder{}, logging.NewNoOpLogger())
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer func() { _ = gs.Close() }()

	c := &checker{ctx: ctx, gs: gs, out: out}

	fmt.Fprintln(out, "MCP protocol check")
	c.request("initialize", protocol.InitializeRequest{
		ProtocolVersion: protocol.Version,
		Capabilities:    protocol.ClientCapabilities{Experimental: map[string]interface{}{}},
		ClientInfo:      protocol.ClientInfo{Name: "test-mcp", Version: "1.0.0"},
	})

	if resp := c.request("tools/list", nil); resp != nil {
		if result, ok := resp.Result.(map[string]interface{}); ok {
			if list, ok := result["tools"].([]protocol.Tool); ok {
				for i, tool := range list {
					fmt.Fprintf(out, "  %d. %s: %s\n", i+1, tool.Name, tool.Description)
				}
			}
		}
	}

	c.call(tools.OpSetRepositoryPath, map[string]interface{}{tools.ArgPath: *repo})
	c.call(tools.OpGetLatestCommits, map[string]interface{}{tools.ArgNumberOfCommits: *commits})
	c.call(tools.OpGetLatestVersion, map[string]interface{}{})
	if *bump {
		c.call(tools.OpBumpPatchVersion, map[string]interface{}{})
	}

	if c.failures > 0 {
		return fmt.Errorf("%d of %d steps failed", c.failures, c.steps)
	}
	fmt.Fprintf(out, "%s all %d steps passed\n", okMark("ok"), c.steps)
	return nil
}

type checker struct {
	ctx      context.Context
	gs       *mcp.GitServer
	out      io.Writer
	nextID   int
	steps    int
	failures int
}

// request sends one JSON-RPC request and returns the response when it carried no error
func (c *checker) request(method string, params interface{}) *protocol.JSONRPCResponse {
	c.nextID++
	c.steps++

	resp := c.gs.HandleRequest(c.ctx, &protocol.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID,
		Method:  method,
		Params:  params,
	})
	if resp == nil || resp.Error != nil {
		c.failures++
		detail := "no response"
		if resp != nil {
			detail = resp.Error.Message
		}
		fmt.Fprintf(c.out, "%s %s: %s\n", failMark("FAIL"), method, detail)
		return nil
	}

	fmt.Fprintf(c.out, "%s %s\n", okMark("ok"), method)
	return resp
}

// call invokes a tool. Operation-level failures are reported but are not
// protocol failures: the tool result still reached the client.
func (c *checker) call(name string, arguments map[string]interface{}) {
	resp := c.request("tools/call", protocol.ToolCallRequest{Name: name, Arguments: arguments})
	if resp == nil {
		return
	}
	data, err := json.MarshalIndent(resp.Result, "  ", "  ")
	if err != nil {
		fmt.Fprintf(c.out, "  %s: unprintable result: %v\n", name, err)
		return
	}
	fmt.Fprintf(c.out, "  %s\n", data)
}
