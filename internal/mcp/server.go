package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lerian-mcp-git/internal/audit"
	"lerian-mcp-git/internal/config"
	mcperrors "lerian-mcp-git/internal/errors"
	"lerian-mcp-git/internal/logging"
	"lerian-mcp-git/internal/tools"

	mcp "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/fredcamaral/gomcp-sdk/server"
	"github.com/fredcamaral/gomcp-sdk/transport"
	"github.com/go-viper/mapstructure/v2"
)

type transportKey struct{}

// WithTransport tags ctx with the host surface a call arrived on
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey{}, transport)
}

func transportFrom(ctx context.Context) string {
	if t, ok := ctx.Value(transportKey{}).(string); ok {
		return t
	}
	return TransportStdio
}

// toolArguments is the union of all tool arguments. Numbers and booleans are
// accepted and converted to their string form.
type toolArguments struct {
	Path            *string `mapstructure:"path"`
	NumberOfCommits *string `mapstructure:"numberOfCommits"`
}

// GitServer exposes the operation registry as MCP tools
type GitServer struct {
	registry  *tools.Registry
	recorder  audit.Recorder
	mcpServer *server.Server
	logger    logging.Logger
}

// NewGitServer creates the MCP server and registers one tool per operation
func NewGitServer(cfg *config.Config, registry *tools.Registry, recorder audit.Recorder, logger logging.Logger) (*GitServer, error) {
	if registry == nil {
		return nil, errors.New("operation registry is required")
	}
	if recorder == nil {
		recorder = audit.NoopRecorder{}
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	gs := &GitServer{
		registry: registry,
		recorder: recorder,
		logger:   logger.WithComponent("mcp"),
	}

	mcpServer := mcp.NewServer(cfg.Server.Name, cfg.Server.Version)
	if mcpServer == nil {
		return nil, errors.New("failed to create MCP server instance")
	}
	gs.mcpServer = mcpServer

	gs.registerTools()
	return gs, nil
}

// registerTools registers all operations as MCP tools
func (gs *GitServer) registerTools() {
	descriptors := gs.registry.Describe()
	for _, d := range descriptors {
		properties := make(map[string]interface{}, len(d.Arguments))
		required := make([]string, 0, len(d.Arguments))
		for _, arg := range d.Arguments {
			properties[arg.Name] = mcp.StringParam(arg.Description, true)
			required = append(required, arg.Name)
		}

		name := d.Name
		tool := mcp.NewTool(name, d.Description, mcp.ObjectSchema(d.Description, properties, required))
		gs.mcpServer.AddTool(tool, mcp.ToolHandlerFunc(func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return gs.handleTool(ctx, name, params), nil
		}))
	}
	gs.logger.Info("MCP tools registered", "count", len(descriptors))
}

func (gs *GitServer) handleTool(ctx context.Context, name string, params map[string]interface{}) *protocol.ToolCallResult {
	args, err := DecodeArguments(params)
	var result tools.Result
	if err != nil {
		result = tools.Failure(err)
	} else {
		result = gs.Call(ctx, name, args)
	}

	if !result.OK() {
		return protocol.NewToolCallError(result.String())
	}
	return protocol.NewToolCallResult(protocol.NewContent(result.String()))
}

// Call runs an operation through the registry, logging and auditing it
func (gs *GitServer) Call(ctx context.Context, name string, args map[string]string) tools.Result {
	traceID := logging.GetTraceID(ctx)
	if traceID == "" {
		traceID = logging.GenerateTraceID()
		ctx = logging.WithTraceID(ctx, traceID)
	}
	logger := gs.logger.WithTraceID(traceID)

	start := time.Now()
	result := gs.registry.Invoke(ctx, name, args)
	duration := time.Since(start)

	if result.OK() {
		if tools.IsWriteOperation(name) {
			logger.Info("Operation completed", "operation", name, "duration", duration.String())
		} else {
			logger.Debug("Operation completed", "operation", name, "duration", duration.String())
		}
	} else {
		result.Err = result.Err.WithTraceID(traceID)
		fields := []interface{}{"operation", name, "code", string(result.Code()), "duration", duration.String()}
		switch {
		case mcperrors.IsRepositoryError(result.Err):
			logger.Warn("Operation rejected", append(fields, "category", "repository")...)
		case mcperrors.IsVersionError(result.Err):
			logger.Warn("Operation rejected", append(fields, "category", "version")...)
		case result.Code() == mcperrors.ErrorCodeInternalError:
			logger.Error("Operation failed", fields...)
		default:
			logger.Warn("Operation rejected", fields...)
		}
	}

	repository, _ := gs.registry.Session().CurrentPath()
	event := audit.Event{
		Operation:  name,
		Arguments:  args,
		Repository: repository,
		Success:    result.OK(),
		Code:       string(result.Code()),
		Message:    result.String(),
		Duration:   duration,
		TraceID:    traceID,
		Transport:  transportFrom(ctx),
	}
	if err := gs.recorder.Record(ctx, event); err != nil {
		logger.Error("Failed to record audit event", "operation", name, "error", err)
	}

	return result
}

// DecodeArguments converts raw tool arguments into registry string arguments.
// Unknown keys are ignored.
func DecodeArguments(params map[string]interface{}) (map[string]string, error) {
	var decoded toolArguments
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &decoded,
	})
	if err != nil {
		return nil, mcperrors.NewInternalError("Failed to build argument decoder", err)
	}
	if err := decoder.Decode(params); err != nil {
		return nil, mcperrors.NewStandardError(mcperrors.ErrorCodeInvalidArgument,
			fmt.Sprintf("Invalid tool arguments: %v", err), nil)
	}

	args := make(map[string]string, 2)
	if decoded.Path != nil {
		args[tools.ArgPath] = *decoded.Path
	}
	if decoded.NumberOfCommits != nil {
		args[tools.ArgNumberOfCommits] = *decoded.NumberOfCommits
	}
	return args, nil
}

// AuditEvents reads recorded calls back, newest first. It returns
// audit.ErrSearchUnsupported when auditing is disabled or write-only.
func (gs *GitServer) AuditEvents(ctx context.Context, criteria audit.SearchCriteria) ([]audit.Event, error) {
	return audit.Search(ctx, gs.recorder, criteria)
}

// Registry returns the operation registry behind the tools
func (gs *GitServer) Registry() *tools.Registry {
	return gs.registry
}

// GetMCPServer returns the underlying MCP server
func (gs *GitServer) GetMCPServer() *server.Server {
	return gs.mcpServer
}

// HandleRequest dispatches one JSON-RPC request
func (gs *GitServer) HandleRequest(ctx context.Context, req *protocol.JSONRPCRequest) *protocol.JSONRPCResponse {
	return gs.mcpServer.HandleRequest(ctx, req)
}

// Start serves MCP over stdin/stdout until ctx is cancelled
func (gs *GitServer) Start(ctx context.Context) error {
	gs.logger.Info("Starting MCP git server on stdio")
	gs.mcpServer.SetTransport(transport.NewStdioTransport())
	return gs.mcpServer.Start(WithTransport(ctx, TransportStdio))
}

// Close releases the audit recorder
func (gs *GitServer) Close() error {
	if err := gs.recorder.Close(); err != nil {
		return fmt.Errorf("failed to close audit recorder: %w", err)
	}
	return nil
}
