package x402mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/payincom/402ok-mcp/logger"
	"github.com/payincom/402ok-mcp/metrics"
)

// Server ties the tool registry, the facilitator bindings and the payment
// orchestration together and exposes them over MCP. Construct with
// NewServer, register tools, then mount SSEHandler or embed MCPServer.
type Server struct {
	name    string
	version string
	payTo   string
	baseURL string

	registry     *Registry
	facilitators map[string]FacilitatorClient

	log     logger.Logger
	metrics metrics.Recorder
	hooks   serverHooks
}

// NewServer creates a server. Serving paid tools additionally requires
// WithPayTo and one WithFacilitator binding per priced network.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		name:         "402ok-mcp",
		version:      "dev",
		registry:     NewRegistry(),
		facilitators: make(map[string]FacilitatorClient),
		log:          logger.NoopLogger{},
		metrics:      metrics.NoopRecorder{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register adds a tool to the server. A paid tool cannot be registered
// before a payment recipient is configured.
func (s *Server) Register(tool *Tool) error {
	if tool != nil && len(tool.Payments) > 0 && s.payTo == "" {
		return fmt.Errorf("tool %s: paid tool requires a payment recipient, use WithPayTo", tool.Name)
	}
	return s.registry.Register(tool)
}

// Registry returns the server's tool table.
func (s *Server) Registry() *Registry {
	return s.registry
}

// OnBeforeExecution adds a hook that runs after verification and before the
// tool handler. Returns the server for chaining.
func (s *Server) OnBeforeExecution(hook BeforeExecutionHook) *Server {
	s.hooks.beforeExecution = append(s.hooks.beforeExecution, hook)
	return s
}

// OnAfterExecution adds a hook that runs after the tool handler returns.
func (s *Server) OnAfterExecution(hook AfterExecutionHook) *Server {
	s.hooks.afterExecution = append(s.hooks.afterExecution, hook)
	return s
}

// OnAfterSettlement adds a hook that runs after a successful settlement.
func (s *Server) OnAfterSettlement(hook AfterSettlementHook) *Server {
	s.hooks.afterSettlement = append(s.hooks.afterSettlement, hook)
	return s
}

// MCPServer builds the MCP protocol server for the current tool table. Call
// after all tools are registered; later registrations are not picked up.
func (s *Server) MCPServer() *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    s.name,
		Version: s.version,
	}, nil)

	for _, tool := range s.registry.Tools() {
		srv.AddTool(sdkTool(tool), s.sdkHandler(tool.Name))
	}

	return srv
}

// SSEHandler returns an HTTP handler speaking the MCP SSE transport. Mount
// it at both /sse and /messages.
func (s *Server) SSEHandler() http.Handler {
	mcpServer := s.MCPServer()
	return mcpsdk.NewSSEHandler(func(req *http.Request) *mcpsdk.Server {
		return mcpServer
	}, &mcpsdk.SSEOptions{})
}

func sdkTool(tool *Tool) *mcpsdk.Tool {
	schema := tool.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type": "object"}`)
	}
	return &mcpsdk.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: schema,
	}
}

// sdkHandler adapts one registered tool to the protocol server. Payment
// lifecycle errors come back as error-flagged results; transport faults
// (unknown tool, invalid arguments) surface as JSON-RPC errors.
func (s *Server) sdkHandler(toolName string) func(context.Context, *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := make(map[string]interface{})
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, NewPaymentError(ErrCodeInvalidParameters,
					fmt.Sprintf("failed to unmarshal arguments: %v", err), nil)
			}
		}

		var meta map[string]interface{}
		if req.Params.Meta != nil {
			meta = req.Params.Meta.GetMeta()
		}

		result, err := s.Dispatch(ctx, ToolCall{
			Name:      toolName,
			Arguments: args,
			Meta:      meta,
		})
		if err != nil {
			return nil, err
		}

		return toCallToolResult(result), nil
	}
}

func toCallToolResult(result *ToolResult) *mcpsdk.CallToolResult {
	content := make([]mcpsdk.Content, 0, len(result.Content))
	for _, item := range result.Content {
		switch item.Type {
		case ContentTypeImage:
			content = append(content, &mcpsdk.ImageContent{
				Data:     item.Data,
				MIMEType: item.MimeType,
			})
		case ContentTypeResource:
			content = append(content, &mcpsdk.EmbeddedResource{
				Resource: &mcpsdk.ResourceContents{
					URI:      item.URI,
					MIMEType: item.MimeType,
					Text:     item.Text,
					Blob:     item.Data,
				},
			})
		default:
			content = append(content, &mcpsdk.TextContent{Text: item.Text})
		}
	}

	callResult := &mcpsdk.CallToolResult{
		Content: content,
		IsError: result.IsError,
	}

	if result.StructuredContent != nil {
		callResult.StructuredContent = result.StructuredContent
	}

	if result.Meta != nil {
		metaMap := make(mcpsdk.Meta, len(result.Meta))
		for k, v := range result.Meta {
			metaMap[k] = v
		}
		callResult.Meta = metaMap
	}

	return callResult
}
