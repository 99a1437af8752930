package x402mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/xeipuuv/gojsonschema"
)

// Tool is a dispatchable unit of work. A tool with no Payments is free and
// executes without any payment handling. A tool with Payments demands a
// verified payment on one of the listed networks before its handler runs.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     ToolHandler
	Payments    []PaymentOption
}

// PaymentOptionFor returns the payment option matching network, if any.
func (t *Tool) PaymentOptionFor(network string) (PaymentOption, bool) {
	for _, opt := range t.Payments {
		if opt.Network == network {
			return opt, true
		}
	}
	return PaymentOption{}, false
}

type registeredTool struct {
	tool   *Tool
	schema *gojsonschema.Schema
}

// Registry holds the tool table. Tools are registered during startup and the
// table is read concurrently by dispatches afterwards. Input schemas are
// compiled once at registration so validation on the hot path is cheap.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*registeredTool),
	}
}

// Register adds a tool to the registry. It rejects duplicate tool names,
// duplicate networks within a tool's payment options, unparseable prices, and
// input schemas that fail to compile.
func (r *Registry) Register(tool *Tool) error {
	if tool == nil {
		return fmt.Errorf("tool must not be nil")
	}
	if tool.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s: handler must not be nil", tool.Name)
	}

	seen := make(map[string]bool, len(tool.Payments))
	for _, opt := range tool.Payments {
		if opt.Network == "" {
			return fmt.Errorf("tool %s: payment option network must not be empty", tool.Name)
		}
		if seen[opt.Network] {
			return fmt.Errorf("tool %s: duplicate payment option for network %s", tool.Name, opt.Network)
		}
		seen[opt.Network] = true

		if opt.Asset == "" {
			return fmt.Errorf("tool %s: payment option for %s missing asset", tool.Name, opt.Network)
		}

		price, err := decimal.NewFromString(opt.Price)
		if err != nil {
			return fmt.Errorf("tool %s: invalid price %q for %s: %w", tool.Name, opt.Price, opt.Network, err)
		}
		if price.IsNegative() {
			return fmt.Errorf("tool %s: negative price %q for %s", tool.Name, opt.Price, opt.Network)
		}
	}

	var schema *gojsonschema.Schema
	if len(tool.InputSchema) > 0 {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(tool.InputSchema))
		if err != nil {
			return fmt.Errorf("tool %s: invalid input schema: %w", tool.Name, err)
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}

	r.tools[tool.Name] = &registeredTool{tool: tool, schema: schema}
	r.order = append(r.order, tool.Name)
	return nil
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return entry.tool, true
}

// Tools returns every registered tool in registration order.
func (r *Registry) Tools() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name].tool)
	}
	return tools
}

// ValidateArguments checks args against the tool's compiled input schema.
// Tools registered without a schema accept any arguments.
func (r *Registry) ValidateArguments(name string, args map[string]interface{}) error {
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return NewPaymentError(ErrCodeToolNotFound, fmt.Sprintf("tool %s not found", name), nil)
	}
	if entry.schema == nil {
		return nil
	}

	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := entry.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return NewPaymentError(ErrCodeInvalidParameters, fmt.Sprintf("argument validation failed: %v", err), nil)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}

	return NewPaymentError(ErrCodeInvalidParameters,
		fmt.Sprintf("invalid arguments for tool %s", name),
		map[string]interface{}{"violations": strings.Join(violations, "; ")})
}
