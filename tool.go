package mcpd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ToolHandler executes a tool with the given argument map. The returned value
// is rendered as a single text content item; a returned error marks the call
// result with isError rather than failing the protocol request.
type ToolHandler interface {
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ToolHandlerFunc adapts a plain function into a ToolHandler.
type ToolHandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Execute implements ToolHandler.
func (f ToolHandlerFunc) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Protocol-level execution failures. These are surfaced to the client as
// JSON-RPC errors, never as isError payloads.
var (
	// ErrToolNotFound reports a call to a tool name that is not registered.
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidArguments reports arguments that failed schema validation.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Registry maps tool names to their definitions. It is safe for concurrent
// use; in practice it is populated once at server build time and read on
// every call. Registering a name twice overwrites the earlier entry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry. The tool must carry a non-empty name
// and a handler.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return errors.New("tool name is required")
	}
	if tool.Handler == nil {
		return errors.New("tool handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[tool.Name] = tool
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// Tools returns a snapshot of all registered tools.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ts := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		ts = append(ts, t)
	}
	return ts
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}

// Executor orchestrates a single tool call: lookup, argument defaulting,
// schema validation, handler invocation, and mapping of the outcome onto the
// two result channels. Handler failures, including panics, become isError
// results; only unknown tools and schema violations are returned as errors.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
}

// NewExecutor creates an executor over the given registry. A nil logger
// defaults to slog.Default().
func NewExecutor(registry *Registry, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, logger: logger}
}

// Execute runs the named tool with args. It returns ErrToolNotFound when the
// name is not registered and ErrInvalidArguments when args fail the tool's
// input schema; both are protocol-level conditions for the caller to map onto
// JSON-RPC errors. Any failure inside the handler itself is converted into a
// CallToolResult with IsError set and never propagates as an error.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (CallToolResult, error) {
	tool, ok := e.registry.Lookup(name)
	if !ok {
		return CallToolResult{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if args == nil {
		args = map[string]any{}
	}

	if len(tool.InputSchema) > 0 {
		if res := ValidateSchema(tool.InputSchema, args); !res.Valid {
			return CallToolResult{}, fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(res.Errors, ", "))
		}
	}

	value, err := e.invoke(ctx, tool, args)
	if err != nil {
		e.logger.Warn("tool execution failed",
			slog.String("tool", name),
			slog.String("err", err.Error()))
		return errorResult(fmt.Sprintf("tool execution failed: %s", err.Error())), nil
	}

	return textResult(formatValue(value)), nil
}

// invoke calls the handler, converting a panic into an ordinary error so that
// arbitrary user code cannot take down the request worker.
func (e *Executor) invoke(ctx context.Context, tool Tool, args map[string]any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return tool.Handler.Execute(ctx, args)
}

func textResult(text string) CallToolResult {
	return CallToolResult{
		Content: []Content{{Type: ContentTypeText, Text: text}},
	}
}

func errorResult(text string) CallToolResult {
	return CallToolResult{
		Content: []Content{{Type: ContentTypeText, Text: text}},
		IsError: true,
	}
}

// formatValue renders a handler's return value as text. Strings pass through
// unchanged; other values use their JSON form.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	}

	bs, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(bs)
}
