package mcpd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// dispatcher routes decoded JSON-RPC requests to their method handlers. It is
// the single dispatch core shared by both transport modes; only response
// delivery differs between them.
type dispatcher struct {
	info     Info
	registry *Registry
	executor *Executor
	logger   *slog.Logger
}

func newDispatcher(info Info, registry *Registry, logger *slog.Logger) *dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &dispatcher{
		info:     info,
		registry: registry,
		executor: NewExecutor(registry, logger),
		logger:   logger,
	}
}

// dispatch routes msg by method name and returns the response to deliver, or
// nil when there is nothing to send. Notifications (messages without an ID)
// never produce a response, even on error or for unknown methods. Unexpected
// failures are downgraded to an internal-error envelope rather than escaping
// to the transport.
func (d *dispatcher) dispatch(ctx context.Context, msg JSONRPCMessage) (resp *JSONRPCMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panic",
				slog.String("method", msg.Method),
				slog.Any("panic", r))
			resp = errorMessage(msg.ID, jsonRPCInternalErrorCode, fmt.Sprintf("internal error: %v", r))
		}
		if msg.ID == "" {
			resp = nil
		}
	}()

	switch msg.Method {
	case methodInitialize:
		return d.handleInitialize(msg)
	case MethodToolsList:
		return resultMessage(msg.ID, ListToolsResult{Tools: d.registry.Tools()})
	case MethodToolsCall:
		return d.handleToolsCall(ctx, msg)
	case methodPing:
		return emptyResultMessage(msg.ID)
	case methodNotificationsInitialized:
		// Client confirming initialization; nothing to send back.
		return nil
	default:
		if msg.ID == "" {
			// An unknown notification is silently dropped.
			return nil
		}
		return errorMessage(msg.ID, jsonRPCMethodNotFoundCode, fmt.Sprintf("method not found: %s", msg.Method))
	}
}

func (d *dispatcher) handleInitialize(msg JSONRPCMessage) *JSONRPCMessage {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return errorMessage(msg.ID, jsonRPCInvalidParamsCode, "invalid initialize params")
		}
	}

	d.logger.Debug("initialize",
		slog.String("clientName", params.ClientInfo.Name),
		slog.String("clientProtocolVersion", params.ProtocolVersion))

	return resultMessage(msg.ID, initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
		ServerInfo:      d.info,
	})
}

func (d *dispatcher) handleToolsCall(ctx context.Context, msg JSONRPCMessage) *JSONRPCMessage {
	var params CallToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return errorMessage(msg.ID, jsonRPCInvalidParamsCode, "invalid tool call params")
	}

	result, err := d.executor.Execute(ctx, params.Name, params.Arguments)
	if err != nil {
		// Unknown tool and schema violations are protocol faults, not tool
		// failures; both map onto invalid params.
		if errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrInvalidArguments) {
			return errorMessage(msg.ID, jsonRPCInvalidParamsCode, err.Error())
		}
		return errorMessage(msg.ID, jsonRPCInternalErrorCode, err.Error())
	}

	return resultMessage(msg.ID, result)
}

func resultMessage(id MustString, result any) *JSONRPCMessage {
	bs, err := json.Marshal(result)
	if err != nil {
		return errorMessage(id, jsonRPCInternalErrorCode, fmt.Sprintf("failed to marshal result: %s", err))
	}
	return &JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  bs,
	}
}

func emptyResultMessage(id MustString) *JSONRPCMessage {
	return &JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  json.RawMessage(`{}`),
	}
}

func errorMessage(id MustString, code int, message string) *JSONRPCMessage {
	return &JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	}
}
