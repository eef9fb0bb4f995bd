// Package demo provides a small set of example tools for exercising an mcpd
// server: text echo, arithmetic, an enum-constrained greeter, a clock, and a
// division tool whose zero-divisor failure demonstrates the isError channel.
package demo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/toolwire/mcpd"
)

var echoSchema = json.RawMessage(`{
  "type": "object",
  "required": ["message"],
  "properties": {
    "message": { "type": "string", "description": "Message to echo back" }
  }
}`)

var addSchema = json.RawMessage(`{
  "type": "object",
  "required": ["a", "b"],
  "properties": {
    "a": { "type": "number", "description": "First number" },
    "b": { "type": "number", "description": "Second number" }
  }
}`)

var greetSchema = json.RawMessage(`{
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": { "type": "string", "description": "Name to greet" },
    "language": { "type": "string", "enum": ["en", "es", "fr"] }
  }
}`)

var divideSchema = json.RawMessage(`{
  "type": "object",
  "required": ["a", "b"],
  "properties": {
    "a": { "type": "number", "description": "Dividend" },
    "b": { "type": "number", "description": "Divisor" }
  }
}`)

// Tools returns the demo tool set, ready to register on a server.
func Tools() []mcpd.Tool {
	return []mcpd.Tool{
		{
			Name:        "echo",
			Description: "Echo back the input message",
			InputSchema: echoSchema,
			Annotations: &mcpd.ToolAnnotations{ReadOnlyHint: true, IdempotentHint: true},
			Handler:     mcpd.ToolHandlerFunc(callEcho),
		},
		{
			Name:        "add",
			Description: "Add two numbers together",
			InputSchema: addSchema,
			Annotations: &mcpd.ToolAnnotations{ReadOnlyHint: true, IdempotentHint: true},
			Handler:     mcpd.ToolHandlerFunc(callAdd),
		},
		{
			Name:        "greet",
			Description: "Greet someone in a supported language",
			InputSchema: greetSchema,
			Annotations: &mcpd.ToolAnnotations{ReadOnlyHint: true},
			Handler:     mcpd.ToolHandlerFunc(callGreet),
		},
		{
			Name:        "current_time",
			Description: "Return the current server time in RFC 3339 format",
			Annotations: &mcpd.ToolAnnotations{ReadOnlyHint: true},
			Handler:     mcpd.ToolHandlerFunc(callCurrentTime),
		},
		{
			Name:        "divide",
			Description: "Divide one number by another",
			InputSchema: divideSchema,
			Annotations: &mcpd.ToolAnnotations{ReadOnlyHint: true, IdempotentHint: true},
			Handler:     mcpd.ToolHandlerFunc(callDivide),
		},
	}
}

func callEcho(_ context.Context, args map[string]any) (any, error) {
	return args["message"], nil
}

func callAdd(_ context.Context, args map[string]any) (any, error) {
	a, err := number(args, "a")
	if err != nil {
		return nil, err
	}
	b, err := number(args, "b")
	if err != nil {
		return nil, err
	}
	return a + b, nil
}

func callGreet(_ context.Context, args map[string]any) (any, error) {
	name, _ := args["name"].(string)

	language := "en"
	if l, ok := args["language"].(string); ok && l != "" {
		language = l
	}

	switch language {
	case "es":
		return fmt.Sprintf("¡Hola, %s!", name), nil
	case "fr":
		return fmt.Sprintf("Bonjour, %s !", name), nil
	default:
		return fmt.Sprintf("Hello, %s!", name), nil
	}
}

func callCurrentTime(_ context.Context, _ map[string]any) (any, error) {
	return time.Now().Format(time.RFC3339), nil
}

func callDivide(_ context.Context, args map[string]any) (any, error) {
	a, err := number(args, "a")
	if err != nil {
		return nil, err
	}
	b, err := number(args, "b")
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, errors.New("division by zero")
	}
	return a / b, nil
}

func number(args map[string]any, key string) (float64, error) {
	switch v := args[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("argument %q is not a number", key)
	}
}
