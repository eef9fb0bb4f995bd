package mcpd_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/toolwire/mcpd"
	"github.com/toolwire/mcpd/servers/demo"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := mcpd.NewServer(mcpd.Options{
		SessionTimeout: time.Minute,
		Logger:         logger,
	})
	for _, tool := range demo.Tools() {
		if err := srv.Register(tool); err != nil {
			t.Fatalf("failed to register tool %q: %v", tool.Name, err)
		}
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("failed to shutdown server: %v", err)
		}
	})

	return ts
}

func postMessage(t *testing.T, ts *httptest.Server, sessID, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp", strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessID != "" {
		req.Header.Set("Mcp-Session-Id", sessID)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	return resp
}

func decodeMessage(t *testing.T, resp *http.Response) mcpd.JSONRPCMessage {
	t.Helper()
	defer resp.Body.Close()

	var msg mcpd.JSONRPCMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return msg
}

func initSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	resp := postMessage(t, ts, "",
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"test","version":"0"}}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize returned status %d", resp.StatusCode)
	}

	sessID := resp.Header.Get("Mcp-Session-Id")
	if sessID == "" {
		t.Fatal("initialize did not issue a session token")
	}
	decodeMessage(t, resp)
	return sessID
}

func TestInitialize(t *testing.T) {
	ts := newTestServer(t)

	resp := postMessage(t, ts, "",
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"test","version":"0"}}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("Mcp-Session-Id") == "" {
		t.Fatal("expected a session token in the response header")
	}

	msg := decodeMessage(t, resp)
	if msg.Error != nil {
		t.Fatalf("unexpected error: %v", msg.Error)
	}

	var result struct {
		ProtocolVersion string    `json:"protocolVersion"`
		ServerInfo      mcpd.Info `json:"serverInfo"`
	}
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result.ProtocolVersion != mcpd.ProtocolVersion {
		t.Fatalf("got protocol version %q, want %q", result.ProtocolVersion, mcpd.ProtocolVersion)
	}
	if result.ServerInfo.Name == "" {
		t.Fatal("expected server info in initialize result")
	}
}

func TestMissingSessionToken(t *testing.T) {
	ts := newTestServer(t)

	resp := postMessage(t, ts, "", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400 for missing session token", resp.StatusCode)
	}
}

func TestUnknownSessionToken(t *testing.T) {
	ts := newTestServer(t)

	resp := postMessage(t, ts, "no-such-session", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("got status %d, want 404 for unknown session", resp.StatusCode)
	}
}

func TestToolsList(t *testing.T) {
	ts := newTestServer(t)
	sessID := initSession(t, ts)

	resp := postMessage(t, ts, sessID, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	msg := decodeMessage(t, resp)
	if msg.Error != nil {
		t.Fatalf("unexpected error: %v", msg.Error)
	}
	if msg.ID != "2" {
		t.Fatalf("got response id %q, want %q", msg.ID, "2")
	}

	var result mcpd.ListToolsResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if len(result.Tools) != len(demo.Tools()) {
		t.Fatalf("got %d tools, want %d", len(result.Tools), len(demo.Tools()))
	}

	var echo *mcpd.Tool
	for i := range result.Tools {
		if result.Tools[i].Name == "echo" {
			echo = &result.Tools[i]
		}
	}
	if echo == nil {
		t.Fatal("echo tool missing from tools/list")
	}
	if echo.Description != "Echo back the input message" {
		t.Fatalf("unexpected echo description %q", echo.Description)
	}
	if len(echo.InputSchema) == 0 {
		t.Fatal("echo tool descriptor is missing its input schema")
	}
	if echo.Annotations == nil || !echo.Annotations.ReadOnlyHint {
		t.Fatalf("unexpected echo annotations: %+v", echo.Annotations)
	}
}

func TestToolsCall(t *testing.T) {
	type testCase struct {
		name      string
		body      string
		wantText  string
		wantError bool
	}

	testCases := []testCase{
		{
			name:     "echo returns the message",
			body:     `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hello"}}}`,
			wantText: "hello",
		},
		{
			name:     "add returns the sum",
			body:     `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"add","arguments":{"a":3,"b":5}}}`,
			wantText: "8",
		},
		{
			name:     "greet honors the enum argument",
			body:     `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"greet","arguments":{"name":"Ada","language":"fr"}}}`,
			wantText: "Bonjour, Ada !",
		},
		{
			name:      "divide by zero is a tool failure, not a protocol error",
			body:      `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"divide","arguments":{"a":1,"b":0}}}`,
			wantText:  "division by zero",
			wantError: true,
		},
	}

	ts := newTestServer(t)
	sessID := initSession(t, ts)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postMessage(t, ts, sessID, tc.body)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("got status %d, want 200", resp.StatusCode)
			}

			msg := decodeMessage(t, resp)
			if msg.Error != nil {
				t.Fatalf("unexpected protocol error: %v", msg.Error)
			}

			var result mcpd.CallToolResult
			if err := json.Unmarshal(msg.Result, &result); err != nil {
				t.Fatalf("failed to unmarshal result: %v", err)
			}
			if result.IsError != tc.wantError {
				t.Fatalf("got isError %v, want %v", result.IsError, tc.wantError)
			}
			if len(result.Content) != 1 || result.Content[0].Type != mcpd.ContentTypeText {
				t.Fatalf("expected single text content item, got %+v", result.Content)
			}
			if !strings.Contains(result.Content[0].Text, tc.wantText) {
				t.Fatalf("got text %q, want it to contain %q", result.Content[0].Text, tc.wantText)
			}
		})
	}
}

func TestToolsCallProtocolErrors(t *testing.T) {
	type testCase struct {
		name     string
		body     string
		wantCode int
		wantMsg  string
	}

	testCases := []testCase{
		{
			name:     "unknown tool",
			body:     `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"nope"}}`,
			wantCode: -32602,
			wantMsg:  "tool not found",
		},
		{
			name:     "schema-invalid arguments",
			body:     `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"echo","arguments":{}}}`,
			wantCode: -32602,
			wantMsg:  "missing required field: message",
		},
		{
			name:     "unknown method",
			body:     `{"jsonrpc":"2.0","id":9,"method":"tools/destroy"}`,
			wantCode: -32601,
			wantMsg:  "method not found",
		},
	}

	ts := newTestServer(t)
	sessID := initSession(t, ts)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postMessage(t, ts, sessID, tc.body)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("got status %d, want 200", resp.StatusCode)
			}

			msg := decodeMessage(t, resp)
			if msg.Error == nil {
				t.Fatalf("expected a protocol error, got result %s", msg.Result)
			}
			if msg.Error.Code != tc.wantCode {
				t.Fatalf("got error code %d, want %d", msg.Error.Code, tc.wantCode)
			}
			if !strings.Contains(msg.Error.Message, tc.wantMsg) {
				t.Fatalf("got error message %q, want it to contain %q", msg.Error.Message, tc.wantMsg)
			}
		})
	}
}

func TestNotificationsProduceNoBody(t *testing.T) {
	type testCase struct {
		name string
		body string
	}

	testCases := []testCase{
		{name: "initialized notification", body: `{"jsonrpc":"2.0","method":"notifications/initialized"}`},
		{name: "unknown notification", body: `{"jsonrpc":"2.0","method":"notifications/whatever"}`},
	}

	ts := newTestServer(t)
	sessID := initSession(t, ts)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postMessage(t, ts, sessID, tc.body)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusAccepted {
				t.Fatalf("got status %d, want 202", resp.StatusCode)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("failed to read body: %v", err)
			}
			if len(body) != 0 {
				t.Fatalf("notification must not produce a body, got %q", body)
			}
		})
	}
}

func TestPing(t *testing.T) {
	ts := newTestServer(t)
	sessID := initSession(t, ts)

	resp := postMessage(t, ts, sessID, `{"jsonrpc":"2.0","id":10,"method":"ping"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	msg := decodeMessage(t, resp)
	if msg.Error != nil {
		t.Fatalf("unexpected error: %v", msg.Error)
	}
	if msg.ID != "10" {
		t.Fatalf("got response id %q, want %q", msg.ID, "10")
	}
	if string(msg.Result) != "{}" {
		t.Fatalf("got ping result %s, want empty object", msg.Result)
	}
}

func TestParseError(t *testing.T) {
	ts := newTestServer(t)

	resp := postMessage(t, ts, "", `{not json`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200 carrying an error envelope", resp.StatusCode)
	}

	msg := decodeMessage(t, resp)
	if msg.Error == nil || msg.Error.Code != -32700 {
		t.Fatalf("expected parse error envelope, got %+v", msg)
	}
}

func TestProtocolVersionHeaderMismatch(t *testing.T) {
	ts := newTestServer(t)
	sessID := initSession(t, ts)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":11,"method":"tools/list"}`))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Mcp-Session-Id", sessID)
	req.Header.Set("MCP-Protocol-Version", "1999-01-01")

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400 for protocol version mismatch", resp.StatusCode)
	}
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t)
	sessID := initSession(t, ts)

	deleteSession := func() int {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
		if err != nil {
			t.Fatalf("failed to create request: %v", err)
		}
		req.Header.Set("Mcp-Session-Id", sessID)

		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatalf("failed to send request: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if status := deleteSession(); status != http.StatusNoContent {
		t.Fatalf("got status %d, want 204", status)
	}
	// Idempotent: deleting again acknowledges the same way.
	if status := deleteSession(); status != http.StatusNoContent {
		t.Fatalf("got status %d on repeat delete, want 204", status)
	}

	resp := postMessage(t, ts, sessID, `{"jsonrpc":"2.0","id":12,"method":"tools/list"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("got status %d after delete, want 404", resp.StatusCode)
	}
}

func TestUnsupportedVerb(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/mcp", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("got status %d, want 405", resp.StatusCode)
	}
}
