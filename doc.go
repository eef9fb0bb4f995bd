// Package mcpd implements a server-side runtime for the Model Context Protocol (MCP)
// Streamable HTTP transport. It exposes a set of schema-described tools over a single
// HTTP endpoint, with session-scoped state established during the initialize handshake.
//
// Two transport shapes are supported and share one dispatch core: a synchronous mode
// where each POST carries a JSON-RPC request and the response travels back in the HTTP
// body, and a push mode where a long-lived GET opens a Server-Sent Events stream and
// responses to subsequent POSTs are delivered asynchronously as stream events.
package mcpd
