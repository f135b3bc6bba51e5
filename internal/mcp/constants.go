// Package mcp provides MCP server implementation
package mcp

// Transport names recorded with each call
const (
	TransportStdio     = "stdio"
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
	TransportREPL      = "repl"
)
