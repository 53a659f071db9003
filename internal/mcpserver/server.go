// Package mcpserver exposes PayPilot's risk gate as MCP tools so that AI
// assistants can check a spend, record an override, and inspect trust state
// on the user's behalf.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all PayPilot tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("paypilot", "1.0.0")
	client := NewPayPilotClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolEvaluateTransaction, h.HandleEvaluateTransaction)
	s.AddTool(ToolRecordOverride, h.HandleRecordOverride)
	s.AddTool(ToolGetTrustProfile, h.HandleGetTrustProfile)

	return s
}
