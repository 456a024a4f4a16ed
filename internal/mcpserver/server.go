package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all risk tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("ledgerisk", "1.0.0")
	client := NewRiskClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolAssessAccount, h.HandleAssessAccount)
	s.AddTool(ToolGetRecommendations, h.HandleGetRecommendations)
	s.AddTool(ToolGetAssessmentHistory, h.HandleGetAssessmentHistory)
	s.AddTool(ToolMonitorStatus, h.HandleMonitorStatus)
	s.AddTool(ToolTrackAccount, h.HandleTrackAccount)
	s.AddTool(ToolListAlerts, h.HandleListAlerts)
	s.AddTool(ToolCacheStats, h.HandleCacheStats)

	return s
}
