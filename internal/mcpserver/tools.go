package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the risk MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAssessAccount = mcp.NewTool("assess_account",
	mcp.WithDescription(
		"Run a fresh risk assessment for an on-ledger account. "+
			"Combines the account's lending position, its cross-ledger activity history, "+
			"and external oracle signals into a 0-100 risk score with contributing factors. "+
			"Higher scores mean higher risk."),
	mcp.WithString("account",
		mcp.Required(),
		mcp.Description("The account's 0x address (e.g. '0x1234...')")),
	mcp.WithBoolean("update_on_ledger",
		mcp.Description("Write the new score back to the ledger when it moved enough to matter")),
)

var ToolGetRecommendations = mcp.NewTool("get_recommendations",
	mcp.WithDescription(
		"Get actionable recommendations for lowering an account's risk score, "+
			"e.g. increasing activity, verifying identity, or diversifying ledger usage."),
	mcp.WithString("account",
		mcp.Required(),
		mcp.Description("The account's 0x address (e.g. '0x1234...')")),
)

var ToolGetAssessmentHistory = mcp.NewTool("get_assessment_history",
	mcp.WithDescription(
		"List past risk assessments for an account, newest first. "+
			"Shows how the score, confidence, and data sources evolved over time."),
	mcp.WithString("account",
		mcp.Required(),
		mcp.Description("The account's 0x address (e.g. '0x1234...')")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of assessments to return (default 50)")),
)

var ToolMonitorStatus = mcp.NewTool("monitor_status",
	mcp.WithDescription(
		"Check the continuous risk monitor: whether it is running, the poll interval, "+
			"and which accounts are being watched with their last known scores."),
)

var ToolTrackAccount = mcp.NewTool("track_account",
	mcp.WithDescription(
		"Add an account to the continuous risk monitor watch list. "+
			"The monitor re-assesses tracked accounts on every poll and raises alerts "+
			"when a score moves past the change threshold. Requires admin access."),
	mcp.WithString("account",
		mcp.Required(),
		mcp.Description("The account's 0x address (e.g. '0x1234...')")),
)

var ToolListAlerts = mcp.NewTool("list_alerts",
	mcp.WithDescription(
		"List risk alerts raised by the monitor. "+
			"Severity 'score_change' marks a notable move; 'high' marks a move large enough "+
			"to be escalated on-ledger."),
	mcp.WithString("account",
		mcp.Description("Only show alerts for this 0x address")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of alerts to return (default 50)")),
)

var ToolCacheStats = mcp.NewTool("cache_stats",
	mcp.WithDescription(
		"Show hit/miss statistics for the position, record, oracle, and assessment caches. "+
			"Useful for judging data freshness and upstream load."),
)
