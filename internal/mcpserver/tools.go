package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the PayPilot MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolEvaluateTransaction = mcp.NewTool("evaluate_transaction",
	mcp.WithDescription(
		"Evaluate the financial risk of a proposed spend before it happens. "+
			"Returns a 0-100 risk score, the reasons behind it, an ALLOW/WARN/BLOCK decision, "+
			"and a plain-language explanation when the decision requires one."),
	mcp.WithString("user_id",
		mcp.Description("The user's identifier. Omit for an anonymous evaluation with default trust.")),
	mcp.WithNumber("amount",
		mcp.Required(),
		mcp.Description("Transaction amount (e.g. 120.50)")),
	mcp.WithNumber("balance",
		mcp.Required(),
		mcp.Description("The user's current account balance")),
	mcp.WithString("category",
		mcp.Description("Spending category (e.g. 'shopping', 'food', 'bills')")),
	mcp.WithNumber("days_to_rent",
		mcp.Description("Days until the user's rent is due")),
)

var ToolRecordOverride = mcp.NewTool("record_override",
	mcp.WithDescription(
		"Record that the user chose to proceed despite a WARN or BLOCK decision. "+
			"This lowers their trust score and is remembered in future evaluations. "+
			"Only call this after the user explicitly confirms they want to proceed."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user's identifier")),
	mcp.WithNumber("risk_score",
		mcp.Required(),
		mcp.Description("The risk score from the evaluation being overridden (0-100)")),
	mcp.WithString("decision",
		mcp.Required(),
		mcp.Description("The decision being overridden"),
		mcp.Enum("WARN", "BLOCK")),
)

var ToolGetTrustProfile = mcp.NewTool("get_trust_profile",
	mcp.WithDescription(
		"Get a user's current trust score, last override date, and full override history. "+
			"Trust starts at 100, drops 5 points per override, and recovers 10 points "+
			"after 30 override-free days."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user's identifier")),
)
