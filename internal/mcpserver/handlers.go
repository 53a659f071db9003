package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *PayPilotClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *PayPilotClient) *Handlers {
	return &Handlers{client: client}
}

// HandleEvaluateTransaction scores a proposed spend.
func (h *Handlers) HandleEvaluateTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	amount := req.GetFloat("amount", -1)
	if amount < 0 {
		return mcp.NewToolResultError("amount is required and must not be negative"), nil
	}
	balance := req.GetFloat("balance", -1)
	if balance < 0 {
		return mcp.NewToolResultError("balance is required and must not be negative"), nil
	}
	category := req.GetString("category", "")
	daysToRent := req.GetInt("days_to_rent", 0)

	raw, err := h.client.EvaluateTransaction(ctx, userID, amount, balance, category, daysToRent)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Evaluation failed: %v", err)), nil
	}

	text, err := formatEvaluation(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse evaluation: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleRecordOverride records a proceed-anyway decision.
func (h *Handlers) HandleRecordOverride(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	riskScore := req.GetInt("risk_score", -1)
	if riskScore < 0 || riskScore > 100 {
		return mcp.NewToolResultError("risk_score is required and must be between 0 and 100"), nil
	}
	decision := req.GetString("decision", "")
	if decision != "WARN" && decision != "BLOCK" {
		return mcp.NewToolResultError("decision must be WARN or BLOCK"), nil
	}

	raw, err := h.client.RecordOverride(ctx, userID, riskScore, decision)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to record override: %v", err)), nil
	}

	var resp struct {
		TrustScore int `json:"trustScore"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Override recorded for %s.\n"+
			"Trust score is now %d.\n\n"+
			"Future evaluations will weigh this decision until trust recovers "+
			"after 30 override-free days.",
		userID, resp.TrustScore)), nil
}

// HandleGetTrustProfile returns a user's trust state.
func (h *Handlers) HandleGetTrustProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	raw, err := h.client.GetTrustProfile(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get trust profile: %v", err)), nil
	}

	text, err := formatTrustProfile(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse profile: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

func formatEvaluation(raw json.RawMessage) (string, error) {
	var eval struct {
		RiskScore   int      `json:"riskScore"`
		Reasons     []string `json:"reasons"`
		Decision    string   `json:"decision"`
		Message     string   `json:"message"`
		AIRequired  bool     `json:"aiRequired"`
		Explanation *string  `json:"explanation"`
		Degraded    bool     `json:"degraded"`
	}
	if err := json.Unmarshal(raw, &eval); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Decision: %s (risk score %d/100)\n", eval.Decision, eval.RiskScore)
	if eval.Message != "" {
		fmt.Fprintf(&sb, "Message: %s\n", eval.Message)
	}
	if eval.Degraded {
		sb.WriteString("Note: the policy engine was unavailable; this is a conservative fallback decision.\n")
	}

	if len(eval.Reasons) > 0 {
		sb.WriteString("\nRisk factors:\n")
		for _, r := range eval.Reasons {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	} else {
		sb.WriteString("\nNo risk factors identified.\n")
	}

	if eval.Explanation != nil && *eval.Explanation != "" {
		fmt.Fprintf(&sb, "\nExplanation:\n%s\n", *eval.Explanation)
	}

	return sb.String(), nil
}

func formatTrustProfile(raw json.RawMessage) (string, error) {
	var profile struct {
		UserID         string     `json:"userId"`
		TrustScore     int        `json:"trustScore"`
		LastOverrideAt *time.Time `json:"lastOverrideAt"`
		Overrides      []struct {
			Date      time.Time `json:"date"`
			RiskScore int       `json:"riskScore"`
			Decision  string    `json:"decision"`
		} `json:"overrides"`
	}
	if err := json.Unmarshal(raw, &profile); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Trust profile for %s\n", profile.UserID)
	fmt.Fprintf(&sb, "Trust score: %d/100\n", profile.TrustScore)
	if profile.LastOverrideAt != nil {
		fmt.Fprintf(&sb, "Last override: %s\n", profile.LastOverrideAt.Format("2006-01-02"))
	} else {
		sb.WriteString("Last override: none pending (trust recovery clock is clear)\n")
	}

	if len(profile.Overrides) == 0 {
		sb.WriteString("\nNo overrides on record.")
		return sb.String(), nil
	}

	fmt.Fprintf(&sb, "\nOverride history (%d):\n", len(profile.Overrides))
	for _, ov := range profile.Overrides {
		fmt.Fprintf(&sb, "- %s: overrode %s at risk score %d\n",
			ov.Date.Format("2006-01-02"), ov.Decision, ov.RiskScore)
	}
	return sb.String(), nil
}
