package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	client := NewPayPilotClient(Config{APIURL: ts.URL})
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "validation_failed",
			"message": "userId: is required",
		})
	}))
	defer ts.Close()

	client := NewPayPilotClient(Config{APIURL: ts.URL})
	_, err := client.RecordOverride(context.Background(), "", 50, "WARN")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "userId: is required")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewPayPilotClient(Config{APIURL: ts.URL})
	_, err := client.GetTrustProfile(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewPayPilotClient(Config{APIURL: "http://127.0.0.1:1"})
	_, err := client.GetTrustProfile(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_EvaluateTransaction_Body(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"riskScore":0,"reasons":[],"decision":"ALLOW","aiRequired":false}`))
	}))
	defer ts.Close()

	client := NewPayPilotClient(Config{APIURL: ts.URL})
	_, err := client.EvaluateTransaction(context.Background(), "alice", 120.5, 900, "shopping", 5)
	require.NoError(t, err)
	assert.Equal(t, "alice", gotBody["userId"])
	assert.Equal(t, 120.5, gotBody["amount"])
	assert.Equal(t, 900.0, gotBody["balance"])
	assert.Equal(t, "shopping", gotBody["category"])
	assert.Equal(t, 5.0, gotBody["daysToRent"])
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleEvaluateTransaction_Success(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/risk/evaluate", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"riskScore":   65,
			"reasons":     []string{"High spend compared to balance", "Payment close to rent due date"},
			"decision":    "WARN",
			"message":     "This payment may strain your budget.",
			"aiRequired":  true,
			"explanation": "Spending this much now could leave your rent short.",
		})
	}))
	defer cleanup()

	result, err := h.HandleEvaluateTransaction(context.Background(), makeRequest(map[string]any{
		"user_id":      "alice",
		"amount":       400.0,
		"balance":      1000.0,
		"category":     "shopping",
		"days_to_rent": 3.0,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Decision: WARN (risk score 65/100)")
	assert.Contains(t, text, "High spend compared to balance")
	assert.Contains(t, text, "Spending this much now could leave your rent short.")
}

func TestHandleEvaluateTransaction_MissingAmount(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called on invalid input")
	}))
	defer cleanup()

	result, err := h.HandleEvaluateTransaction(context.Background(), makeRequest(map[string]any{
		"user_id": "alice",
		"balance": 1000.0,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleEvaluateTransaction_DegradedNote(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"riskScore":  65,
			"reasons":    []string{"High spend compared to balance"},
			"decision":   "WARN",
			"message":    "Policy engine unavailable",
			"aiRequired": false,
			"degraded":   true,
		})
	}))
	defer cleanup()

	result, err := h.HandleEvaluateTransaction(context.Background(), makeRequest(map[string]any{
		"amount":  400.0,
		"balance": 1000.0,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "policy engine was unavailable")
}

func TestHandleRecordOverride_Success(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/risk/override", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     "override recorded",
			"userId":     "alice",
			"trustScore": 95,
		})
	}))
	defer cleanup()

	result, err := h.HandleRecordOverride(context.Background(), makeRequest(map[string]any{
		"user_id":    "alice",
		"risk_score": 72.0,
		"decision":   "BLOCK",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Override recorded for alice")
	assert.Contains(t, text, "Trust score is now 95")
}

func TestHandleRecordOverride_Validation(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called on invalid input")
	}))
	defer cleanup()

	cases := []map[string]any{
		{"risk_score": 50.0, "decision": "WARN"},                      // missing user_id
		{"user_id": "alice", "decision": "WARN"},                      // missing risk_score
		{"user_id": "alice", "risk_score": 150.0, "decision": "WARN"}, // out of range
		{"user_id": "alice", "risk_score": 50.0, "decision": "ALLOW"}, // invalid decision
	}
	for _, args := range cases {
		result, err := h.HandleRecordOverride(context.Background(), makeRequest(args))
		require.NoError(t, err)
		assert.True(t, result.IsError, "args %v should fail", args)
	}
}

func TestHandleGetTrustProfile_Success(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/risk/users/alice", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"userId": "alice",
			"trustScore": 90,
			"lastOverrideAt": "2026-08-01T10:00:00Z",
			"overrides": [
				{"date": "2026-07-15T09:00:00Z", "riskScore": 55, "decision": "WARN"},
				{"date": "2026-08-01T10:00:00Z", "riskScore": 72, "decision": "BLOCK"}
			]
		}`))
	}))
	defer cleanup()

	result, err := h.HandleGetTrustProfile(context.Background(), makeRequest(map[string]any{
		"user_id": "alice",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Trust profile for alice")
	assert.Contains(t, text, "Trust score: 90/100")
	assert.Contains(t, text, "Override history (2)")
	assert.Contains(t, text, "2026-07-15: overrode WARN at risk score 55")
}

func TestHandleGetTrustProfile_NotFound(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "user_not_found",
			"message": "No trust record for this user",
		})
	}))
	defer cleanup()

	result, err := h.HandleGetTrustProfile(context.Background(), makeRequest(map[string]any{
		"user_id": "ghost",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No trust record")
}

func TestHandleGetTrustProfile_MissingUserID(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called on invalid input")
	}))
	defer cleanup()

	result, err := h.HandleGetTrustProfile(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
