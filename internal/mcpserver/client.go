package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the configuration for connecting to the PayPilot API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
}

// PayPilotClient is a pure HTTP client for the PayPilot API.
type PayPilotClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewPayPilotClient creates a new client for the PayPilot API.
func NewPayPilotClient(cfg Config) *PayPilotClient {
	return &PayPilotClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the service.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the service and returns the response body.
func (c *PayPilotClient) doRequest(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// EvaluateTransaction scores a proposed transaction.
func (c *PayPilotClient) EvaluateTransaction(ctx context.Context, userID string, amount, balance float64, category string, daysToRent int) (json.RawMessage, error) {
	body := map[string]any{
		"userId":     userID,
		"amount":     amount,
		"balance":    balance,
		"category":   category,
		"daysToRent": daysToRent,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/risk/evaluate", body)
}

// RecordOverride records that the user chose to proceed despite a warning.
func (c *PayPilotClient) RecordOverride(ctx context.Context, userID string, riskScore int, decision string) (json.RawMessage, error) {
	body := map[string]any{
		"userId":    userID,
		"riskScore": riskScore,
		"decision":  decision,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/risk/override", body)
}

// GetTrustProfile returns the user's trust state and override history.
func (c *PayPilotClient) GetTrustProfile(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/risk/users/"+userID, nil)
}
