package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mbd888/paypilot/internal/retry"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// Gemini calls the Gemini generateContent API to produce an explanation.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGemini creates a Gemini explainer for the given model.
func NewGemini(apiKey, model string, logger *slog.Logger) *Gemini {
	return &Gemini{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultGeminiBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the API endpoint (for tests).
func (g *Gemini) WithBaseURL(u string) *Gemini {
	g.baseURL = u
	return g
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Explain generates a short explanation, retrying transient failures once.
// 4xx responses are not retried; the key or request will not improve.
func (g *Gemini) Explain(ctx context.Context, req Request) (string, error) {
	prompt := buildPrompt(req)

	var text string
	err := retry.Do(ctx, 2, 200*time.Millisecond, func() error {
		var err error
		text, err = g.generate(ctx, prompt)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("gemini returned %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", retry.Permanent(err)
		}
		return "", err
	}

	var parsed geminiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	text := extractText(parsed)
	if text == "" {
		return "", fmt.Errorf("empty gemini response")
	}
	return text, nil
}

func extractText(r geminiResponse) string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

// buildPrompt keeps the model calm and bounded: explain, never judge, never
// decide, under 120 words.
func buildPrompt(req Request) string {
	return fmt.Sprintf(`You are a financial safety assistant.

Context:
- Risk Score: %d
- Decision: %s
- Trust Score: %d
- Past Overrides: %d
- Risk Reasons: %s

Explain clearly and calmly:
- Why this action is risky
- How past behavior influenced this
- What could happen if user proceeds
- Do NOT judge or shame
- Do NOT decide anything
- Keep it under 120 words
`, req.RiskScore, req.Decision, req.TrustScore, req.OverrideCount, strings.Join(req.Reasons, ", "))
}
