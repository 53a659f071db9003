package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mbd888/paypilot/internal/circuitbreaker"
	"github.com/mbd888/paypilot/internal/metrics"
)

// breakerKey identifies the webhook circuit; there is one policy upstream.
const breakerKey = "policy"

// Webhook calls an external policy engine over HTTP. Failures feed a circuit
// breaker so a dead upstream is skipped instead of timed out on every
// request.
type Webhook struct {
	url        string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
}

// NewWebhook creates a webhook evaluator. The timeout bounds the full HTTP
// exchange; the engine layers its own deadline on top via context.
func NewWebhook(url string, timeout time.Duration, logger *slog.Logger) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuitbreaker.New(5, 30*time.Second),
		logger:     logger,
	}
}

type webhookRequest struct {
	RiskScore int `json:"riskScore"`
}

func (w *Webhook) Evaluate(ctx context.Context, riskScore int) (*Decision, error) {
	if !w.breaker.Allow(breakerKey) {
		metrics.PolicyFailuresTotal.Inc()
		return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	body, err := json.Marshal(webhookRequest{RiskScore: riskScore})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, w.fail(fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, w.fail(fmt.Errorf("%w: upstream returned %d", ErrUnavailable, resp.StatusCode))
	}

	var d Decision
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&d); err != nil {
		return nil, w.fail(fmt.Errorf("%w: decode response: %v", ErrUnavailable, err))
	}
	if d.Decision == "" {
		return nil, w.fail(fmt.Errorf("%w: empty decision in response", ErrUnavailable))
	}

	w.breaker.RecordSuccess(breakerKey)
	return &d, nil
}

// fail records the failure against the breaker and the failure counter.
func (w *Webhook) fail(err error) error {
	w.breaker.RecordFailure(breakerKey)
	metrics.PolicyFailuresTotal.Inc()
	w.logger.Warn("policy webhook failed", "error", err)
	return err
}
