// Package webhook delivers workflow webhook actions as outbound HTTP requests.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/beaconcrm/automation/pkg/actions"
)

const defaultTimeout = 30 * time.Second

// ErrWebhookStatus indicates the remote endpoint answered outside the 2xx range.
var ErrWebhookStatus = errors.New("webhook returned non-success status")

// Handler posts the trigger payload to the configured URL. The request body
// is a JSON envelope carrying the execution identity and the payload, so the
// receiver can correlate deliveries.
type Handler struct {
	client *http.Client
}

func NewHandler() *Handler {
	return &Handler{
		client: &http.Client{Timeout: defaultTimeout},
	}
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Destination URL for the HTTP POST",
			},
			"method": map[string]any{
				"type":    "string",
				"default": "POST",
				"enum":    []string{"POST", "PUT", "PATCH"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Additional request headers",
			},
		},
		"required": []string{"url"},
	}
}

func (h *Handler) Execute(ctx context.Context, config map[string]any, execCtx actions.ExecutionContext, logger *slog.Logger) error {
	url, _ := config["url"].(string)
	if url == "" {
		return errors.New("webhook url is required")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	envelope := map[string]any{
		"execution_id":    execCtx.ExecutionID,
		"workflow_id":     execCtx.WorkflowID,
		"organization_id": execCtx.OrganizationID,
		"payload":         execCtx.TriggerPayload,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if value, ok := v.(string); ok {
				req.Header.Set(k, value)
			}
		}
	}

	logger.InfoContext(ctx, "Delivering webhook", "url", url, "method", method)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrWebhookStatus, resp.StatusCode)
	}

	return nil
}
