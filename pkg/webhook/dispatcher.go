// Package webhook delivers signed domain events to tenant-configured HTTPS
// endpoints. Delivery is best-effort and fire-and-forget: failures are logged
// and counted, never propagated to the triggering operation.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vantagecrm/courier/internal/telemetry"
	"github.com/vantagecrm/courier/pkg/tenant"
)

// ConfigSource resolves a tenant's webhook destination and signing secret.
type ConfigSource interface {
	GetWebhookConfig(ctx context.Context, tenantID uuid.UUID) (*tenant.WebhookConfig, error)
}

// Dispatcher signs and posts event payloads to tenant endpoints.
type Dispatcher struct {
	configs ConfigSource
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher. Each delivery is bounded by timeout.
func NewDispatcher(configs ConfigSource, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		configs: configs,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

type payload struct {
	TenantID  uuid.UUID      `json:"tenant_id"`
	Event     string         `json:"event"`
	Data      any            `json:"data"`
	Extra     map[string]any `json:"extra,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Dispatch delivers an event to the tenant's endpoint in the background. It
// returns immediately; the caller's context is deliberately not used so that
// delivery outlives the triggering request.
func (d *Dispatcher) Dispatch(tenantID uuid.UUID, event string, data any, extra map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.deliver(ctx, tenantID, event, data, extra); err != nil {
			telemetry.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
			d.logger.Warn("webhook delivery failed",
				"tenant_id", tenantID, "event", event, "error", err)
		}
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, tenantID uuid.UUID, event string, data any, extra map[string]any) error {
	cfg, err := d.configs.GetWebhookConfig(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("resolving webhook config: %w", err)
	}
	if !cfg.Enabled() {
		telemetry.WebhookDeliveriesTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	body, err := json.Marshal(payload{
		TenantID:  tenantID,
		Event:     event,
		Data:      data,
		Extra:     extra,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Secret != nil && *cfg.Secret != "" {
		req.Header.Set("X-Signature", Sign(body, *cfg.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	telemetry.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
	d.logger.Debug("webhook delivered", "tenant_id", tenantID, "event", event)
	return nil
}

// Sign computes the HMAC-SHA256 signature header value for a payload body.
// Receivers verify it by recomputing the HMAC over the exact body bytes.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
