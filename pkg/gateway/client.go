package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vantagecrm/courier/internal/telemetry"
)

// Client wraps the gateway REST API for a single instance's base URL and
// credential. Credentials arrive decrypted from the vault and never leave
// this package except inside outbound request headers.
type Client struct {
	baseURL    string
	credential string
	strategies []AuthStrategy
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway client. baseURL is normalized (trailing slashes
// stripped); timeout bounds every call so a stalled gateway cannot block the
// calling request indefinitely.
func NewClient(baseURL, credential string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		credential: credential,
		strategies: DefaultAuthStrategies,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// CreateInstanceResult is the subset of the provisioning response callers use.
type CreateInstanceResult struct {
	InstanceName string
	QRCode       string // normalized data URI, may be empty
}

// CreateInstance provisions a named instance on the gateway. A conflict-style
// response (the instance already exists) is success: provisioning is
// idempotent.
func (c *Client) CreateInstance(ctx context.Context, instanceName string) (*CreateInstanceResult, error) {
	body := map[string]any{
		"instanceName": instanceName,
		"qrcode":       true,
		"integration":  "WHATSAPP-BAILEYS",
	}

	var resp struct {
		Instance struct {
			InstanceName string `json:"instanceName"`
		} `json:"instance"`
		QRCode qrPayload `json:"qrcode"`
	}

	err := c.do(ctx, request{
		operation: "create_instance",
		method:    http.MethodPost,
		path:      "/instance/create",
		body:      body,
		result:    &resp,
	})
	if err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.IsConflict() {
			c.logger.Debug("gateway instance already exists", "instance", instanceName)
			return &CreateInstanceResult{InstanceName: instanceName}, nil
		}
		return nil, err
	}

	qr, err := NormalizeQR(resp.QRCode.value())
	if err != nil {
		return nil, fmt.Errorf("normalizing QR payload: %w", err)
	}
	return &CreateInstanceResult{InstanceName: instanceName, QRCode: qr}, nil
}

// Connect requests a fresh pairing QR for the instance. The returned payload
// is always a data URI regardless of what format the gateway produced.
func (c *Client) Connect(ctx context.Context, instanceName string) (string, error) {
	var resp qrPayload
	err := c.do(ctx, request{
		operation: "connect",
		method:    http.MethodGet,
		path:      "/instance/connect/" + url.PathEscape(instanceName),
		result:    &resp,
	})
	if err != nil {
		return "", err
	}
	return NormalizeQR(resp.value())
}

// State is the live connection state reported by the gateway.
type State struct {
	State    string
	OwnerJID string
}

// ConnectionState fetches the instance's live state.
func (c *Client) ConnectionState(ctx context.Context, instanceName string) (*State, error) {
	var resp struct {
		Instance struct {
			State    string `json:"state"`
			OwnerJID string `json:"ownerJid"`
		} `json:"instance"`
		State string `json:"state"` // older gateways put it at the top level
	}

	err := c.do(ctx, request{
		operation: "connection_state",
		method:    http.MethodGet,
		path:      "/instance/connectionState/" + url.PathEscape(instanceName),
		result:    &resp,
	})
	if err != nil {
		return nil, err
	}

	st := resp.Instance.State
	if st == "" {
		st = resp.State
	}
	return &State{State: st, OwnerJID: resp.Instance.OwnerJID}, nil
}

// Restart restarts the instance in place, preserving its registration.
func (c *Client) Restart(ctx context.Context, instanceName string) error {
	return c.do(ctx, request{
		operation: "restart",
		method:    http.MethodPut,
		path:      "/instance/restart/" + url.PathEscape(instanceName),
	})
}

// Logout terminates the instance's session on the gateway.
func (c *Client) Logout(ctx context.Context, instanceName string) error {
	return c.do(ctx, request{
		operation: "logout",
		method:    http.MethodDelete,
		path:      "/instance/logout/" + url.PathEscape(instanceName),
	})
}

// SendResult describes an accepted outbound message.
type SendResult struct {
	MessageID string
	Status    string
	Raw       json.RawMessage
}

type sendResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

// SendText sends a text message to the given phone number.
func (c *Client) SendText(ctx context.Context, instanceName, number, text string) (*SendResult, error) {
	body := map[string]any{
		"number": strings.TrimPrefix(number, "+"),
		"text":   text,
	}
	return c.send(ctx, "send_text", "/message/sendText/"+url.PathEscape(instanceName), body)
}

// SendMedia sends a media message (by URL) with an optional caption.
func (c *Client) SendMedia(ctx context.Context, instanceName, number, mediaURL, caption string) (*SendResult, error) {
	body := map[string]any{
		"number":    strings.TrimPrefix(number, "+"),
		"mediatype": "image",
		"media":     mediaURL,
		"caption":   caption,
	}
	return c.send(ctx, "send_media", "/message/sendMedia/"+url.PathEscape(instanceName), body)
}

func (c *Client) send(ctx context.Context, operation, path string, body map[string]any) (*SendResult, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{
		operation: operation,
		method:    http.MethodPost,
		path:      path,
		body:      body,
		result:    &raw,
	})
	if err != nil {
		return nil, err
	}

	var resp sendResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding send response: %w", err)
	}
	return &SendResult{MessageID: resp.Key.ID, Status: resp.Status, Raw: raw}, nil
}

// request describes one gateway API call for do.
type request struct {
	operation string
	method    string
	path      string
	body      any
	result    any
}

// do executes a gateway call, trying each auth header strategy in order and
// accepting the first non-error response. When every variant fails, the error
// from the last attempt is surfaced.
func (c *Client) do(ctx context.Context, req request) error {
	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}
		payload = b
	}

	start := time.Now()
	var lastErr error

	for _, strategy := range c.strategies {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		strategy.Apply(httpReq, c.credential)
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("executing %s: %w", req.operation, err)
			continue
		}

		if resp.StatusCode >= 400 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			lastErr = &APIError{Operation: req.operation, Status: resp.StatusCode, Body: string(respBody)}
			c.logger.Debug("gateway auth strategy rejected",
				"operation", req.operation,
				"strategy", strategy.Name,
				"status", resp.StatusCode,
			)
			continue
		}

		var decodeErr error
		if req.result != nil {
			decodeErr = json.NewDecoder(resp.Body).Decode(req.result)
		}
		_ = resp.Body.Close()
		if decodeErr != nil {
			telemetry.GatewayCallDuration.WithLabelValues(req.operation, "error").Observe(time.Since(start).Seconds())
			return fmt.Errorf("decoding %s response: %w", req.operation, decodeErr)
		}

		telemetry.GatewayCallDuration.WithLabelValues(req.operation, "ok").Observe(time.Since(start).Seconds())
		return nil
	}

	telemetry.GatewayCallDuration.WithLabelValues(req.operation, "error").Observe(time.Since(start).Seconds())
	return lastErr
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
