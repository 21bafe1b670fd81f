package tenant

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vantagecrm/courier/internal/auth"
	"github.com/vantagecrm/courier/internal/httpserver"
)

// Handler exposes the tenant webhook configuration API.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler creates a tenant Handler.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Routes returns a chi.Router with the tenant admin routes mounted.
// Webhook configuration is owner/admin territory.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleOwner, auth.RoleAdmin))
		r.Get("/webhook", h.handleGetWebhook)
		r.Put("/webhook", h.handleUpdateWebhook)
	})
	return r
}

// WebhookConfigResponse is the JSON shape for the webhook config. The secret
// is never echoed back, only whether one is set.
type WebhookConfigResponse struct {
	URL       *string `json:"url"`
	HasSecret bool    `json:"has_secret"`
	Enabled   bool    `json:"enabled"`
}

// UpdateWebhookRequest is the payload for PUT /tenant/webhook.
type UpdateWebhookRequest struct {
	URL    *string `json:"url" validate:"omitempty,url,startswith=https://"`
	Secret *string `json:"secret" validate:"omitempty,min=16"`
}

func (h *Handler) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	info := FromContext(r.Context())

	cfg, err := h.store.GetWebhookConfig(r.Context(), info.ID)
	if err != nil {
		h.logger.Error("getting webhook config", "tenant_id", info.ID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to load webhook config")
		return
	}

	httpserver.Respond(w, http.StatusOK, WebhookConfigResponse{
		URL:       cfg.URL,
		HasSecret: cfg.Secret != nil && *cfg.Secret != "",
		Enabled:   cfg.Enabled(),
	})
}

func (h *Handler) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	var req UpdateWebhookRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	info := FromContext(r.Context())
	cfg := WebhookConfig{URL: req.URL, Secret: req.Secret}

	if err := h.store.UpdateWebhookConfig(r.Context(), info.ID, cfg); err != nil {
		h.logger.Error("updating webhook config", "tenant_id", info.ID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update webhook config")
		return
	}

	httpserver.Respond(w, http.StatusOK, WebhookConfigResponse{
		URL:       cfg.URL,
		HasSecret: cfg.Secret != nil && *cfg.Secret != "",
		Enabled:   cfg.Enabled(),
	})
}
