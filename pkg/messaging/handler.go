package messaging

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vantagecrm/courier/internal/auth"
	"github.com/vantagecrm/courier/internal/httpserver"
	"github.com/vantagecrm/courier/internal/vault"
)

// Handler provides HTTP handlers for the messaging API.
type Handler struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewHandler creates a messaging Handler.
func NewHandler(pipeline *Pipeline, logger *slog.Logger) *Handler {
	return &Handler{pipeline: pipeline, logger: logger}
}

// Routes returns a chi.Router with the messaging routes mounted. Sending is
// open to all roles including agents.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/send", h.handleSend)
	return r
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id := auth.FromContext(r.Context())
	outcome, err := h.pipeline.Send(r.Context(), id.TenantID, id.UserID, id.Email, req)
	if err != nil {
		h.respondSendError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, outcome)
}

func (h *Handler) respondSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRateLimited):
		httpserver.RespondError(w, http.StatusTooManyRequests, "rate_limited", "send limit reached, try again shortly")
	case errors.Is(err, ErrLeadNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "lead_not_found", "lead not found")
	case errors.Is(err, ErrLeadMissingPhone):
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "lead_missing_phone", "lead has no phone number to send to")
	case errors.Is(err, ErrNoActiveConnection):
		httpserver.RespondError(w, http.StatusConflict, "no_active_connection", "no gateway connection is configured")
	case errors.Is(err, ErrNotConnected):
		httpserver.RespondError(w, http.StatusConflict, "not_connected", "gateway connection is not connected")
	case errors.Is(err, ErrGatewaySend):
		h.logger.Error("sending message", "error", err)
		httpserver.RespondError(w, http.StatusBadGateway, "gateway_send_failed", "the message gateway rejected the send")
	case errors.Is(err, vault.ErrInvalidCredential):
		h.logger.Error("sending message", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "invalid_credential", "stored gateway credential could not be decrypted")
	default:
		h.logger.Error("sending message", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to send message")
	}
}
