package connection

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vantagecrm/courier/internal/auth"
	"github.com/vantagecrm/courier/internal/httpserver"
	"github.com/vantagecrm/courier/internal/vault"
	"github.com/vantagecrm/courier/pkg/gateway"
)

// Handler provides HTTP handlers for the connection lifecycle API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

type initResponse struct {
	Connection Response `json:"connection"`
}

type connectResponse struct {
	Status    string  `json:"status"`
	QRCodeURL *string `json:"qr_code_url,omitempty"`
	Message   string  `json:"message"`
}

type transitionResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewHandler creates a connection Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi.Router with the lifecycle routes mounted. Restart and
// disconnect require manager-or-above; the rest allow agents too.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/init", h.handleInit)
	r.Post("/connect", h.handleConnect)
	r.Get("/status", h.handleStatus)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleOwner, auth.RoleAdmin, auth.RoleManager))
		r.Post("/restart", h.handleRestart)
		r.Post("/disconnect", h.handleDisconnect)
	})
	return r
}

func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	var req InitRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id := auth.FromContext(r.Context())
	resp, err := h.service.Init(r.Context(), id.TenantID, id.UserID, id.Email, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyConnected):
			httpserver.RespondError(w, http.StatusConflict, "already_connected", "connection is already established")
		case errors.Is(err, ErrMissingCredential):
			httpserver.RespondError(w, http.StatusUnprocessableEntity, "missing_credential", "a gateway token is required for first-time setup")
		default:
			h.respondOpError(w, err, "initializing connection")
		}
		return
	}

	httpserver.Respond(w, http.StatusCreated, initResponse{Connection: resp})
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	resp, err := h.service.Connect(r.Context(), id.TenantID, id.UserID, id.Email)
	if err != nil {
		h.respondOpError(w, err, "connecting")
		return
	}
	msg := "connecting, scan the QR code to pair"
	if resp.QRCode == nil {
		msg = "connecting"
	}
	httpserver.Respond(w, http.StatusOK, connectResponse{
		Status:    resp.Status,
		QRCodeURL: resp.QRCode,
		Message:   msg,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	resp, err := h.service.Status(r.Context(), id.TenantID, id.UserID)
	if err != nil {
		h.respondOpError(w, err, "fetching connection status")
		return
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	resp, err := h.service.Restart(r.Context(), id.TenantID, id.UserID, id.Email)
	if err != nil {
		h.respondOpError(w, err, "restarting connection")
		return
	}
	httpserver.Respond(w, http.StatusOK, transitionResponse{
		Message: "connection restarted",
		Status:  resp.Status,
	})
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	resp, err := h.service.Disconnect(r.Context(), id.TenantID, id.UserID, id.Email)
	if err != nil {
		h.respondOpError(w, err, "disconnecting")
		return
	}
	httpserver.Respond(w, http.StatusOK, transitionResponse{
		Message: "connection disconnected",
		Status:  resp.Status,
	})
}

// respondOpError maps the shared error cases of the lifecycle operations.
func (h *Handler) respondOpError(w http.ResponseWriter, err error, action string) {
	var apiErr *gateway.APIError
	switch {
	case errors.Is(err, ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no active connection for this account")
	case errors.Is(err, vault.ErrInvalidCredential):
		h.logger.Error(action, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "invalid_credential", "stored gateway credential could not be decrypted")
	case errors.As(err, &apiErr):
		h.logger.Error(action, "error", err, "gateway_status", apiErr.Status)
		httpserver.RespondError(w, http.StatusBadGateway, "gateway_error", "the message gateway rejected the request")
	default:
		h.logger.Error(action, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed while "+action)
	}
}
