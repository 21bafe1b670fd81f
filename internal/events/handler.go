package events

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vantagecrm/courier/internal/auth"
	"github.com/vantagecrm/courier/internal/httpserver"
)

// Handler provides the read-side HTTP API for the lead event log.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler creates an events Handler.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Routes returns a chi.Router with the event log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	leadID, err := uuid.Parse(r.URL.Query().Get("lead_id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "lead_id query parameter is required")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 200 {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 200")
			return
		}
	}

	id := auth.FromContext(r.Context())
	entries, err := h.store.List(r.Context(), id.TenantID, leadID, limit)
	if err != nil {
		h.logger.Error("listing lead events", "error", err, "lead_id", leadID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list lead events")
		return
	}
	if entries == nil {
		entries = []Row{}
	}

	httpserver.Respond(w, http.StatusOK, entries)
}
