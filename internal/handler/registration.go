package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
	"github.com/go-chi/chi/v5"
)

// RegistrationHandler serves the ticketing endpoints. The caller's identity
// comes from Authenticator.RequireUser.
type RegistrationHandler struct {
	svc *service.RegistrationService
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(svc *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

// Register handles POST /events/{id}/register
// The body carries optional attendee details and may be empty.
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return
	}

	var details model.RegistrationDetails
	if err := decodeJSON(w, r, &details); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	view, err := h.svc.RegisterUserForEvent(r.Context(), userID, chi.URLParam(r, "id"), details)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

// MyTickets handles GET /me/tickets
func (h *RegistrationHandler) MyTickets(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return
	}

	views, err := h.svc.ListTicketsForUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if views == nil {
		views = []model.TicketView{}
	}

	writeJSON(w, http.StatusOK, views)
}
