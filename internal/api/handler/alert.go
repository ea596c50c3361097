package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ridealert/ridealert/internal/api/models"
	"github.com/ridealert/ridealert/internal/api/response"
	"github.com/ridealert/ridealert/internal/transit"
	"github.com/ridealert/ridealert/internal/waiting"
)

// AlertHandler handles waiting-alert endpoints.
type AlertHandler struct {
	registry *waiting.Registry
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(registry *waiting.Registry) *AlertHandler {
	return &AlertHandler{registry: registry}
}

// ListAlerts handles GET /v1/alerts.
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.registry.ActiveAlerts()
	out := models.AlertListResponse{Alerts: make([]models.AlertResponse, 0, len(alerts))}
	for _, a := range alerts {
		out.Alerts = append(out.Alerts, models.NewAlertResponse(a))
	}
	response.JSON(w, r, http.StatusOK, out)
}

// CreateAlert handles POST /v1/alerts.
func (h *AlertHandler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid alert request", errs)
		return
	}

	alert, err := h.registry.Add(r.Context(), req.RouteID, req.RouteName, req.StopID, req.StopName,
		transit.Direction(req.Direction), req.LeadMinutes)
	if err != nil {
		if errors.Is(err, waiting.ErrDuplicateStop) {
			response.Conflict(w, r, "an alert already exists for this stop")
			return
		}
		response.InternalError(w, r, "could not create alert")
		return
	}

	response.Created(w, r, "/v1/alerts/"+alert.ID, models.NewAlertResponse(alert))
}

// DeleteAlert handles DELETE /v1/alerts/{alertId}.
func (h *AlertHandler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "alertId")
	if err := h.registry.Remove(r.Context(), id); err != nil {
		if errors.Is(err, waiting.ErrAlertNotFound) {
			response.NotFound(w, r, "no alert with id "+id)
			return
		}
		response.InternalError(w, r, "could not remove alert")
		return
	}
	response.NoContent(w, r)
}

// DeleteAllAlerts handles DELETE /v1/alerts.
func (h *AlertHandler) DeleteAllAlerts(w http.ResponseWriter, r *http.Request) {
	h.registry.ClearAll(r.Context())
	response.NoContent(w, r)
}
