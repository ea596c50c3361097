package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ridealert/ridealert/internal/api/models"
	"github.com/ridealert/ridealert/internal/api/response"
	"github.com/ridealert/ridealert/internal/destination"
)

// DestinationHandler handles destination-trip endpoints.
type DestinationHandler struct {
	monitor *destination.Monitor
}

// NewDestinationHandler creates a new DestinationHandler.
func NewDestinationHandler(monitor *destination.Monitor) *DestinationHandler {
	return &DestinationHandler{monitor: monitor}
}

// GetDestination handles GET /v1/destination.
func (h *DestinationHandler) GetDestination(w http.ResponseWriter, r *http.Request) {
	routeName, stopName := h.monitor.Destination()
	response.JSON(w, r, http.StatusOK,
		models.NewDestinationResponse(h.monitor.State(), routeName, stopName))
}

// SetDestination handles PUT /v1/destination.
func (h *DestinationHandler) SetDestination(w http.ResponseWriter, r *http.Request) {
	var req models.SetDestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid destination request", errs)
		return
	}

	h.monitor.SetDestination(r.Context(), req.RouteName, req.StopName)
	routeName, stopName := h.monitor.Destination()
	response.JSON(w, r, http.StatusOK,
		models.NewDestinationResponse(h.monitor.State(), routeName, stopName))
}

// ClearDestination handles DELETE /v1/destination.
func (h *DestinationHandler) ClearDestination(w http.ResponseWriter, r *http.Request) {
	h.monitor.ClearDestination(r.Context())
	response.NoContent(w, r)
}
