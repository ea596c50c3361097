package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ridealert/ridealert/internal/api/models"
	"github.com/ridealert/ridealert/internal/api/response"
	"github.com/ridealert/ridealert/internal/location"
	"github.com/ridealert/ridealert/pkg/geo"
)

// LocationHandler ingests device position updates pushed by the UI.
type LocationHandler struct {
	tracker *location.Tracker
}

// NewLocationHandler creates a new LocationHandler.
func NewLocationHandler(tracker *location.Tracker) *LocationHandler {
	return &LocationHandler{tracker: tracker}
}

// PushPosition handles POST /v1/location.
func (h *LocationHandler) PushPosition(w http.ResponseWriter, r *http.Request) {
	var req models.PositionUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid position", errs)
		return
	}

	h.tracker.Update(location.Position{
		Coordinate:     geo.Coordinate{Lat: req.Lat, Lon: req.Lon},
		AccuracyMeters: req.AccuracyMeters,
		Timestamp:      time.Now().UTC(),
	})
	response.Accepted(w, r, nil)
}
