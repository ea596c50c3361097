package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ridealert/ridealert/internal/api/models"
	"github.com/ridealert/ridealert/internal/api/response"
	"github.com/ridealert/ridealert/internal/prefs"
)

// PreferencesHandler handles rider-preference endpoints.
type PreferencesHandler struct {
	service *prefs.Service
}

// NewPreferencesHandler creates a new PreferencesHandler.
func NewPreferencesHandler(service *prefs.Service) *PreferencesHandler {
	return &PreferencesHandler{service: service}
}

// GetPreferences handles GET /v1/preferences.
func (h *PreferencesHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.service.Get())
}

// UpdatePreferences handles PATCH /v1/preferences.
func (h *PreferencesHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch prefs.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	updated, err := h.service.Update(r.Context(), patch)
	if err != nil {
		switch {
		case errors.Is(err, prefs.ErrInvalidLeadStops):
			response.BadRequest(w, r, err.Error(), []models.FieldError{{Field: "leadStops", Message: err.Error()}})
		case errors.Is(err, prefs.ErrInvalidRate):
			response.BadRequest(w, r, err.Error(), []models.FieldError{{Field: "speechRate", Message: err.Error()}})
		case errors.Is(err, prefs.ErrInvalidVolume):
			response.BadRequest(w, r, err.Error(), []models.FieldError{{Field: "speechVolume", Message: err.Error()}})
		default:
			response.InternalError(w, r, "could not update preferences")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, updated)
}
