// Package models provides request and response models for the control API.
package models

import (
	"time"

	"github.com/ridealert/ridealert/internal/destination"
	"github.com/ridealert/ridealert/internal/transit"
	"github.com/ridealert/ridealert/internal/waiting"
)

// Health is the liveness payload.
type Health struct {
	Status  string            `json:"status"`
	Time    time.Time         `json:"time"`
	Details map[string]string `json:"details,omitempty"`
}

// CreateAlertRequest is the body for registering a waiting alert.
type CreateAlertRequest struct {
	RouteID     string `json:"routeId"`
	RouteName   string `json:"routeName"`
	StopID      string `json:"stopId"`
	StopName    string `json:"stopName"`
	Direction   int    `json:"direction"`
	LeadMinutes int    `json:"leadMinutes,omitempty"`
}

// Validate checks the required fields and value ranges.
func (r CreateAlertRequest) Validate() []FieldError {
	var errs []FieldError
	if r.RouteID == "" {
		errs = append(errs, FieldError{Field: "routeId", Message: "required"})
	}
	if r.RouteName == "" {
		errs = append(errs, FieldError{Field: "routeName", Message: "required"})
	}
	if r.StopID == "" {
		errs = append(errs, FieldError{Field: "stopId", Message: "required"})
	}
	if r.StopName == "" {
		errs = append(errs, FieldError{Field: "stopName", Message: "required"})
	}
	if r.Direction != int(transit.DirectionOutbound) && r.Direction != int(transit.DirectionInbound) {
		errs = append(errs, FieldError{Field: "direction", Message: "must be 0 (outbound) or 1 (inbound)"})
	}
	if r.LeadMinutes < 0 || r.LeadMinutes > 30 {
		errs = append(errs, FieldError{Field: "leadMinutes", Message: "must be between 0 and 30"})
	}
	return errs
}

// AlertResponse is one waiting alert as exposed by the API.
type AlertResponse struct {
	ID          string    `json:"id"`
	RouteID     string    `json:"routeId"`
	RouteName   string    `json:"routeName"`
	StopID      string    `json:"stopId"`
	StopName    string    `json:"stopName"`
	Direction   int       `json:"direction"`
	LeadMinutes int       `json:"leadMinutes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewAlertResponse maps a registry alert onto the API shape.
func NewAlertResponse(a waiting.Alert) AlertResponse {
	return AlertResponse{
		ID:          a.ID,
		RouteID:     a.RouteID,
		RouteName:   a.RouteName,
		StopID:      a.StopID,
		StopName:    a.StopName,
		Direction:   int(a.Direction),
		LeadMinutes: a.LeadMinutes,
		CreatedAt:   a.CreatedAt,
	}
}

// AlertListResponse wraps the alert collection.
type AlertListResponse struct {
	Alerts []AlertResponse `json:"alerts"`
}

// SetDestinationRequest is the body for starting a destination trip.
type SetDestinationRequest struct {
	RouteName string `json:"routeName"`
	StopName  string `json:"stopName"`
}

// Validate checks the required fields.
func (r SetDestinationRequest) Validate() []FieldError {
	var errs []FieldError
	if r.RouteName == "" {
		errs = append(errs, FieldError{Field: "routeName", Message: "required"})
	}
	if r.StopName == "" {
		errs = append(errs, FieldError{Field: "stopName", Message: "required"})
	}
	return errs
}

// DestinationResponse reports the current trip.
type DestinationResponse struct {
	State     string `json:"state"`
	RouteName string `json:"routeName,omitempty"`
	StopName  string `json:"stopName,omitempty"`
}

// NewDestinationResponse maps the monitor state onto the API shape.
func NewDestinationResponse(state destination.State, routeName, stopName string) DestinationResponse {
	return DestinationResponse{
		State:     state.String(),
		RouteName: routeName,
		StopName:  stopName,
	}
}

// PositionUpdate is a device position pushed by the UI.
type PositionUpdate struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	AccuracyMeters float64 `json:"accuracyMeters,omitempty"`
}

// Validate checks coordinate ranges.
func (p PositionUpdate) Validate() []FieldError {
	var errs []FieldError
	if p.Lat < -90 || p.Lat > 90 {
		errs = append(errs, FieldError{Field: "lat", Message: "must be between -90 and 90"})
	}
	if p.Lon < -180 || p.Lon > 180 {
		errs = append(errs, FieldError{Field: "lon", Message: "must be between -180 and 180"})
	}
	return errs
}
