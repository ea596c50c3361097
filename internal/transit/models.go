// Package transit defines the transit data model and the upstream gateway
// contract consumed by the destination monitor and the waiting-alert registry.
package transit

import (
	"errors"
)

// Gateway errors.
var (
	// ErrNoData indicates the upstream returned no usable data this cycle.
	// Callers treat it as "skip this tick", never as a fatal condition.
	ErrNoData = errors.New("no arrival data available")

	// ErrUpstreamUnavailable indicates the upstream could not be reached
	// after the gateway exhausted its bounded retries.
	ErrUpstreamUnavailable = errors.New("upstream transit service unavailable")
)

// Route identifies a bus route within a city.
type Route struct {
	ID   string
	Name string
	City string
}

// Stop is one stop along a route and direction. Immutable once fetched.
type Stop struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64

	// Sequence is the ordinal position of the stop within its
	// route+direction, starting at 0.
	Sequence int
}

// Direction distinguishes the two travel directions of a route.
type Direction int

// Route directions.
const (
	DirectionOutbound Direction = 0
	DirectionInbound  Direction = 1
)

// ArrivalStatus describes the upstream estimate state for a stop.
type ArrivalStatus int

// Arrival statuses as mapped from upstream status codes.
const (
	StatusNormal ArrivalStatus = iota
	StatusNotDeparted
	StatusSkipped
	StatusLastBusPassed
	StatusNotOperating
)

// String returns a log-friendly status name.
func (s ArrivalStatus) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusNotDeparted:
		return "not_departed"
	case StatusSkipped:
		return "skipped"
	case StatusLastBusPassed:
		return "last_bus_passed"
	case StatusNotOperating:
		return "not_operating"
	default:
		return "unknown"
	}
}

// ArrivalEstimate is one stop's estimated arrival for a route and direction.
// Estimates are ephemeral: each poll replaces the previous set wholesale.
type ArrivalEstimate struct {
	StopID    string
	RouteID   string
	Direction Direction

	// Seconds is the estimated seconds to arrival. Nil when the upstream
	// reports a status with no usable time.
	Seconds *int

	Status ArrivalStatus
}

// HasTime reports whether the estimate carries a usable arrival time.
func (e ArrivalEstimate) HasTime() bool {
	return e.Seconds != nil && e.Status == StatusNormal
}

// Minutes returns the estimate in fractional minutes. Only meaningful when
// HasTime is true.
func (e ArrivalEstimate) Minutes() float64 {
	if e.Seconds == nil {
		return 0
	}
	return float64(*e.Seconds) / 60
}
