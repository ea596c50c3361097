// Package waiting manages the collection of independent "waiting for a bus
// at a stop" alerts: route-batched polling of arrival estimates, single-fire
// notification decisions, and auto-expiry.
package waiting

import (
	"errors"
	"time"

	"github.com/ridealert/ridealert/internal/transit"
)

// Registry errors.
var (
	// ErrDuplicateStop is returned when an alert already watches the stop.
	// The registry state is unchanged; at most one alert per stop id.
	ErrDuplicateStop = errors.New("an alert already exists for this stop")

	// ErrAlertNotFound is returned when removing an unknown alert id.
	ErrAlertNotFound = errors.New("alert not found")
)

// DefaultLeadMinutes is the requested lead time when the rider does not
// pick one.
const DefaultLeadMinutes = 3

// Alert is one standing watch on a (route, stop) pair.
type Alert struct {
	ID          string            `json:"id"`
	RouteID     string            `json:"routeId"`
	RouteName   string            `json:"routeName"`
	StopID      string            `json:"stopId"`
	StopName    string            `json:"stopName"`
	Direction   transit.Direction `json:"direction"`
	LeadMinutes int               `json:"leadMinutes"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Age returns how long the alert has existed as of now.
func (a Alert) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}
