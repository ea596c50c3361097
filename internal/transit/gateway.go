package transit

import (
	"context"
)

// Gateway is the contract for the throttled upstream arrival-data client.
// Implementations own token handling, request pacing, and bounded retries;
// callers must tolerate visible latency while the gateway waits out its
// request quota, and must never assume an unlimited call budget.
type Gateway interface {
	// FetchRoutes lists the routes available in a city.
	FetchRoutes(ctx context.Context, city string) ([]Route, error)

	// FetchStops lists the stops of a route in sequence order.
	FetchStops(ctx context.Context, city, routeID string) ([]Stop, error)

	// FetchArrivals returns the current arrival estimates for every stop of
	// a route, both directions. The result replaces any previous estimates.
	FetchArrivals(ctx context.Context, city, routeID string) ([]ArrivalEstimate, error)
}
