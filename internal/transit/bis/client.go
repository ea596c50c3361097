// Package bis implements the transit.Gateway contract against the city bus
// information service API: bearer-token auth, paced requests, and bounded
// retries on throttling.
package bis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ridealert/ridealert/internal/transit"
	"github.com/ridealert/ridealert/internal/upstream"
)

const (
	// ProviderName identifies this upstream provider.
	ProviderName = "bis"

	// DefaultBaseURL is the bus information service API base URL.
	DefaultBaseURL = "https://openapi.businfo.example/api/v2"
)

// ClientConfig holds configuration for the BIS client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// Tokens supplies bearer tokens (required).
	Tokens *TokenSource

	// Pacer throttles outgoing requests. If nil, a pacer with defaults
	// (3s spacing, 18 requests per minute) is used.
	Pacer *Pacer

	// HTTPClient executes data requests. If nil, a resilient client with
	// the 429 retry schedule (2s/4s/8s, 3 retries) is used.
	HTTPClient *upstream.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is the arrival-data gateway over the BIS API.
type Client struct {
	baseURL    string
	tokens     *TokenSource
	pacer      *Pacer
	httpClient *upstream.Client
	logger     zerolog.Logger

	requests metric.Int64Counter
}

// NewClient creates a BIS gateway client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	pacer := cfg.Pacer
	if pacer == nil {
		pacer = NewPacer(PacerConfig{})
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = upstream.NewClient(upstream.ClientConfig{Name: ProviderName})
	}

	meter := otel.Meter("ridealert/transit/bis")
	requests, _ := meter.Int64Counter("upstream.requests",
		metric.WithDescription("Upstream BIS API requests by endpoint and outcome"))

	return &Client{
		baseURL:    baseURL,
		tokens:     cfg.Tokens,
		pacer:      pacer,
		httpClient: httpClient,
		logger:     cfg.Logger,
		requests:   requests,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchRoutes lists the routes available in a city.
func (c *Client) FetchRoutes(ctx context.Context, city string) ([]transit.Route, error) {
	query := url.Values{"city": {city}}

	var wire routesResponse
	if err := c.get(ctx, "/routes", query, &wire); err != nil {
		return nil, err
	}

	routes := make([]transit.Route, 0, len(wire.Routes))
	for _, r := range wire.Routes {
		routes = append(routes, transit.Route{ID: r.ID, Name: r.Name, City: city})
	}
	return routes, nil
}

// FetchStops lists the stops of a route in sequence order.
func (c *Client) FetchStops(ctx context.Context, city, routeID string) ([]transit.Stop, error) {
	query := url.Values{"city": {city}, "routeId": {routeID}}

	var wire stopsResponse
	if err := c.get(ctx, "/stops", query, &wire); err != nil {
		return nil, err
	}

	stops := make([]transit.Stop, 0, len(wire.Stops))
	for _, s := range wire.Stops {
		stops = append(stops, transit.Stop{
			ID:       s.ID,
			Name:     s.Name,
			Lat:      s.Lat,
			Lon:      s.Lon,
			Sequence: s.Sequence,
		})
	}
	return stops, nil
}

// FetchArrivals returns current arrival estimates for every stop of a route.
func (c *Client) FetchArrivals(ctx context.Context, city, routeID string) ([]transit.ArrivalEstimate, error) {
	query := url.Values{"city": {city}, "routeId": {routeID}}

	var wire arrivalsResponse
	if err := c.get(ctx, "/arrivals", query, &wire); err != nil {
		return nil, err
	}

	estimates := make([]transit.ArrivalEstimate, 0, len(wire.Arrivals))
	for _, a := range wire.Arrivals {
		estimates = append(estimates, transit.ArrivalEstimate{
			StopID:    a.StopID,
			RouteID:   a.RouteID,
			Direction: transit.Direction(a.Direction),
			Seconds:   a.Seconds,
			Status:    mapStatus(a.Status),
		})
	}
	return estimates, nil
}

// get performs a paced, authenticated GET. On a 401 it invalidates the cached
// token and retries exactly once with a fresh one.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	err := c.getOnce(ctx, path, query, out)
	if errors.Is(err, upstream.ErrUnauthorized) {
		c.logger.Warn().Str("path", path).Msg("token rejected, refreshing and retrying once")
		c.tokens.Invalidate()
		err = c.getOnce(ctx, path, query, out)
	}

	if err != nil {
		c.count(ctx, path, "error")
		if errors.Is(err, upstream.ErrCircuitOpen) {
			return fmt.Errorf("%w: %v", transit.ErrUpstreamUnavailable, err)
		}
		return err
	}

	c.count(ctx, path, "ok")
	return nil
}

func (c *Client) getOnce(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for request quota: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("obtaining token: %w", err)
	}

	u := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) count(ctx context.Context, path, outcome string) {
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", path),
		attribute.String("outcome", outcome),
	))
}

// mapStatus maps BIS wire status codes to domain statuses.
func mapStatus(code string) transit.ArrivalStatus {
	switch code {
	case "RUN":
		return transit.StatusNormal
	case "WAIT":
		return transit.StatusNotDeparted
	case "PASS":
		return transit.StatusSkipped
	case "END":
		return transit.StatusLastBusPassed
	case "NO_SERVICE":
		return transit.StatusNotOperating
	default:
		return transit.StatusNotOperating
	}
}

// BIS API response structures.

type routesResponse struct {
	Routes []bisRoute `json:"routes"`
}

type bisRoute struct {
	ID   string `json:"routeId"`
	Name string `json:"routeName"`
}

type stopsResponse struct {
	Stops []bisStop `json:"stops"`
}

type bisStop struct {
	ID       string  `json:"stopId"`
	Name     string  `json:"stopName"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Sequence int     `json:"seq"`
}

type arrivalsResponse struct {
	Arrivals []bisArrival `json:"arrivals"`
}

type bisArrival struct {
	StopID    string `json:"stopId"`
	RouteID   string `json:"routeId"`
	Direction int    `json:"direction"`
	Seconds   *int   `json:"seconds"`
	Status    string `json:"status"`
}

// Ensure Client satisfies the gateway contract.
var _ transit.Gateway = (*Client)(nil)
