package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridealert/ridealert/internal/announce"
	"github.com/ridealert/ridealert/internal/api"
	"github.com/ridealert/ridealert/internal/destination"
	"github.com/ridealert/ridealert/internal/kvstore"
	"github.com/ridealert/ridealert/internal/location"
	"github.com/ridealert/ridealert/internal/notify"
	"github.com/ridealert/ridealert/internal/prefs"
	"github.com/ridealert/ridealert/internal/speech"
	"github.com/ridealert/ridealert/internal/transit"
	"github.com/ridealert/ridealert/internal/waiting"
)

type noopGateway struct{}

func (noopGateway) FetchRoutes(context.Context, string) ([]transit.Route, error) { return nil, nil }
func (noopGateway) FetchStops(context.Context, string, string) ([]transit.Stop, error) {
	return nil, nil
}
func (noopGateway) FetchArrivals(context.Context, string, string) ([]transit.ArrivalEstimate, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := zerolog.Nop()
	gate := announce.NewGate(announce.GateConfig{
		Engine: speech.NewLogEngine(logger),
		Logger: logger,
	})
	store := kvstore.NewMemory()

	registry := waiting.NewRegistry(context.Background(), waiting.RegistryConfig{
		Gateway:  noopGateway{},
		City:     "ulsan",
		Gate:     gate,
		Notifier: notify.NewMemory(),
		Repo:     waiting.NewStoreRepository(store),
		Logger:   logger,
	})

	tracker := location.NewTracker(location.TrackerConfig{Logger: logger})
	monitor := destination.NewMonitor(destination.MonitorConfig{
		Gate:     gate,
		Notifier: notify.NewMemory(),
		Tracker:  tracker,
		Logger:   logger,
	})

	preferences, err := prefs.NewService(context.Background(), prefs.ServiceConfig{
		Store:  store,
		Logger: logger,
	})
	require.NoError(t, err)

	return api.NewRouter(api.RouterConfig{
		Version:     "test",
		Logger:      logger,
		Registry:    registry,
		Monitor:     monitor,
		Preferences: preferences,
		Tracker:     tracker,
	})
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/v1/ops/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "OK", health["status"])
}

func TestRouter_AlertLifecycle(t *testing.T) {
	router := newTestRouter(t)

	body := `{"routeId":"r104","routeName":"104","stopId":"s55","stopName":"Cedar Plaza","direction":0,"leadMinutes":3}`
	rec := doJSON(t, router, http.MethodPost, "/v1/alerts", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/v1/alerts/")

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	// Same stop again conflicts.
	rec = doJSON(t, router, http.MethodPost, "/v1/alerts", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = doJSON(t, router, http.MethodGet, "/v1/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Alerts []json.RawMessage `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Alerts, 1)

	rec = doJSON(t, router, http.MethodDelete, "/v1/alerts/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/v1/alerts/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CreateAlertValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/alerts", `{"routeId":"r104"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem struct {
		Errors []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.NotEmpty(t, problem.Errors)
}

func TestRouter_DestinationLifecycle(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPut, "/v1/destination", `{"routeName":"701","stopName":"Cedar Plaza"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var dest struct {
		State    string `json:"state"`
		StopName string `json:"stopName"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dest))
	assert.Equal(t, "tracking", dest.State)
	assert.Equal(t, "Cedar Plaza", dest.StopName)

	rec = doJSON(t, router, http.MethodDelete, "/v1/destination", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/v1/destination", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dest))
	assert.Equal(t, "idle", dest.State)
}

func TestRouter_Preferences(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/v1/preferences", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/v1/preferences", `{"leadStops":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/v1/preferences", `{"leadStops":4,"audioEnabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var p struct {
		LeadStops    int  `json:"leadStops"`
		AudioEnabled bool `json:"audioEnabled"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 4, p.LeadStops)
	assert.False(t, p.AudioEnabled)
}

func TestRouter_PushPosition(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/location", `{"lat":35.51,"lon":129.30,"accuracyMeters":12}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/location", `{"lat":123.0,"lon":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
