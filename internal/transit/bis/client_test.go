package bis_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridealert/ridealert/internal/transit"
	"github.com/ridealert/ridealert/internal/transit/bis"
)

// signedToken returns a JWT expiring at the given time, signed with a
// throwaway key. The client only reads the exp claim.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
		"iss": "bis-test",
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

// testServer wires a token endpoint and a data endpoint behind one mux.
type testServer struct {
	*httptest.Server
	tokenCalls atomic.Int32
	dataCalls  atomic.Int32
}

func newTestServer(t *testing.T, dataHandler http.HandlerFunc) *testServer {
	t.Helper()
	ts := &testServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		ts.tokenCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": signedToken(t, time.Now().Add(time.Hour)),
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ts.dataCalls.Add(1)
		dataHandler(w, r)
	})

	ts.Server = httptest.NewServer(mux)
	return ts
}

func newClient(ts *testServer) *bis.Client {
	tokens := bis.NewTokenSource(bis.TokenSourceConfig{
		TokenURL:     ts.URL + "/oauth/token",
		ClientID:     "cid",
		ClientSecret: "secret",
		Logger:       zerolog.Nop(),
	})

	return bis.NewClient(bis.ClientConfig{
		BaseURL: ts.URL,
		Tokens:  tokens,
		Pacer: bis.NewPacer(bis.PacerConfig{
			MinSpacing:   time.Millisecond,
			Window:       time.Second,
			MaxPerWindow: 100,
		}),
		Logger: zerolog.Nop(),
	})
}

func TestClient_FetchArrivals(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/arrivals", r.URL.Path)
		assert.Equal(t, "daejeon", r.URL.Query().Get("city"))
		assert.Equal(t, "701", r.URL.Query().Get("routeId"))
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")

		_, _ = w.Write([]byte(`{"arrivals":[
			{"stopId":"S1","routeId":"701","direction":0,"seconds":180,"status":"RUN"},
			{"stopId":"S2","routeId":"701","direction":1,"seconds":null,"status":"WAIT"},
			{"stopId":"S3","routeId":"701","direction":0,"seconds":null,"status":"NO_SERVICE"}
		]}`))
	})
	defer ts.Close()

	client := newClient(ts)

	estimates, err := client.FetchArrivals(context.Background(), "daejeon", "701")
	require.NoError(t, err)
	require.Len(t, estimates, 3)

	assert.Equal(t, "S1", estimates[0].StopID)
	assert.True(t, estimates[0].HasTime())
	assert.Equal(t, 180, *estimates[0].Seconds)
	assert.InDelta(t, 3.0, estimates[0].Minutes(), 0.001)

	assert.Equal(t, transit.StatusNotDeparted, estimates[1].Status)
	assert.False(t, estimates[1].HasTime())

	assert.Equal(t, transit.StatusNotOperating, estimates[2].Status)
}

func TestClient_FetchStops(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"stops":[
			{"stopId":"A","stopName":"City Hall","lat":36.35,"lon":127.38,"seq":0},
			{"stopId":"B","stopName":"Main St","lat":36.36,"lon":127.39,"seq":1}
		]}`))
	})
	defer ts.Close()

	client := newClient(ts)

	stops, err := client.FetchStops(context.Background(), "daejeon", "701")
	require.NoError(t, err)
	require.Len(t, stops, 2)
	assert.Equal(t, "Main St", stops[1].Name)
	assert.Equal(t, 1, stops[1].Sequence)
}

func TestClient_RefreshesTokenOn401(t *testing.T) {
	var rejected atomic.Bool

	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if !rejected.Swap(true) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"routes":[{"routeId":"701","routeName":"Express 701"}]}`))
	})
	defer ts.Close()

	client := newClient(ts)

	routes, err := client.FetchRoutes(context.Background(), "daejeon")
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "Express 701", routes[0].Name)

	// One token fetch for the first call, one after the 401.
	assert.Equal(t, int32(2), ts.tokenCalls.Load())
	assert.Equal(t, int32(2), ts.dataCalls.Load())
}

func TestClient_TokenCachedAcrossCalls(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"routes":[]}`))
	})
	defer ts.Close()

	client := newClient(ts)

	_, err := client.FetchRoutes(context.Background(), "daejeon")
	require.NoError(t, err)
	_, err = client.FetchRoutes(context.Background(), "daejeon")
	require.NoError(t, err)

	assert.Equal(t, int32(1), ts.tokenCalls.Load())
	assert.Equal(t, int32(2), ts.dataCalls.Load())
}
