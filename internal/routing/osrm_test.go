package routing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focus-walker/internal/models"
)

var (
	testStart = models.RenderPoint{Lat: 48.8566, Lng: 2.3522}
	testEnd   = models.RenderPoint{Lat: 48.8606, Lng: 2.3376}
)

func newTestRouter(server *httptest.Server, timeout time.Duration) *osrmRouter {
	return &osrmRouter{
		baseURL:    server.URL,
		profile:    "foot",
		httpClient: server.Client(),
		timeout:    timeout,
	}
}

func candidate(distance float64, coords ...[]float64) osrmRoute {
	var r osrmRoute
	r.Distance = distance
	r.Geometry.Type = "LineString"
	r.Geometry.Coordinates = coords
	return r
}

func TestFetchRoute_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/route/v1/foot/"))
		assert.Contains(t, r.URL.Path, "2.352200,48.856600;2.337600,48.860600")
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		assert.Equal(t, "full", r.URL.Query().Get("overview"))

		resp := osrmRouteResponse{
			Code: "Ok",
			Routes: []osrmRoute{
				candidate(5000, []float64{2.3522, 48.8566}, []float64{2.345, 48.858}, []float64{2.3376, 48.8606}),
				candidate(9000, []float64{0, 0}, []float64{1, 1}),
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	router := newTestRouter(server, time.Second)
	speed := 5000.0 / 3600.0

	route, err := router.FetchRoute(context.Background(), testStart, testEnd, speed)
	require.NoError(t, err)

	// First candidate is selected
	assert.Equal(t, 5000.0, route.TotalDistanceMeters)
	assert.InDelta(t, 3600, route.DurationSeconds, 0.001)

	require.Len(t, route.CalcLine, 3)
	require.Len(t, route.RenderPath, 3)
	assert.Equal(t, models.CalcPoint{Lng: 2.3522, Lat: 48.8566}, route.CalcLine[0])
	assert.Equal(t, models.RenderPoint{Lat: 48.8566, Lng: 2.3522}, route.RenderPath[0])
	assert.Equal(t, models.RenderPoint{Lat: 48.8606, Lng: 2.3376}, route.RenderPath[2])
}

func TestFetchRoute_ErrorCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Error"}`))
	}))
	defer server.Close()

	router := newTestRouter(server, time.Second)

	route, err := router.FetchRoute(context.Background(), testStart, testEnd, 1.4)
	require.Error(t, err)
	assert.Nil(t, route)

	var unavailable *ErrRouteUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, unavailable.Reason, "Error")
	assert.Equal(t, testStart, unavailable.Start)
}

func TestFetchRoute_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[]}`))
	}))
	defer server.Close()

	router := newTestRouter(server, time.Second)

	_, err := router.FetchRoute(context.Background(), testStart, testEnd, 1.4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRouteFound))
}

func TestFetchRoute_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("Bad Gateway"))
	}))
	defer server.Close()

	router := newTestRouter(server, time.Second)

	_, err := router.FetchRoute(context.Background(), testStart, testEnd, 1.4)
	require.Error(t, err)

	var unavailable *ErrRouteUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, unavailable.Reason, "HTTP 502")
}

func TestFetchRoute_ProviderNoRouteCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"NoRoute","message":"Impossible route between points"}`))
	}))
	defer server.Close()

	router := newTestRouter(server, time.Second)

	_, err := router.FetchRoute(context.Background(), testStart, testEnd, 1.4)

	var unavailable *ErrRouteUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, unavailable.Reason, "NoRoute")
}

func TestFetchRoute_MalformedGeometry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":100,"geometry":{"type":"LineString","coordinates":[[2.35,48.85]]}}]}`))
	}))
	defer server.Close()

	router := newTestRouter(server, time.Second)

	_, err := router.FetchRoute(context.Background(), testStart, testEnd, 1.4)

	var unavailable *ErrRouteUnavailable
	require.ErrorAs(t, err, &unavailable)
}

func TestFetchRoute_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	router := newTestRouter(server, time.Second)

	_, err := router.FetchRoute(context.Background(), testStart, testEnd, 1.4)

	var unavailable *ErrRouteUnavailable
	require.ErrorAs(t, err, &unavailable)
}

func TestFetchRoute_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	router := newTestRouter(server, 50*time.Millisecond)

	start := time.Now()
	_, err := router.FetchRoute(context.Background(), testStart, testEnd, 1.4)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var unavailable *ErrRouteUnavailable
	require.ErrorAs(t, err, &unavailable)
}

func TestFetchRoute_InvalidSpeed(t *testing.T) {
	router := &osrmRouter{
		baseURL:    "http://not-called",
		httpClient: http.DefaultClient,
		timeout:    time.Second,
	}

	_, err := router.FetchRoute(context.Background(), testStart, testEnd, 0)
	require.Error(t, err)
}

func TestNormalizeRoute_DoesNotMutateSource(t *testing.T) {
	src := candidate(0, []float64{0, 0}, []float64{0.01, 0})

	route, err := normalizeRoute(src, 1.0)
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{0, 0}, {0.01, 0}}, src.Geometry.Coordinates)
	// Zero provider distance falls back to the geometry length
	assert.Greater(t, route.TotalDistanceMeters, 1000.0)
	assert.InDelta(t, route.TotalDistanceMeters, route.DurationSeconds, 0.0001)
}
