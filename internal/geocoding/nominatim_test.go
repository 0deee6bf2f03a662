package geocoding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focus-walker/internal/models"
)

func newTestGeocoder(server *httptest.Server) *nominatimGeocoder {
	return &nominatimGeocoder{
		baseURL: server.URL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		rateLimiter: time.NewTicker(1 * time.Millisecond), // Fast rate limit for testing
	}
}

func TestNominatimReverseSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "48.856600", r.URL.Query().Get("lat"))
		assert.Equal(t, "2.352200", r.URL.Query().Get("lon"))
		assert.Equal(t, "FocusWalker/1.0", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"display_name": "Le Marais, Paris, France",
			"address": {"suburb": "Le Marais", "city": "Paris", "country": "France"}
		}`))
	}))
	defer server.Close()

	geocoder := newTestGeocoder(server)

	place, err := geocoder.Reverse(context.Background(), models.RenderPoint{Lat: 48.8566, Lng: 2.3522})
	require.NoError(t, err)
	assert.Equal(t, "Le Marais, Paris", place.Name)
	assert.Equal(t, "Le Marais, Paris, France", place.DisplayName)
}

func TestNominatimReverseProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "Unable to geocode"}`))
	}))
	defer server.Close()

	geocoder := newTestGeocoder(server)

	place, err := geocoder.Reverse(context.Background(), models.RenderPoint{Lat: 0, Lng: 0})
	require.Error(t, err)
	assert.Nil(t, place)

	geocodingErr, ok := err.(*ErrGeocodingFailed)
	require.True(t, ok)
	assert.Equal(t, "Unable to geocode", geocodingErr.Reason)
}

func TestNominatimReverseMissingAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"display_name": "somewhere"}`))
	}))
	defer server.Close()

	geocoder := newTestGeocoder(server)

	_, err := geocoder.Reverse(context.Background(), models.RenderPoint{Lat: 1, Lng: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing address")
}

func TestNominatimReverseHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	geocoder := newTestGeocoder(server)

	_, err := geocoder.Reverse(context.Background(), models.RenderPoint{Lat: 1, Lng: 1})
	require.Error(t, err)

	geocodingErr, ok := err.(*ErrGeocodingFailed)
	require.True(t, ok)
	assert.Contains(t, geocodingErr.Reason, "HTTP 500")
}

func TestNominatimSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "central park", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))

		response := []nominatimResponse{
			{Lat: "40.7829", Lon: "-73.9654", DisplayName: "Central Park, New York", Address: &nominatimAddress{Suburb: "Manhattan", City: "New York"}},
			{Lat: "invalid", Lon: "-73.0", DisplayName: "Broken"},
			{Lat: "51.5", Lon: "-0.1", DisplayName: "Central Park, London"},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	geocoder := newTestGeocoder(server)

	places, err := geocoder.Search(context.Background(), "central park", 3)
	require.NoError(t, err)
	require.Len(t, places, 2)

	assert.Equal(t, "Manhattan, New York", places[0].Name)
	assert.Equal(t, models.RenderPoint{Lat: 40.7829, Lng: -73.9654}, places[0].Point)
	assert.Equal(t, "Central Park, London", places[1].Name)
}

func TestNominatimContextCancelled(t *testing.T) {
	geocoder := &nominatimGeocoder{
		baseURL:     "http://unused",
		httpClient:  http.DefaultClient,
		rateLimiter: time.NewTicker(time.Hour),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := geocoder.Reverse(ctx, models.RenderPoint{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

type stubGeocoder struct {
	place *Place
	err   error
}

func (s *stubGeocoder) Reverse(ctx context.Context, p models.RenderPoint) (*Place, error) {
	return s.place, s.err
}

func (s *stubGeocoder) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	return nil, s.err
}

func TestLabel(t *testing.T) {
	p := models.RenderPoint{Lat: 1, Lng: 2}
	ctx := context.Background()

	assert.Equal(t, "Riverside", Label(ctx, &stubGeocoder{place: &Place{Name: "Riverside"}}, p, "Checkpoint 1"))
	assert.Equal(t, "Checkpoint 2", Label(ctx, &stubGeocoder{err: &ErrGeocodingFailed{Reason: "down"}}, p, "Checkpoint 2"))
	assert.Equal(t, "Checkpoint 3", Label(ctx, nil, p, "Checkpoint 3"))
}

func TestPlaceName(t *testing.T) {
	testCases := []struct {
		name     string
		address  nominatimAddress
		expected string
	}{
		{"local and city", nominatimAddress{Road: "Main St", City: "Springfield"}, "Main St, Springfield"},
		{"neighbourhood wins over road", nominatimAddress{Neighbourhood: "Old Town", Road: "Main St"}, "Old Town"},
		{"village only", nominatimAddress{Village: "Hamlet"}, "Hamlet"},
		{"country fallback", nominatimAddress{Country: "Iceland"}, "Iceland"},
		{"empty", nominatimAddress{}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, placeName(&tc.address))
		})
	}
}
