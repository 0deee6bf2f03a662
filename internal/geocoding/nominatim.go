package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"focus-walker/internal/models"
)

// Place is a named location returned by the geocoding provider
type Place struct {
	Point       models.RenderPoint `json:"point"`
	Name        string             `json:"name"`
	DisplayName string             `json:"display_name"`
}

// Geocoder looks up place names for coordinates and coordinates for queries
type Geocoder interface {
	Reverse(ctx context.Context, p models.RenderPoint) (*Place, error)
	Search(ctx context.Context, query string, limit int) ([]Place, error)
}

// ErrGeocodingFailed is returned when a lookup cannot be completed
type ErrGeocodingFailed struct {
	Query  string
	Reason string
}

func (e *ErrGeocodingFailed) Error() string {
	return fmt.Sprintf("geocoding failed for %s - %s", e.Query, e.Reason)
}

type nominatimGeocoder struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *time.Ticker
}

type nominatimAddress struct {
	Road          string `json:"road"`
	Neighbourhood string `json:"neighbourhood"`
	Suburb        string `json:"suburb"`
	Village       string `json:"village"`
	Town          string `json:"town"`
	City          string `json:"city"`
	Country       string `json:"country"`
}

type nominatimResponse struct {
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	DisplayName string            `json:"display_name"`
	Address     *nominatimAddress `json:"address"`
	Error       string            `json:"error"`
}

// NewNominatimGeocoder creates a Nominatim geocoder limited to one request per second
func NewNominatimGeocoder(baseURL string) Geocoder {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &nominatimGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		rateLimiter: time.NewTicker(1 * time.Second),
	}
}

func (g *nominatimGeocoder) wait(ctx context.Context) error {
	select {
	case <-g.rateLimiter.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *nominatimGeocoder) get(ctx context.Context, query, queryURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to create geocoding request: query=%s err=%v", query, err)
		return &ErrGeocodingFailed{Query: query, Reason: err.Error()}
	}

	req.Header.Set("User-Agent", "FocusWalker/1.0")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.Printf("[ERROR] Geocoding API request failed: query=%s err=%v", query, err)
		return &ErrGeocodingFailed{Query: query, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("[ERROR] Geocoding API error: query=%s status=%d body=%s", query, resp.StatusCode, string(body))
		return &ErrGeocodingFailed{
			Query:  query,
			Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Printf("[ERROR] Failed to decode geocoding response: query=%s err=%v", query, err)
		return &ErrGeocodingFailed{Query: query, Reason: err.Error()}
	}
	return nil
}

func (g *nominatimGeocoder) Reverse(ctx context.Context, p models.RenderPoint) (*Place, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
	queryURL := fmt.Sprintf("%s/reverse?lat=%.6f&lon=%.6f&format=json&zoom=16", g.baseURL, p.Lat, p.Lng)
	log.Printf("[GEOCODING] Reverse request: point=%s", query)

	var result nominatimResponse
	if err := g.get(ctx, query, queryURL, &result); err != nil {
		return nil, err
	}

	if result.Error != "" {
		log.Printf("[GEOCODING] Reverse lookup returned error: point=%s error=%s", query, result.Error)
		return nil, &ErrGeocodingFailed{Query: query, Reason: result.Error}
	}
	if result.Address == nil {
		log.Printf("[ERROR] Reverse response missing address: point=%s", query)
		return nil, &ErrGeocodingFailed{Query: query, Reason: "missing address"}
	}

	name := placeName(result.Address)
	if name == "" {
		return nil, &ErrGeocodingFailed{Query: query, Reason: "address has no usable name"}
	}

	log.Printf("[GEOCODING] Reverse response: point=%s name=%s", query, name)
	return &Place{
		Point:       p,
		Name:        name,
		DisplayName: result.DisplayName,
	}, nil
}

func (g *nominatimGeocoder) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	queryURL := fmt.Sprintf("%s/search?q=%s&format=json&addressdetails=1&limit=%d", g.baseURL, url.QueryEscape(query), limit)
	log.Printf("[GEOCODING] Search request: query=%s limit=%d", query, limit)

	var results []nominatimResponse
	if err := g.get(ctx, query, queryURL, &results); err != nil {
		return nil, err
	}

	log.Printf("[GEOCODING] Search response: query=%s results_count=%d", query, len(results))

	places := make([]Place, 0, len(results))
	for _, result := range results {
		var lat, lng float64
		if _, err := fmt.Sscanf(result.Lat, "%f", &lat); err != nil {
			log.Printf("[ERROR] Invalid latitude in geocoding search response: query=%s lat=%s err=%v", query, result.Lat, err)
			continue
		}
		if _, err := fmt.Sscanf(result.Lon, "%f", &lng); err != nil {
			log.Printf("[ERROR] Invalid longitude in geocoding search response: query=%s lng=%s err=%v", query, result.Lon, err)
			continue
		}

		name := result.DisplayName
		if result.Address != nil {
			if n := placeName(result.Address); n != "" {
				name = n
			}
		}

		places = append(places, Place{
			Point:       models.RenderPoint{Lat: lat, Lng: lng},
			Name:        name,
			DisplayName: result.DisplayName,
		})
	}

	return places, nil
}

// placeName picks the most local named part of an address
func placeName(a *nominatimAddress) string {
	local := firstNonEmpty(a.Neighbourhood, a.Suburb, a.Road)
	area := firstNonEmpty(a.City, a.Town, a.Village)
	switch {
	case local != "" && area != "":
		return local + ", " + area
	case local != "":
		return local
	case area != "":
		return area
	default:
		return a.Country
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Label returns a human-readable name for p, or fallback when the lookup
// fails for any reason. It never returns an error.
func Label(ctx context.Context, g Geocoder, p models.RenderPoint, fallback string) string {
	if g == nil {
		return fallback
	}
	place, err := g.Reverse(ctx, p)
	if err != nil {
		log.Printf("[GEOCODING] Using fallback label: point=(%.6f,%.6f) fallback=%s err=%v", p.Lat, p.Lng, fallback, err)
		return fallback
	}
	return place.Name
}
