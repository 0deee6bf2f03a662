package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"focus-walker/internal/geometry"
	"focus-walker/internal/models"
)

// DefaultTimeout bounds a single route request
const DefaultTimeout = 15 * time.Second

// Router fetches walking routes between two points
type Router interface {
	FetchRoute(ctx context.Context, start, end models.RenderPoint, speedMetersPerSecond float64) (*models.Route, error)
}

// ErrRouteUnavailable is returned when the routing provider cannot be reached
// or answers with a non-success code
type ErrRouteUnavailable struct {
	Start  models.RenderPoint
	End    models.RenderPoint
	Reason string
}

func (e *ErrRouteUnavailable) Error() string {
	return fmt.Sprintf("route unavailable: %s", e.Reason)
}

// ErrNoRouteFound is returned when the provider succeeds with zero candidates
var ErrNoRouteFound = errors.New("no route found")

type osrmRouter struct {
	baseURL    string
	profile    string
	httpClient *http.Client
	timeout    time.Duration
}

type osrmRouteResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Geometry struct {
		Type        string       `json:"type"`
		Coordinates [][]float64 `json:"coordinates"`
	} `json:"geometry"`
}

// NewOSRMRouter creates a walking router backed by an OSRM-compatible server
func NewOSRMRouter(baseURL string, timeout time.Duration) Router {
	if baseURL == "" {
		baseURL = "https://router.project-osrm.org"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &osrmRouter{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: "foot",
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

func (r *osrmRouter) FetchRoute(ctx context.Context, start, end models.RenderPoint, speedMetersPerSecond float64) (*models.Route, error) {
	if speedMetersPerSecond <= 0 {
		return nil, fmt.Errorf("invalid walking speed: %v m/s", speedMetersPerSecond)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	queryURL := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		r.baseURL, r.profile, start.Lng, start.Lat, end.Lng, end.Lat)
	log.Printf("[ROUTE] Request: start=(%.6f,%.6f) end=(%.6f,%.6f)", start.Lat, start.Lng, end.Lat, end.Lng)

	unavailable := func(reason string) error {
		return &ErrRouteUnavailable{Start: start, End: end, Reason: reason}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to create route request: err=%v", err)
		return nil, unavailable(err.Error())
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		log.Printf("[ERROR] Route API request failed: start=(%.6f,%.6f) end=(%.6f,%.6f) err=%v", start.Lat, start.Lng, end.Lat, end.Lng, err)
		return nil, unavailable(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[ERROR] Failed to read route response: err=%v", err)
		return nil, unavailable(err.Error())
	}

	var osrmResp osrmRouteResponse
	if err := json.Unmarshal(body, &osrmResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			log.Printf("[ERROR] Route API error: status=%d body=%s", resp.StatusCode, string(body))
			return nil, unavailable(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)))
		}
		log.Printf("[ERROR] Failed to decode route response: err=%v", err)
		return nil, unavailable(err.Error())
	}

	// OSRM reports errors such as NoRoute with a 400 status and a JSON body,
	// so the code field decides before the HTTP status does.
	if osrmResp.Code != "Ok" {
		log.Printf("[ERROR] Route API returned error code: status=%d code=%s message=%s", resp.StatusCode, osrmResp.Code, osrmResp.Message)
		return nil, unavailable(fmt.Sprintf("OSRM error: %s", osrmResp.Code))
	}

	if len(osrmResp.Routes) == 0 {
		log.Printf("[ROUTE] No candidates: start=(%.6f,%.6f) end=(%.6f,%.6f)", start.Lat, start.Lng, end.Lat, end.Lng)
		return nil, ErrNoRouteFound
	}

	route, err := normalizeRoute(osrmResp.Routes[0], speedMetersPerSecond)
	if err != nil {
		log.Printf("[ERROR] Malformed route geometry: err=%v", err)
		return nil, unavailable(err.Error())
	}

	log.Printf("[ROUTE] Response: candidates=%d points=%d distance=%.0f duration=%.0f",
		len(osrmResp.Routes), len(route.CalcLine), route.TotalDistanceMeters, route.DurationSeconds)
	return route, nil
}

// normalizeRoute copies provider geometry into both coordinate conventions
// and derives the duration from the configured walking speed.
func normalizeRoute(candidate osrmRoute, speedMetersPerSecond float64) (*models.Route, error) {
	coords := candidate.Geometry.Coordinates
	if len(coords) < 2 {
		return nil, fmt.Errorf("route geometry has %d points", len(coords))
	}

	calcLine := make([]models.CalcPoint, len(coords))
	renderPath := make([]models.RenderPoint, len(coords))
	for i, pair := range coords {
		if len(pair) < 2 {
			return nil, fmt.Errorf("coordinate %d has %d components", i, len(pair))
		}
		p := models.CalcPoint{Lng: pair[0], Lat: pair[1]}
		if !p.Valid() {
			return nil, fmt.Errorf("coordinate %d is out of range", i)
		}
		calcLine[i] = p
		renderPath[i] = p.ToRender()
	}

	total := candidate.Distance
	if total <= 0 {
		total = geometry.LineLength(calcLine)
	}
	if total <= 0 {
		return nil, fmt.Errorf("route has zero length")
	}

	return &models.Route{
		RenderPath:          renderPath,
		CalcLine:            calcLine,
		TotalDistanceMeters: total,
		DurationSeconds:     total / speedMetersPerSecond,
	}, nil
}
