package testutil

import (
	"context"
	"fmt"
	"sync"

	"focus-walker/internal/geometry"
	"focus-walker/internal/models"
)

// metersPerDegree is the length of one degree of longitude on the equator
// for the earth radius used by orb/geo
const metersPerDegree = 111319.49079327357

// RouteCall tracks a call to the router
type RouteCall struct {
	Start models.RenderPoint
	End   models.RenderPoint
	Speed float64
}

// MockRouter is a Router for tests. Without an override it returns a
// straight two-point route between start and end.
type MockRouter struct {
	mu        sync.Mutex
	Overrides map[string]*models.Route
	Err       error
	Calls     []RouteCall
}

func NewMockRouter() *MockRouter {
	return &MockRouter{
		Overrides: make(map[string]*models.Route),
	}
}

func (m *MockRouter) makeKey(start, end models.RenderPoint) string {
	return fmt.Sprintf("%.5f,%.5f->%.5f,%.5f", start.Lat, start.Lng, end.Lat, end.Lng)
}

// SetRoute sets the route returned for a specific start-end pair
func (m *MockRouter) SetRoute(start, end models.RenderPoint, route *models.Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Overrides[m.makeKey(start, end)] = route
}

// FetchRoute returns the override, the configured error, or a straight route
func (m *MockRouter) FetchRoute(ctx context.Context, start, end models.RenderPoint, speedMetersPerSecond float64) (*models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, RouteCall{Start: start, End: end, Speed: speedMetersPerSecond})

	if m.Err != nil {
		return nil, m.Err
	}

	if override, ok := m.Overrides[m.makeKey(start, end)]; ok {
		r := *override
		r.DurationSeconds = r.TotalDistanceMeters / speedMetersPerSecond
		return &r, nil
	}

	line := []models.CalcPoint{start.ToCalc(), end.ToCalc()}
	total := geometry.LineLength(line)
	return &models.Route{
		RenderPath:          []models.RenderPoint{start, end},
		CalcLine:            line,
		TotalDistanceMeters: total,
		DurationSeconds:     total / speedMetersPerSecond,
	}, nil
}

// CallCount returns the number of FetchRoute calls
func (m *MockRouter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// StraightRoute returns an eastbound route along the equator whose line is
// totalMeters long, with the duration derived from speed
func StraightRoute(totalMeters, speedMetersPerSecond float64) *models.Route {
	end := totalMeters / metersPerDegree
	line := []models.CalcPoint{
		{Lng: 0, Lat: 0},
		{Lng: end / 2, Lat: 0},
		{Lng: end, Lat: 0},
	}
	render := make([]models.RenderPoint, len(line))
	for i, p := range line {
		render[i] = p.ToRender()
	}
	return &models.Route{
		RenderPath:          render,
		CalcLine:            line,
		TotalDistanceMeters: totalMeters,
		DurationSeconds:     totalMeters / speedMetersPerSecond,
	}
}
