package models

import (
	"math"
	"time"
)

// StrideLengthMeters converts distance covered into a step count
const StrideLengthMeters = 0.72

// RenderPoint is a coordinate in map-rendering order (lat, lng)
type RenderPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CalcPoint is a coordinate in geometry order (lng, lat). It is deliberately
// not convertible from RenderPoint by a plain type conversion.
type CalcPoint struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// ToCalc converts a rendering coordinate for use in geometry calculations
func (p RenderPoint) ToCalc() CalcPoint {
	return CalcPoint{Lng: p.Lng, Lat: p.Lat}
}

// ToRender converts a geometry coordinate for display on the map
func (p CalcPoint) ToRender() RenderPoint {
	return RenderPoint{Lat: p.Lat, Lng: p.Lng}
}

// Valid reports whether both components are finite and in range
func (p CalcPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// RoundCoordinate rounds a coordinate component to 5 decimal places (~1m)
func RoundCoordinate(v float64) float64 {
	return math.Round(v*100000) / 100000
}

// Route is a walking route normalized from the routing provider
type Route struct {
	RenderPath          []RenderPoint `json:"render_path"`
	CalcLine            []CalcPoint   `json:"calc_line"`
	TotalDistanceMeters float64       `json:"total_distance_meters"`
	DurationSeconds     float64       `json:"duration_seconds"`
}

// Start returns the first point of the route in rendering order
func (r *Route) Start() RenderPoint {
	return r.RenderPath[0]
}

// End returns the last point of the route in rendering order
func (r *Route) End() RenderPoint {
	return r.RenderPath[len(r.RenderPath)-1]
}

// Checkpoint is a derived rest location along a route
type Checkpoint struct {
	ID                 string    `json:"id"`
	Position           CalcPoint `json:"position"`
	DistanceMarkMeters float64   `json:"distance_mark_meters"`
}

// MissionStatus is the lifecycle state of a mission
type MissionStatus string

const (
	StatusIdle     MissionStatus = "idle"
	StatusActive   MissionStatus = "active"
	StatusPaused   MissionStatus = "paused"
	StatusFinished MissionStatus = "finished"
)

// InProgress reports whether a mission should be resumed after a restart
func (s MissionStatus) InProgress() bool {
	return s == StatusActive || s == StatusPaused
}

// MissionPosition holds the marker, start and end positions
type MissionPosition struct {
	Current *RenderPoint `json:"current,omitempty"`
	Start   *RenderPoint `json:"start,omitempty"`
	End     *RenderPoint `json:"end,omitempty"`
}

// MissionMetrics holds live distance, step and time figures
type MissionMetrics struct {
	Steps               int     `json:"steps"`
	Progress            float64 `json:"progress"`
	DistanceDoneMeters  float64 `json:"distance_done_meters"`
	TotalDistanceMeters float64 `json:"total_distance_meters"`
	TimeLeftSeconds     float64 `json:"time_left_seconds"`
	TotalTimeSeconds    float64 `json:"total_time_seconds"`
}

// MissionState is the durable record of a mission
type MissionState struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Status         MissionStatus   `json:"status"`
	Position       MissionPosition `json:"position"`
	Metrics        MissionMetrics  `json:"metrics"`
	Route          *Route          `json:"route"`
	CheckpointRefs []string        `json:"checkpoint_refs"`
	Timestamp      time.Time       `json:"timestamp"`
}

// CheckpointLogEntry is a user annotation recorded when a checkpoint is acknowledged
type CheckpointLogEntry struct {
	ID                 string    `json:"id"`
	MissionID          string    `json:"mission_id"`
	Label              string    `json:"label"`
	Note               string    `json:"note"`
	Timestamp          time.Time `json:"timestamp"`
	DistanceMarkMeters float64   `json:"distance_mark_meters"`
	Photo              string    `json:"photo,omitempty"`
}

// Settings holds user preferences injected into route acquisition,
// checkpoint derivation and the progress engine
type Settings struct {
	WalkingSpeedKmh                float64 `json:"walking_speed_kmh"`
	RestIntervalMinutes            float64 `json:"rest_interval_minutes"`
	ProximityThresholdMeters       float64 `json:"proximity_threshold_meters"`
	RecomputeDurationOnSpeedChange bool    `json:"recompute_duration_on_speed_change"`
	UseMiles                       bool    `json:"use_miles"`
}

// DefaultSettings returns the settings used when none have been saved
func DefaultSettings() Settings {
	return Settings{
		WalkingSpeedKmh:          5,
		RestIntervalMinutes:      25,
		ProximityThresholdMeters: 10,
	}
}

// SpeedMetersPerSecond converts the walking speed setting to m/s
func (s *Settings) SpeedMetersPerSecond() float64 {
	return s.WalkingSpeedKmh * 1000 / 3600
}

// Clone returns a copy of the mission that shares no memory with m
func (m MissionState) Clone() MissionState {
	c := m
	c.Position = MissionPosition{
		Current: clonePoint(m.Position.Current),
		Start:   clonePoint(m.Position.Start),
		End:     clonePoint(m.Position.End),
	}
	if m.Route != nil {
		r := *m.Route
		r.RenderPath = append([]RenderPoint(nil), m.Route.RenderPath...)
		r.CalcLine = append([]CalcPoint(nil), m.Route.CalcLine...)
		c.Route = &r
	}
	if m.CheckpointRefs != nil {
		c.CheckpointRefs = append([]string{}, m.CheckpointRefs...)
	}
	return c
}

func clonePoint(p *RenderPoint) *RenderPoint {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
