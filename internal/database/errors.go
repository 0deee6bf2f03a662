package database

import (
	"errors"
	"fmt"

	"focus-walker/internal/models"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("entity not found")

// ErrInvalidSettings is returned when settings fail validation
type ErrInvalidSettings struct {
	Field  string
	Reason string
}

func (e *ErrInvalidSettings) Error() string {
	return fmt.Sprintf("invalid setting %s: %s", e.Field, e.Reason)
}

// ValidateSettings checks user settings before they are stored
func ValidateSettings(s *models.Settings) error {
	if s.WalkingSpeedKmh <= 0 || s.WalkingSpeedKmh > 30 {
		return &ErrInvalidSettings{Field: "walking_speed_kmh", Reason: "must be between 0 and 30"}
	}
	if s.RestIntervalMinutes < 0 {
		return &ErrInvalidSettings{Field: "rest_interval_minutes", Reason: "must not be negative"}
	}
	if s.ProximityThresholdMeters <= 0 {
		return &ErrInvalidSettings{Field: "proximity_threshold_meters", Reason: "must be positive"}
	}
	return nil
}
