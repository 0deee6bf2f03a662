package sqlite

import (
	"context"
	"fmt"

	"focus-walker/internal/database"
	"focus-walker/internal/models"
)

type settingsRow struct {
	WalkingSpeedKmh          float64 `db:"walking_speed_kmh"`
	RestIntervalMinutes      float64 `db:"rest_interval_minutes"`
	ProximityThresholdMeters float64 `db:"proximity_threshold_meters"`
	RecomputeDuration        bool    `db:"recompute_duration"`
	UseMiles                 bool    `db:"use_miles"`
}

type settingsRepository struct {
	store *Store
}

func (r *settingsRepository) Get(ctx context.Context) (*models.Settings, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query := `
		SELECT walking_speed_kmh, rest_interval_minutes, proximity_threshold_meters, recompute_duration, use_miles
		FROM settings WHERE id = 1`

	var row settingsRow
	if err := r.store.db.GetContext(ctx, &row, query); err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	return &models.Settings{
		WalkingSpeedKmh:                row.WalkingSpeedKmh,
		RestIntervalMinutes:            row.RestIntervalMinutes,
		ProximityThresholdMeters:       row.ProximityThresholdMeters,
		RecomputeDurationOnSpeedChange: row.RecomputeDuration,
		UseMiles:                       row.UseMiles,
	}, nil
}

func (r *settingsRepository) Update(ctx context.Context, s *models.Settings) error {
	if err := database.ValidateSettings(s); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	row := settingsRow{
		WalkingSpeedKmh:          s.WalkingSpeedKmh,
		RestIntervalMinutes:      s.RestIntervalMinutes,
		ProximityThresholdMeters: s.ProximityThresholdMeters,
		RecomputeDuration:        s.RecomputeDurationOnSpeedChange,
		UseMiles:                 s.UseMiles,
	}

	query := `
		UPDATE settings SET
			walking_speed_kmh = :walking_speed_kmh,
			rest_interval_minutes = :rest_interval_minutes,
			proximity_threshold_meters = :proximity_threshold_meters,
			recompute_duration = :recompute_duration,
			use_miles = :use_miles
		WHERE id = 1`

	if _, err := r.store.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}

	return nil
}
