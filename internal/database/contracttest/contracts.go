// Package contracttest holds the behaviour every DataStore backend must share.
package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focus-walker/internal/database"
	"focus-walker/internal/models"
)

type CleanupFunc = func()

type DataStoreFactory func(t *testing.T) (database.DataStore, CleanupFunc)

var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// SampleMission returns a fully populated in-progress mission
func SampleMission(id string, ts time.Time) *models.MissionState {
	start := models.RenderPoint{Lat: 48.8566, Lng: 2.3522}
	end := models.RenderPoint{Lat: 48.8606, Lng: 2.3376}
	current := models.RenderPoint{Lat: 48.8580, Lng: 2.3450}

	return &models.MissionState{
		ID:     id,
		Name:   "Morning focus",
		Status: models.StatusActive,
		Position: models.MissionPosition{
			Current: &current,
			Start:   &start,
			End:     &end,
		},
		Metrics: models.MissionMetrics{
			Steps:               694,
			Progress:            0.25,
			DistanceDoneMeters:  500,
			TotalDistanceMeters: 2000,
			TimeLeftSeconds:     1080,
			TotalTimeSeconds:    1440,
		},
		Route: &models.Route{
			RenderPath:          []models.RenderPoint{start, current, end},
			CalcLine:            []models.CalcPoint{start.ToCalc(), current.ToCalc(), end.ToCalc()},
			TotalDistanceMeters: 2000,
			DurationSeconds:     1440,
		},
		CheckpointRefs: []string{"cp-1"},
		Timestamp:      ts,
	}
}

func newStore(t *testing.T, factory DataStoreFactory) database.DataStore {
	t.Helper()
	store, cleanup := factory(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	return store
}

// RunDataStore exercises every repository of a backend
func RunDataStore(t *testing.T, factory DataStoreFactory) {
	t.Helper()

	t.Run("HealthCheck", func(t *testing.T) {
		store := newStore(t, factory)
		assert.NoError(t, store.HealthCheck(context.Background()))
	})
	t.Run("Missions", func(t *testing.T) {
		RunMissionRepo(t, factory)
	})
	t.Run("CheckpointLogs", func(t *testing.T) {
		RunCheckpointLogRepo(t, factory)
	})
	t.Run("Settings", func(t *testing.T) {
		RunSettingsRepo(t, factory)
	})
}

func RunMissionRepo(t *testing.T, factory DataStoreFactory) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		repo := newStore(t, factory).Missions()
		m := SampleMission("m-1", baseTime)

		require.NoError(t, repo.Upsert(ctx, m))

		got, err := repo.GetByID(ctx, "m-1")
		require.NoError(t, err)
		assert.Equal(t, m, got)
	})

	t.Run("upsert keeps one record per id", func(t *testing.T) {
		repo := newStore(t, factory).Missions()
		m := SampleMission("m-1", baseTime)

		for i := 0; i < 5; i++ {
			m.Metrics.Progress = float64(i) / 10
			m.Timestamp = baseTime.Add(time.Duration(i) * time.Second)
			require.NoError(t, repo.Upsert(ctx, m))
		}

		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 0.4, all[0].Metrics.Progress)
	})

	t.Run("caller mutations do not leak", func(t *testing.T) {
		repo := newStore(t, factory).Missions()
		m := SampleMission("m-1", baseTime)
		require.NoError(t, repo.Upsert(ctx, m))

		m.Position.Current.Lat = 0
		m.Route.RenderPath[0].Lat = 0

		got, err := repo.GetByID(ctx, "m-1")
		require.NoError(t, err)
		assert.Equal(t, 48.8580, got.Position.Current.Lat)
		assert.Equal(t, 48.8566, got.Route.RenderPath[0].Lat)
	})

	t.Run("list newest first", func(t *testing.T) {
		repo := newStore(t, factory).Missions()

		require.NoError(t, repo.Upsert(ctx, SampleMission("old", baseTime)))
		require.NoError(t, repo.Upsert(ctx, SampleMission("new", baseTime.Add(2*time.Hour))))
		require.NoError(t, repo.Upsert(ctx, SampleMission("mid", baseTime.Add(time.Hour))))

		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "new", all[0].ID)
		assert.Equal(t, "mid", all[1].ID)
		assert.Equal(t, "old", all[2].ID)
	})

	t.Run("list empty", func(t *testing.T) {
		repo := newStore(t, factory).Missions()

		all, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("delete", func(t *testing.T) {
		repo := newStore(t, factory).Missions()
		require.NoError(t, repo.Upsert(ctx, SampleMission("m-1", baseTime)))
		require.NoError(t, repo.Upsert(ctx, SampleMission("m-2", baseTime)))

		require.NoError(t, repo.Delete(ctx, "m-1"))

		_, err := repo.GetByID(ctx, "m-1")
		assert.True(t, errors.Is(err, database.ErrNotFound))

		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "m-2", all[0].ID)
	})

	t.Run("missing", func(t *testing.T) {
		repo := newStore(t, factory).Missions()

		_, err := repo.GetByID(ctx, "nope")
		assert.True(t, errors.Is(err, database.ErrNotFound))
		assert.True(t, errors.Is(repo.Delete(ctx, "nope"), database.ErrNotFound))
	})
}

func RunCheckpointLogRepo(t *testing.T, factory DataStoreFactory) {
	ctx := context.Background()

	entry := func(id, note string, mark float64) *models.CheckpointLogEntry {
		return &models.CheckpointLogEntry{
			ID:                 id,
			Label:              "Riverside",
			Note:               note,
			Timestamp:          baseTime.Add(time.Duration(mark) * time.Second),
			DistanceMarkMeters: mark,
		}
	}

	t.Run("append preserves call order", func(t *testing.T) {
		repo := newStore(t, factory).CheckpointLogs()

		require.NoError(t, repo.Append(ctx, "m-1", entry("e-1", "first", 500)))
		require.NoError(t, repo.Append(ctx, "m-1", entry("e-2", "second", 1000)))

		logs, err := repo.List(ctx, "m-1")
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "e-1", logs[0].ID)
		assert.Equal(t, "first", logs[0].Note)
		assert.Equal(t, "m-1", logs[0].MissionID)
		assert.Equal(t, baseTime.Add(500*time.Second), logs[0].Timestamp)
		assert.Equal(t, "e-2", logs[1].ID)
		assert.Equal(t, 1000.0, logs[1].DistanceMarkMeters)
	})

	t.Run("photo is kept", func(t *testing.T) {
		repo := newStore(t, factory).CheckpointLogs()
		e := entry("e-1", "view", 500)
		e.Photo = "data:image/jpeg;base64,/9j/4AAQ"

		require.NoError(t, repo.Append(ctx, "m-1", e))

		logs, err := repo.List(ctx, "m-1")
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, e.Photo, logs[0].Photo)
	})

	t.Run("missions are isolated", func(t *testing.T) {
		repo := newStore(t, factory).CheckpointLogs()

		require.NoError(t, repo.Append(ctx, "m-1", entry("e-1", "a", 1)))
		require.NoError(t, repo.Append(ctx, "m-2", entry("e-2", "b", 2)))

		logs, err := repo.List(ctx, "m-2")
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "e-2", logs[0].ID)

		empty, err := repo.List(ctx, "m-3")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("delete all", func(t *testing.T) {
		repo := newStore(t, factory).CheckpointLogs()

		require.NoError(t, repo.Append(ctx, "m-1", entry("e-1", "a", 1)))
		require.NoError(t, repo.Append(ctx, "m-1", entry("e-2", "b", 2)))
		require.NoError(t, repo.Append(ctx, "m-2", entry("e-3", "c", 3)))

		require.NoError(t, repo.DeleteAll(ctx, "m-1"))
		require.NoError(t, repo.DeleteAll(ctx, "unknown"))

		logs, err := repo.List(ctx, "m-1")
		require.NoError(t, err)
		assert.Empty(t, logs)

		logs, err = repo.List(ctx, "m-2")
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})
}

func RunSettingsRepo(t *testing.T, factory DataStoreFactory) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		repo := newStore(t, factory).Settings()

		s, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.DefaultSettings(), *s)
	})

	t.Run("update", func(t *testing.T) {
		repo := newStore(t, factory).Settings()
		updated := models.Settings{
			WalkingSpeedKmh:                4.2,
			RestIntervalMinutes:            15,
			ProximityThresholdMeters:       25,
			RecomputeDurationOnSpeedChange: true,
			UseMiles:                       true,
		}

		require.NoError(t, repo.Update(ctx, &updated))

		s, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, updated, *s)
	})

	t.Run("invalid rejected", func(t *testing.T) {
		repo := newStore(t, factory).Settings()
		bad := models.DefaultSettings()
		bad.WalkingSpeedKmh = 0

		err := repo.Update(ctx, &bad)
		var invalid *database.ErrInvalidSettings
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "walking_speed_kmh", invalid.Field)

		s, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.DefaultSettings(), *s)
	})
}
