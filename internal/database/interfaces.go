package database

import (
	"context"

	"focus-walker/internal/models"
)

// DataStore is the interface for data persistence
type DataStore interface {
	Close() error
	HealthCheck(ctx context.Context) error
	Missions() MissionSummaryRepository
	CheckpointLogs() CheckpointLogRepository
	Settings() SettingsRepository
}

// MissionSummaryRepository holds one record per mission id. It is kept
// apart from the log bucket so frequent progress writes stay small.
type MissionSummaryRepository interface {
	Upsert(ctx context.Context, m *models.MissionState) error
	GetByID(ctx context.Context, id string) (*models.MissionState, error)
	List(ctx context.Context) ([]models.MissionState, error)
	Delete(ctx context.Context, id string) error
}

// CheckpointLogRepository is an append-only log of checkpoint annotations
// per mission. List preserves insertion order.
type CheckpointLogRepository interface {
	Append(ctx context.Context, missionID string, entry *models.CheckpointLogEntry) error
	List(ctx context.Context, missionID string) ([]models.CheckpointLogEntry, error)
	DeleteAll(ctx context.Context, missionID string) error
}

// SettingsRepository handles settings persistence
type SettingsRepository interface {
	Get(ctx context.Context) (*models.Settings, error)
	Update(ctx context.Context, s *models.Settings) error
}
