package mission

import (
	"context"

	"github.com/google/uuid"

	"focus-walker/internal/clock"
	"focus-walker/internal/database"
	"focus-walker/internal/models"
)

// LogBook records checkpoint annotations per mission
type LogBook struct {
	repo  database.CheckpointLogRepository
	clock clock.Clock
}

func NewLogBook(repo database.CheckpointLogRepository, c clock.Clock) *LogBook {
	return &LogBook{repo: repo, clock: c}
}

// AppendLog adds entry to the mission's log, filling in its id and time
func (b *LogBook) AppendLog(ctx context.Context, missionID string, entry *models.CheckpointLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = b.clock.Now()
	}
	entry.MissionID = missionID

	if err := b.repo.Append(ctx, missionID, entry); err != nil {
		return &PersistenceError{Op: "append log", MissionID: missionID, Err: err}
	}
	return nil
}

// GetLogs returns the mission's entries in the order they were appended
func (b *LogBook) GetLogs(ctx context.Context, missionID string) ([]models.CheckpointLogEntry, error) {
	entries, err := b.repo.List(ctx, missionID)
	if err != nil {
		return nil, &PersistenceError{Op: "get logs", MissionID: missionID, Err: err}
	}
	return entries, nil
}

// DeleteLogs removes the mission's entire log
func (b *LogBook) DeleteLogs(ctx context.Context, missionID string) error {
	if err := b.repo.DeleteAll(ctx, missionID); err != nil {
		return &PersistenceError{Op: "delete logs", MissionID: missionID, Err: err}
	}
	return nil
}
