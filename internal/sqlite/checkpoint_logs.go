package sqlite

import (
	"context"
	"fmt"
	"time"

	"focus-walker/internal/models"
)

type checkpointLogRow struct {
	ID                 string  `db:"id"`
	MissionID          string  `db:"mission_id"`
	Label              string  `db:"label"`
	Note               string  `db:"note"`
	TimestampNs        int64   `db:"timestamp_ns"`
	DistanceMarkMeters float64 `db:"distance_mark_meters"`
	Photo              string  `db:"photo"`
}

type checkpointLogRepository struct {
	store *Store
}

func (r *checkpointLogRepository) Append(ctx context.Context, missionID string, entry *models.CheckpointLogEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	row := checkpointLogRow{
		ID:                 entry.ID,
		MissionID:          missionID,
		Label:              entry.Label,
		Note:               entry.Note,
		TimestampNs:        entry.Timestamp.UnixNano(),
		DistanceMarkMeters: entry.DistanceMarkMeters,
		Photo:              entry.Photo,
	}

	query := `
		INSERT INTO checkpoint_logs (id, mission_id, label, note, timestamp_ns, distance_mark_meters, photo)
		VALUES (:id, :mission_id, :label, :note, :timestamp_ns, :distance_mark_meters, :photo)`

	if _, err := r.store.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to append checkpoint log: %w", err)
	}

	return nil
}

func (r *checkpointLogRepository) List(ctx context.Context, missionID string) ([]models.CheckpointLogEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var rows []checkpointLogRow
	query := `
		SELECT id, mission_id, label, note, timestamp_ns, distance_mark_meters, photo
		FROM checkpoint_logs WHERE mission_id = ? ORDER BY seq`
	if err := r.store.db.SelectContext(ctx, &rows, query, missionID); err != nil {
		return nil, fmt.Errorf("failed to list checkpoint logs: %w", err)
	}

	entries := make([]models.CheckpointLogEntry, len(rows))
	for i, row := range rows {
		entries[i] = models.CheckpointLogEntry{
			ID:                 row.ID,
			MissionID:          row.MissionID,
			Label:              row.Label,
			Note:               row.Note,
			Timestamp:          time.Unix(0, row.TimestampNs).UTC(),
			DistanceMarkMeters: row.DistanceMarkMeters,
			Photo:              row.Photo,
		}
	}

	return entries, nil
}

func (r *checkpointLogRepository) DeleteAll(ctx context.Context, missionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.store.db.ExecContext(ctx, `DELETE FROM checkpoint_logs WHERE mission_id = ?`, missionID); err != nil {
		return fmt.Errorf("failed to delete checkpoint logs: %w", err)
	}

	return nil
}
