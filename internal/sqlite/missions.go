package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"focus-walker/internal/database"
	"focus-walker/internal/models"
)

type missionRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Status      string `db:"status"`
	Payload     string `db:"payload"`
	TimestampNs int64  `db:"timestamp_ns"`
}

func (row *missionRow) toModel() (*models.MissionState, error) {
	var m models.MissionState
	if err := json.Unmarshal([]byte(row.Payload), &m); err != nil {
		return nil, fmt.Errorf("failed to decode mission %s: %w", row.ID, err)
	}
	return &m, nil
}

type missionRepository struct {
	store *Store
}

func (r *missionRepository) Upsert(ctx context.Context, m *models.MissionState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode mission: %w", err)
	}

	row := missionRow{
		ID:          m.ID,
		Name:        m.Name,
		Status:      string(m.Status),
		Payload:     string(payload),
		TimestampNs: m.Timestamp.UnixNano(),
	}

	query := `
		INSERT INTO missions (id, name, status, payload, timestamp_ns)
		VALUES (:id, :name, :status, :payload, :timestamp_ns)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			payload = excluded.payload,
			timestamp_ns = excluded.timestamp_ns`

	if _, err := r.store.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to upsert mission: %w", err)
	}

	return nil
}

func (r *missionRepository) GetByID(ctx context.Context, id string) (*models.MissionState, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var row missionRow
	err := r.store.db.GetContext(ctx, &row, `SELECT id, name, status, payload, timestamp_ns FROM missions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mission: %w", err)
	}

	return row.toModel()
}

func (r *missionRepository) List(ctx context.Context) ([]models.MissionState, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var rows []missionRow
	query := `SELECT id, name, status, payload, timestamp_ns FROM missions ORDER BY timestamp_ns DESC, id ASC`
	if err := r.store.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}

	missions := make([]models.MissionState, 0, len(rows))
	for i := range rows {
		m, err := rows[i].toModel()
		if err != nil {
			log.Printf("[SQLITE] Skipping unreadable mission: id=%s err=%v", rows[i].ID, err)
			continue
		}
		missions = append(missions, *m)
	}

	return missions, nil
}

func (r *missionRepository) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	result, err := r.store.db.ExecContext(ctx, `DELETE FROM missions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mission: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}

	log.Printf("[SQLITE] Deleted mission: id=%s", id)
	return nil
}
