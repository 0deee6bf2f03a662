// Package redisstore keeps missions, checkpoint logs and settings in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"focus-walker/internal/database"
	"focus-walker/internal/models"
)

const DefaultPrefix = "focus-walker"

// NewClient returns a client for addr, or nil when addr is empty
func NewClient(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

// Store is a Redis-based data store implementing database.DataStore.
// Summaries share one hash; each mission's log is its own list.
type Store struct {
	client *redis.Client
	prefix string

	missionRepo    database.MissionSummaryRepository
	checkpointRepo database.CheckpointLogRepository
	settingsRepo   database.SettingsRepository
}

// New wraps client and verifies the connection
func New(ctx context.Context, client *redis.Client, prefix string) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("[REDIS] Connected: addr=%s prefix=%s", client.Options().Addr, prefix)

	store := &Store{client: client, prefix: prefix}
	store.missionRepo = &missionRepository{store: store}
	store.checkpointRepo = &checkpointLogRepository{store: store}
	store.settingsRepo = &settingsRepository{store: store}
	return store, nil
}

func (s *Store) missionsKey() string {
	return s.prefix + ":missions"
}

func (s *Store) logsKey(missionID string) string {
	return s.prefix + ":logs:" + missionID
}

func (s *Store) settingsKey() string {
	return s.prefix + ":settings"
}

// Close closes the client
func (s *Store) Close() error {
	return s.client.Close()
}

// HealthCheck pings the server
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Missions() database.MissionSummaryRepository      { return s.missionRepo }
func (s *Store) CheckpointLogs() database.CheckpointLogRepository { return s.checkpointRepo }
func (s *Store) Settings() database.SettingsRepository            { return s.settingsRepo }

// ==================== Mission Repository ====================

type missionRepository struct {
	store *Store
}

func (r *missionRepository) Upsert(ctx context.Context, m *models.MissionState) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode mission: %w", err)
	}

	if err := r.store.client.HSet(ctx, r.store.missionsKey(), m.ID, payload).Err(); err != nil {
		return fmt.Errorf("failed to upsert mission: %w", err)
	}
	return nil
}

func (r *missionRepository) GetByID(ctx context.Context, id string) (*models.MissionState, error) {
	payload, err := r.store.client.HGet(ctx, r.store.missionsKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mission: %w", err)
	}

	var m models.MissionState
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("failed to decode mission %s: %w", id, err)
	}
	return &m, nil
}

func (r *missionRepository) List(ctx context.Context) ([]models.MissionState, error) {
	all, err := r.store.client.HGetAll(ctx, r.store.missionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}

	missions := make([]models.MissionState, 0, len(all))
	for id, payload := range all {
		var m models.MissionState
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			log.Printf("[REDIS] Skipping unreadable mission: id=%s err=%v", id, err)
			continue
		}
		missions = append(missions, m)
	}

	database.SortNewestFirst(missions)
	return missions, nil
}

func (r *missionRepository) Delete(ctx context.Context, id string) error {
	removed, err := r.store.client.HDel(ctx, r.store.missionsKey(), id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete mission: %w", err)
	}
	if removed == 0 {
		return database.ErrNotFound
	}

	log.Printf("[REDIS] Deleted mission: id=%s", id)
	return nil
}

// ==================== Checkpoint Log Repository ====================

type checkpointLogRepository struct {
	store *Store
}

func (r *checkpointLogRepository) Append(ctx context.Context, missionID string, entry *models.CheckpointLogEntry) error {
	e := *entry
	e.MissionID = missionID

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint log: %w", err)
	}

	if err := r.store.client.RPush(ctx, r.store.logsKey(missionID), payload).Err(); err != nil {
		return fmt.Errorf("failed to append checkpoint log: %w", err)
	}
	return nil
}

func (r *checkpointLogRepository) List(ctx context.Context, missionID string) ([]models.CheckpointLogEntry, error) {
	raw, err := r.store.client.LRange(ctx, r.store.logsKey(missionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoint logs: %w", err)
	}

	entries := make([]models.CheckpointLogEntry, 0, len(raw))
	for _, payload := range raw {
		var e models.CheckpointLogEntry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *checkpointLogRepository) DeleteAll(ctx context.Context, missionID string) error {
	if err := r.store.client.Del(ctx, r.store.logsKey(missionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint logs: %w", err)
	}
	return nil
}

// ==================== Settings Repository ====================

type settingsRepository struct {
	store *Store
}

func (r *settingsRepository) Get(ctx context.Context) (*models.Settings, error) {
	payload, err := r.store.client.Get(ctx, r.store.settingsKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		s := models.DefaultSettings()
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	var s models.Settings
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &s, nil
}

func (r *settingsRepository) Update(ctx context.Context, s *models.Settings) error {
	if err := database.ValidateSettings(s); err != nil {
		return err
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := r.store.client.Set(ctx, r.store.settingsKey(), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}
