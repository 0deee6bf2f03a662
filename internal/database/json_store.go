package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/samber/lo"

	"focus-walker/internal/models"
)

const (
	summariesFileName = "missions.json"
	logsFileName      = "checkpoint_logs.json"
)

// JSONSummaries is the structure of the mission summaries file
type JSONSummaries struct {
	Settings *models.Settings               `json:"settings"`
	Missions map[string]models.MissionState `json:"missions"`
}

// JSONStore is a JSON file-based data store. Summaries and checkpoint logs
// live in separate files so progress writes never rewrite the logs.
type JSONStore struct {
	summariesPath string
	logsPath      string
	summaries     *JSONSummaries
	logs          map[string][]models.CheckpointLogEntry
	mu            sync.RWMutex

	missionRepository    MissionSummaryRepository
	checkpointRepository CheckpointLogRepository
	settingsRepository   SettingsRepository
}

func (s *JSONStore) Missions() MissionSummaryRepository      { return s.missionRepository }
func (s *JSONStore) CheckpointLogs() CheckpointLogRepository { return s.checkpointRepository }
func (s *JSONStore) Settings() SettingsRepository            { return s.settingsRepository }

// NewJSONStore creates a JSON store in dir
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	log.Printf("Using JSON data directory: %s", dir)

	store := &JSONStore{
		summariesPath: filepath.Join(dir, summariesFileName),
		logsPath:      filepath.Join(dir, logsFileName),
	}

	if err := store.load(); err != nil {
		return nil, err
	}

	store.missionRepository = &jsonMissionRepository{store: store}
	store.checkpointRepository = &jsonCheckpointLogRepository{store: store}
	store.settingsRepository = &jsonSettingsRepository{store: store}

	return store, nil
}

func (s *JSONStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries = &JSONSummaries{}
	if err := readJSONFile(s.summariesPath, s.summaries); err != nil {
		return fmt.Errorf("failed to load mission summaries: %w", err)
	}
	if s.summaries.Missions == nil {
		s.summaries.Missions = make(map[string]models.MissionState)
	}

	s.logs = make(map[string][]models.CheckpointLogEntry)
	if err := readJSONFile(s.logsPath, &s.logs); err != nil {
		return fmt.Errorf("failed to load checkpoint logs: %w", err)
	}
	if s.logs == nil {
		s.logs = make(map[string][]models.CheckpointLogEntry)
	}

	log.Printf("Loaded data: %d missions, %d checkpoint logs", len(s.summaries.Missions), len(s.logs))
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse data file: %w", err)
	}
	return nil
}

func (s *JSONStore) saveSummariesUnlocked() error {
	return writeFileAtomic(s.summariesPath, s.summaries)
}

func (s *JSONStore) saveLogsUnlocked() error {
	return writeFileAtomic(s.logsPath, s.logs)
}

// Close is a no-op for JSON store (data is saved after each operation)
func (s *JSONStore) Close() error {
	return nil
}

// HealthCheck verifies the data directory is still writable
func (s *JSONStore) HealthCheck(ctx context.Context) error {
	_, err := os.Stat(filepath.Dir(s.summariesPath))
	return err
}

// SortNewestFirst orders missions by timestamp descending, then by id
func SortNewestFirst(missions []models.MissionState) {
	sort.SliceStable(missions, func(i, j int) bool {
		if missions[i].Timestamp.Equal(missions[j].Timestamp) {
			return missions[i].ID < missions[j].ID
		}
		return missions[i].Timestamp.After(missions[j].Timestamp)
	})
}

// ==================== Mission Repository ====================

type jsonMissionRepository struct {
	store *JSONStore
}

func (r *jsonMissionRepository) Upsert(ctx context.Context, m *models.MissionState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	previous, existed := r.store.summaries.Missions[m.ID]
	r.store.summaries.Missions[m.ID] = m.Clone()

	if err := r.store.saveSummariesUnlocked(); err != nil {
		if existed {
			r.store.summaries.Missions[m.ID] = previous
		} else {
			delete(r.store.summaries.Missions, m.ID)
		}
		return err
	}

	return nil
}

func (r *jsonMissionRepository) GetByID(ctx context.Context, id string) (*models.MissionState, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	m, ok := r.store.summaries.Missions[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := m.Clone()
	return &c, nil
}

func (r *jsonMissionRepository) List(ctx context.Context) ([]models.MissionState, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := lo.MapToSlice(r.store.summaries.Missions, func(_ string, m models.MissionState) models.MissionState {
		return m.Clone()
	})
	SortNewestFirst(result)
	return result, nil
}

func (r *jsonMissionRepository) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	previous, ok := r.store.summaries.Missions[id]
	if !ok {
		return ErrNotFound
	}

	delete(r.store.summaries.Missions, id)
	if err := r.store.saveSummariesUnlocked(); err != nil {
		r.store.summaries.Missions[id] = previous
		return err
	}

	log.Printf("[JSON] Deleted mission: id=%s", id)
	return nil
}

// ==================== Checkpoint Log Repository ====================

type jsonCheckpointLogRepository struct {
	store *JSONStore
}

func (r *jsonCheckpointLogRepository) Append(ctx context.Context, missionID string, entry *models.CheckpointLogEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing := r.store.logs[missionID]
	e := *entry
	e.MissionID = missionID
	r.store.logs[missionID] = append(existing[:len(existing):len(existing)], e)

	if err := r.store.saveLogsUnlocked(); err != nil {
		r.store.logs[missionID] = existing
		return err
	}

	log.Printf("[JSON] Appended checkpoint log: mission_id=%s entry_id=%s", missionID, entry.ID)
	return nil
}

func (r *jsonCheckpointLogRepository) List(ctx context.Context, missionID string) ([]models.CheckpointLogEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return append([]models.CheckpointLogEntry{}, r.store.logs[missionID]...), nil
}

func (r *jsonCheckpointLogRepository) DeleteAll(ctx context.Context, missionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, ok := r.store.logs[missionID]
	if !ok {
		return nil
	}

	delete(r.store.logs, missionID)
	if err := r.store.saveLogsUnlocked(); err != nil {
		r.store.logs[missionID] = existing
		return err
	}

	log.Printf("[JSON] Deleted checkpoint logs: mission_id=%s count=%d", missionID, len(existing))
	return nil
}

// ==================== Settings Repository ====================

type jsonSettingsRepository struct {
	store *JSONStore
}

func (r *jsonSettingsRepository) Get(ctx context.Context) (*models.Settings, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if r.store.summaries.Settings == nil {
		s := models.DefaultSettings()
		return &s, nil
	}
	s := *r.store.summaries.Settings
	return &s, nil
}

func (r *jsonSettingsRepository) Update(ctx context.Context, s *models.Settings) error {
	if err := ValidateSettings(s); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	previous := r.store.summaries.Settings
	updated := *s
	r.store.summaries.Settings = &updated

	if err := r.store.saveSummariesUnlocked(); err != nil {
		r.store.summaries.Settings = previous
		return err
	}

	log.Printf("[JSON] Updated settings: speed_kmh=%.1f rest_minutes=%.0f", s.WalkingSpeedKmh, s.RestIntervalMinutes)
	return nil
}
