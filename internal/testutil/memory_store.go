package testutil

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"focus-walker/internal/database"
	"focus-walker/internal/models"
)

// MemoryStore is an in-memory DataStore with write failure injection
type MemoryStore struct {
	mu       sync.Mutex
	missions map[string]models.MissionState
	logs     map[string][]models.CheckpointLogEntry
	settings *models.Settings

	// MissionErr fails every mission write while set
	MissionErr error
	// LogErr fails every log write while set
	LogErr error

	upserts int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		missions: make(map[string]models.MissionState),
		logs:     make(map[string][]models.CheckpointLogEntry),
	}
}

func (s *MemoryStore) Close() error                          { return nil }
func (s *MemoryStore) HealthCheck(ctx context.Context) error { return nil }

func (s *MemoryStore) Missions() database.MissionSummaryRepository      { return memoryMissions{s} }
func (s *MemoryStore) CheckpointLogs() database.CheckpointLogRepository { return memoryLogs{s} }
func (s *MemoryStore) Settings() database.SettingsRepository            { return memorySettings{s} }

// SetMissionErr sets or clears the mission write failure
func (s *MemoryStore) SetMissionErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MissionErr = err
}

// SetLogErr sets or clears the log write failure
func (s *MemoryStore) SetLogErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LogErr = err
}

// UpsertCount returns the number of successful mission writes
func (s *MemoryStore) UpsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

// Mission returns the stored record for id
func (s *MemoryStore) Mission(id string) (models.MissionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok {
		return models.MissionState{}, false
	}
	return m.Clone(), true
}

type memoryMissions struct{ s *MemoryStore }

func (r memoryMissions) Upsert(ctx context.Context, m *models.MissionState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.MissionErr != nil {
		return r.s.MissionErr
	}
	r.s.missions[m.ID] = m.Clone()
	r.s.upserts++
	return nil
}

func (r memoryMissions) GetByID(ctx context.Context, id string) (*models.MissionState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.missions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := m.Clone()
	return &c, nil
}

func (r memoryMissions) List(ctx context.Context) ([]models.MissionState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := lo.MapToSlice(r.s.missions, func(_ string, m models.MissionState) models.MissionState {
		return m.Clone()
	})
	database.SortNewestFirst(result)
	return result, nil
}

func (r memoryMissions) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.MissionErr != nil {
		return r.s.MissionErr
	}
	if _, ok := r.s.missions[id]; !ok {
		return database.ErrNotFound
	}
	delete(r.s.missions, id)
	return nil
}

type memoryLogs struct{ s *MemoryStore }

func (r memoryLogs) Append(ctx context.Context, missionID string, entry *models.CheckpointLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.LogErr != nil {
		return r.s.LogErr
	}
	e := *entry
	e.MissionID = missionID
	r.s.logs[missionID] = append(r.s.logs[missionID], e)
	return nil
}

func (r memoryLogs) List(ctx context.Context, missionID string) ([]models.CheckpointLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.CheckpointLogEntry{}, r.s.logs[missionID]...), nil
}

func (r memoryLogs) DeleteAll(ctx context.Context, missionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.LogErr != nil {
		return r.s.LogErr
	}
	delete(r.s.logs, missionID)
	return nil
}

type memorySettings struct{ s *MemoryStore }

func (r memorySettings) Get(ctx context.Context) (*models.Settings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.settings == nil {
		d := models.DefaultSettings()
		return &d, nil
	}
	c := *r.s.settings
	return &c, nil
}

func (r memorySettings) Update(ctx context.Context, s *models.Settings) error {
	if err := database.ValidateSettings(s); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *s
	r.s.settings = &c
	return nil
}
