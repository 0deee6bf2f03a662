package mission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"focus-walker/internal/clock"
	"focus-walker/internal/database"
	"focus-walker/internal/models"
)

// Draft is the input for a new mission record
type Draft struct {
	Name  string
	Route *models.Route
}

// Store is the durable lifecycle of mission summaries
type Store struct {
	repo  database.MissionSummaryRepository
	clock clock.Clock
}

func NewStore(repo database.MissionSummaryRepository, c clock.Clock) *Store {
	return &Store{repo: repo, clock: c}
}

// MissionID derives a stable identifier from the route ends and creation time
func MissionID(start, end models.RenderPoint, created time.Time) string {
	name := fmt.Sprintf("%.5f,%.5f;%.5f,%.5f@%d", start.Lat, start.Lng, end.Lat, end.Lng, created.UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// CreateDraft builds an idle mission for d. It is not persisted.
func (s *Store) CreateDraft(d Draft) *models.MissionState {
	now := s.clock.Now()

	m := &models.MissionState{
		Name:      d.Name,
		Status:    models.StatusIdle,
		Route:     d.Route,
		Timestamp: now,
	}
	if m.Name == "" {
		m.Name = fmt.Sprintf("Walk %s", now.Format("2006-01-02 15:04"))
	}

	if d.Route != nil && len(d.Route.RenderPath) > 0 {
		start, end := d.Route.Start(), d.Route.End()
		m.ID = MissionID(start, end, now)
		m.Position = models.MissionPosition{Start: &start, End: &end}
		m.Metrics = models.MissionMetrics{
			TotalDistanceMeters: d.Route.TotalDistanceMeters,
			TimeLeftSeconds:     d.Route.DurationSeconds,
			TotalTimeSeconds:    d.Route.DurationSeconds,
		}
	} else {
		m.ID = uuid.NewString()
	}

	return m
}

// Persist upserts the full record keyed by mission id
func (s *Store) Persist(ctx context.Context, m *models.MissionState) error {
	if err := s.repo.Upsert(ctx, m); err != nil {
		return &PersistenceError{Op: "persist", MissionID: m.ID, Err: err}
	}
	return nil
}

// Finalize marks the mission finished and writes it, so it is never
// offered for recovery again
func (s *Store) Finalize(ctx context.Context, m *models.MissionState) error {
	m.Status = models.StatusFinished
	m.Timestamp = s.clock.Now()
	if err := s.repo.Upsert(ctx, m); err != nil {
		return &PersistenceError{Op: "finalize", MissionID: m.ID, Err: err}
	}
	return nil
}

// GetActiveMission returns the newest active or paused mission, or nil
func (s *Store) GetActiveMission(ctx context.Context) (*models.MissionState, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load active", Err: err}
	}

	m, ok := lo.Find(all, func(m models.MissionState) bool {
		return m.Status.InProgress()
	})
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// GetAllSummaries returns every mission, newest first
func (s *Store) GetAllSummaries(ctx context.Context) ([]models.MissionState, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return all, nil
}

// Get returns one mission summary
func (s *Store) Get(ctx context.Context, id string) (*models.MissionState, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "get", MissionID: id, Err: err}
	}
	return m, nil
}

// DeleteMission removes the summary only. Logs are deleted separately.
func (s *Store) DeleteMission(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return &PersistenceError{Op: "delete", MissionID: id, Err: err}
	}
	return nil
}
