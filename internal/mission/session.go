package mission

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/samber/lo"

	"focus-walker/internal/checkpoint"
	"focus-walker/internal/clock"
	"focus-walker/internal/database"
	"focus-walker/internal/engine"
	"focus-walker/internal/geocoding"
	"focus-walker/internal/models"
	"focus-walker/internal/routing"
)

// DefaultPersistInterval is how often progress is written while ticking
const DefaultPersistInterval = 5 * time.Second

const writeTimeout = 5 * time.Second

// DefaultLabelTimeout bounds the place lookup for a checkpoint log entry
const DefaultLabelTimeout = 2 * time.Second

// Deps are the collaborators of a Session
type Deps struct {
	Scheduler       engine.Scheduler
	Router          routing.Router
	Geocoder        geocoding.Geocoder
	Store           database.DataStore
	Clock           clock.Clock
	PersistInterval time.Duration
}

// Status is the combined view of the current mission
type Status struct {
	Mission   *models.MissionState `json:"mission"`
	Snapshot  engine.Snapshot      `json:"snapshot"`
	Settings  models.Settings      `json:"settings"`
	Degraded  bool                 `json:"degraded"`
	LastError string               `json:"last_error,omitempty"`
}

// AckResult describes an acknowledged checkpoint
type AckResult struct {
	CheckpointID string                     `json:"checkpoint_id"`
	Entry        *models.CheckpointLogEntry `json:"entry,omitempty"`
}

// Session owns the single in-memory mission and keeps the durable record
// in step with engine snapshots
type Session struct {
	engine   *engine.Engine
	router   routing.Router
	geocoder geocoding.Geocoder
	settings database.SettingsRepository
	store    *Store
	logbook  *LogBook
	clock    clock.Clock
	interval time.Duration

	labelTimeout time.Duration

	// persistMu serializes writes of the mission record
	persistMu sync.Mutex

	mu          sync.Mutex
	mission     *models.MissionState
	current     models.Settings
	degraded    bool
	lastErr     string
	lastPersist time.Time
	// epoch of the engine route the mission record follows
	epoch uint64

	unsubscribe func()
}

// NewSession loads settings and wires the engine observer
func NewSession(ctx context.Context, deps Deps) (*Session, error) {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystemClock()
	}
	if deps.Scheduler == nil {
		deps.Scheduler = engine.NewTimerScheduler(engine.DefaultFrameInterval, deps.Clock)
	}
	if deps.PersistInterval <= 0 {
		deps.PersistInterval = DefaultPersistInterval
	}

	settings, err := deps.Store.Settings().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	s := &Session{
		engine:   engine.New(engine.ConfigFromSettings(*settings), deps.Scheduler),
		router:   deps.Router,
		geocoder: deps.Geocoder,
		settings: deps.Store.Settings(),
		store:    NewStore(deps.Store.Missions(), deps.Clock),
		logbook:  NewLogBook(deps.Store.CheckpointLogs(), deps.Clock),
		clock:    deps.Clock,
		interval: deps.PersistInterval,
		current:  *settings,

		labelTimeout: DefaultLabelTimeout,
	}
	s.unsubscribe = s.engine.Subscribe(s.onSnapshot)

	return s, nil
}

// Engine exposes the progress engine for read-only observers
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// Close writes the latest progress, detaches the session from the engine
// and stops ticking. A running mission stays stored as in progress.
func (s *Session) Close() {
	s.mu.Lock()
	running := s.mission != nil && s.mission.Status.InProgress()
	s.mu.Unlock()
	if running {
		s.persistCurrent(false)
	}

	s.unsubscribe()
	s.engine.Finish()
}

// PlanRoute fetches a route between start and end and prepares an idle
// mission for it. The draft is not persisted until the mission starts.
func (s *Session) PlanRoute(ctx context.Context, start, end models.RenderPoint, name string) (*models.MissionState, error) {
	if s.engine.Snapshot().Status.InProgress() {
		return nil, ErrMissionInProgress
	}

	settings := s.Settings()
	speed := settings.SpeedMetersPerSecond()

	route, err := s.router.FetchRoute(ctx, start, end, speed)
	if err != nil {
		return nil, err
	}

	checkpoints := checkpoint.Derive(route, settings.RestIntervalMinutes, speed)
	if err := s.engine.SetRoute(route, checkpoints); err != nil {
		return nil, err
	}

	draft := s.store.CreateDraft(Draft{Name: name, Route: route})

	s.mu.Lock()
	s.mission = draft
	s.mu.Unlock()

	log.Printf("[MISSION] Planned: id=%s distance=%.0f duration=%.0f checkpoints=%d",
		draft.ID, route.TotalDistanceMeters, route.DurationSeconds, len(checkpoints))

	c := draft.Clone()
	return &c, nil
}

// Start begins the planned mission
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	hasMission := s.mission != nil
	s.mu.Unlock()

	if !hasMission {
		return ErrNoMission
	}
	if !s.engine.Start() {
		return ErrCannotStart
	}
	return nil
}

// Acknowledge resumes the mission paused at a checkpoint and records a log
// entry for it. The place label is resolved after resuming so a slow
// geocoder never holds up progress. A logging failure does not undo the
// resume; the error is returned alongside the result.
func (s *Session) Acknowledge(ctx context.Context, note, photo string) (*AckResult, error) {
	snap := s.engine.Snapshot()
	if snap.Status != models.StatusPaused {
		return nil, ErrNotPaused
	}

	s.mu.Lock()
	missionID := ""
	if s.mission != nil {
		missionID = s.mission.ID
	}
	s.mu.Unlock()

	acked, ok := s.engine.Resume()
	if !ok {
		return nil, ErrNotPaused
	}

	result := &AckResult{CheckpointID: acked}
	if acked == "" || missionID == "" {
		return result, nil
	}

	_, idx, found := lo.FindIndexOf(snap.Checkpoints, func(cp models.Checkpoint) bool {
		return cp.ID == acked
	})
	if !found {
		return result, nil
	}
	cp := snap.Checkpoints[idx]

	labelCtx, cancel := context.WithTimeout(ctx, s.labelTimeout)
	label := geocoding.Label(labelCtx, s.geocoder, cp.Position.ToRender(), fmt.Sprintf("Checkpoint %d", idx+1))
	cancel()

	entry := &models.CheckpointLogEntry{
		Label:              label,
		Note:               note,
		Photo:              photo,
		DistanceMarkMeters: cp.DistanceMarkMeters,
	}
	if err := s.logbook.AppendLog(ctx, missionID, entry); err != nil {
		log.Printf("[ERROR] Failed to log checkpoint: mission_id=%s checkpoint=%s err=%v", missionID, cp.ID, err)
		s.recordWrite(err)
		return result, err
	}

	result.Entry = entry
	return result, nil
}

// End finishes the running mission before it reaches the destination
func (s *Session) End(ctx context.Context) error {
	if !s.engine.Finish() {
		return ErrNotInProgress
	}
	return s.LastWriteError()
}

// Reset discards the current mission. A mission still in progress is
// finalized first so it is never offered for recovery.
func (s *Session) Reset(ctx context.Context) error {
	s.engine.Reset()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	m := s.mission
	s.mission = nil
	s.mu.Unlock()

	if m == nil || !m.Status.InProgress() {
		return nil
	}

	err := s.store.Finalize(ctx, m)
	s.recordWrite(err)
	if err != nil {
		log.Printf("[ERROR] Failed to finalize mission on reset: id=%s err=%v", m.ID, err)
		return err
	}
	log.Printf("[MISSION] Finalized on reset: id=%s progress=%.4f", m.ID, m.Metrics.Progress)
	return nil
}

// Recover restores the newest in-progress mission, paused. It returns nil
// when there is nothing to recover.
func (s *Session) Recover(ctx context.Context) (*models.MissionState, error) {
	m, err := s.store.GetActiveMission(ctx)
	if err != nil {
		return nil, err
	}
	if m == nil {
		log.Printf("[MISSION] No active mission to recover")
		return nil, nil
	}
	if m.Route == nil {
		log.Printf("[ERROR] Active mission has no route, finalizing: id=%s", m.ID)
		return nil, s.store.Finalize(ctx, m)
	}

	settings := s.Settings()
	checkpoints := checkpoint.Derive(m.Route, settings.RestIntervalMinutes, settings.SpeedMetersPerSecond())

	s.mu.Lock()
	s.mission = m
	s.mu.Unlock()

	if err := s.engine.Restore(m, checkpoints); err != nil {
		s.mu.Lock()
		s.mission = nil
		s.mu.Unlock()
		return nil, err
	}

	log.Printf("[MISSION] Recovered: id=%s progress=%.4f acknowledged=%d", m.ID, m.Metrics.Progress, len(m.CheckpointRefs))

	s.mu.Lock()
	c := s.mission.Clone()
	s.mu.Unlock()
	return &c, nil
}

// UpdateSettings validates and saves settings and pushes them into the
// engine. An idle mission gets its duration and checkpoints re-derived.
func (s *Session) UpdateSettings(ctx context.Context, settings models.Settings) error {
	if err := database.ValidateSettings(&settings); err != nil {
		return err
	}
	if err := s.settings.Update(ctx, &settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	s.mu.Lock()
	s.current = settings
	s.mu.Unlock()

	s.engine.SetProximityThreshold(settings.ProximityThresholdMeters)
	s.engine.SetRecomputeDuration(settings.RecomputeDurationOnSpeedChange)
	speed := settings.SpeedMetersPerSecond()
	s.engine.SetSpeed(speed)

	snap := s.engine.Snapshot()
	if snap.Status != models.StatusIdle || snap.Route == nil {
		return nil
	}

	route := *snap.Route
	route.DurationSeconds = route.TotalDistanceMeters / speed
	checkpoints := checkpoint.Derive(&route, settings.RestIntervalMinutes, speed)
	if err := s.engine.SetRoute(&route, checkpoints); err != nil {
		return err
	}

	s.mu.Lock()
	if s.mission != nil {
		s.mission.Route = &route
		s.mission.Metrics.TimeLeftSeconds = route.DurationSeconds
		s.mission.Metrics.TotalTimeSeconds = route.DurationSeconds
	}
	s.mu.Unlock()

	log.Printf("[MISSION] Re-derived idle mission: duration=%.0f checkpoints=%d", route.DurationSeconds, len(checkpoints))
	return nil
}

// Settings returns the settings currently in effect
func (s *Session) Settings() models.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Status returns the current mission, engine snapshot and durability flag
func (s *Session) Status() Status {
	snap := s.engine.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Snapshot:  snap,
		Settings:  s.current,
		Degraded:  s.degraded,
		LastError: s.lastErr,
	}
	if s.mission != nil {
		c := s.mission.Clone()
		st.Mission = &c
	}
	return st
}

// LastWriteError returns the most recent write failure while degraded
func (s *Session) LastWriteError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.degraded {
		return nil
	}
	return errors.New(s.lastErr)
}

// History returns all mission summaries, newest first
func (s *Session) History(ctx context.Context) ([]models.MissionState, error) {
	return s.store.GetAllSummaries(ctx)
}

// GetMission returns one stored mission summary
func (s *Session) GetMission(ctx context.Context, id string) (*models.MissionState, error) {
	return s.store.Get(ctx, id)
}

// Logs returns a mission's checkpoint log in insertion order
func (s *Session) Logs(ctx context.Context, missionID string) ([]models.CheckpointLogEntry, error) {
	return s.logbook.GetLogs(ctx, missionID)
}

// DeleteMission removes a summary and then its logs. The running mission
// cannot be deleted.
func (s *Session) DeleteMission(ctx context.Context, id string) error {
	s.mu.Lock()
	running := s.mission != nil && s.mission.ID == id && s.mission.Status.InProgress()
	s.mu.Unlock()
	if running {
		return ErrMissionInProgress
	}

	if err := s.store.DeleteMission(ctx, id); err != nil {
		return err
	}
	if err := s.logbook.DeleteLogs(ctx, id); err != nil {
		log.Printf("[ERROR] Mission deleted but logs remain: id=%s err=%v", id, err)
		return fmt.Errorf("mission %s deleted but its logs were not: %w", id, err)
	}

	log.Printf("[MISSION] Deleted: id=%s", id)
	return nil
}

// onSnapshot mirrors engine state into the mission record and persists it.
// Snapshots from an earlier route epoch are dropped so a late frame of a
// previous mission never touches the current one.
func (s *Session) onSnapshot(snap engine.Snapshot) {
	s.mu.Lock()
	switch snap.Event {
	case engine.EventRouteSet, engine.EventReset, engine.EventRestored:
		s.epoch = snap.Epoch
	}
	if s.mission == nil || snap.Route == nil || snap.Epoch != s.epoch {
		s.mu.Unlock()
		return
	}

	switch snap.Event {
	case engine.EventRouteSet, engine.EventReset:
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	s.mission.Status = snap.Status
	s.mission.Position = snap.Position
	s.mission.Metrics = snap.Metrics
	s.mission.Route = snap.Route
	s.mission.CheckpointRefs = snap.Acknowledged
	s.mission.Timestamp = now

	// drafts are only written once started
	write := snap.Status.InProgress() || snap.Event == engine.EventFinished
	if write && snap.Event == engine.EventTick {
		write = now.Sub(s.lastPersist) >= s.interval
	}
	s.mu.Unlock()

	if !write {
		return
	}
	s.persistCurrent(snap.Event == engine.EventFinished)
}

// persistCurrent writes the latest mission record. Writes are serialized
// and always read the record at write time, so a slow write never lands
// after a newer one.
func (s *Session) persistCurrent(finalize bool) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if s.mission == nil {
		s.mu.Unlock()
		return
	}
	m := s.mission.Clone()
	s.lastPersist = s.clock.Now()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	if finalize {
		err = s.store.Finalize(ctx, &m)
		if err == nil {
			log.Printf("[MISSION] Finalized: id=%s progress=%.4f", m.ID, m.Metrics.Progress)
		}
	} else {
		err = s.store.Persist(ctx, &m)
	}
	if err != nil {
		log.Printf("[ERROR] Mission write failed, continuing in memory: id=%s err=%v", m.ID, err)
	}
	s.recordWrite(err)
}

func (s *Session) recordWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.degraded = true
		s.lastErr = err.Error()
		return
	}
	s.degraded = false
	s.lastErr = ""
}
