package mission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focus-walker/internal/database"
	"focus-walker/internal/engine"
	"focus-walker/internal/geocoding"
	"focus-walker/internal/models"
	"focus-walker/internal/routing"
	"focus-walker/internal/testutil"
)

var (
	origin      = models.RenderPoint{Lat: 0, Lng: 0}
	destination = models.RenderPoint{Lat: 0, Lng: 0.0449}
)

type sessionFixture struct {
	session *Session
	sched   *testutil.FakeScheduler
	router  *testutil.MockRouter
	store   *testutil.MemoryStore
}

func newFixture(t *testing.T, store *testutil.MemoryStore, geocoder geocoding.Geocoder) *sessionFixture {
	t.Helper()

	if store == nil {
		store = testutil.NewMemoryStore()
	}
	sched := testutil.NewFakeScheduler(baseTime)
	router := testutil.NewMockRouter()
	router.SetRoute(origin, destination, testutil.StraightRoute(5000, 1))

	session, err := NewSession(context.Background(), Deps{
		Scheduler:       sched,
		Router:          router,
		Geocoder:        geocoder,
		Store:           store,
		Clock:           sched,
		PersistInterval: 10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(session.Close)

	return &sessionFixture{session: session, sched: sched, router: router, store: store}
}

func (f *sessionFixture) planAndStart(t *testing.T) *models.MissionState {
	t.Helper()
	ctx := context.Background()

	m, err := f.session.PlanRoute(ctx, origin, destination, "Focus")
	require.NoError(t, err)
	require.NoError(t, f.session.Start(ctx))
	return m
}

type stubGeocoder struct {
	name string
	err  error
}

func (g *stubGeocoder) Reverse(ctx context.Context, p models.RenderPoint) (*geocoding.Place, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &geocoding.Place{Point: p, Name: g.name}, nil
}

func (g *stubGeocoder) Search(ctx context.Context, query string, limit int) ([]geocoding.Place, error) {
	return nil, nil
}

func TestSession_PlanRoute(t *testing.T) {
	f := newFixture(t, nil, nil)

	m, err := f.session.PlanRoute(context.Background(), origin, destination, "Focus")
	require.NoError(t, err)

	assert.Equal(t, models.StatusIdle, m.Status)
	assert.Equal(t, 5000.0, m.Metrics.TotalDistanceMeters)
	// 5 km/h default
	assert.InDelta(t, 3600, m.Metrics.TotalTimeSeconds, 1e-6)
	assert.Equal(t, 0, f.store.UpsertCount(), "drafts are not written")

	require.Len(t, f.router.Calls, 1)
	assert.InDelta(t, 5000.0/3600, f.router.Calls[0].Speed, 1e-9)

	// 25 min at 5 km/h
	snap := f.session.Status().Snapshot
	require.Len(t, snap.Checkpoints, 2)
	assert.InDelta(t, 2083.33, snap.Checkpoints[0].DistanceMarkMeters, 0.01)
	assert.Equal(t, models.StatusIdle, snap.Status)
}

func TestSession_PlanRouteErrors(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	f.router.Err = routing.ErrNoRouteFound
	_, err := f.session.PlanRoute(ctx, origin, destination, "")
	assert.ErrorIs(t, err, routing.ErrNoRouteFound)
	assert.Nil(t, f.session.Status().Mission)

	f.router.Err = nil
	f.planAndStart(t)

	_, err = f.session.PlanRoute(ctx, origin, destination, "")
	assert.ErrorIs(t, err, ErrMissionInProgress)
	assert.Equal(t, 2, f.router.CallCount(), "no fetch while a mission runs")
}

func TestSession_Start(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.session.Start(ctx), ErrNoMission)

	m := f.planAndStart(t)

	stored, ok := f.store.Mission(m.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.Equal(t, 1, f.store.UpsertCount())

	assert.ErrorIs(t, f.session.Start(ctx), ErrCannotStart)
}

func TestSession_TickWritesAreThrottled(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.planAndStart(t)
	require.Equal(t, 1, f.store.UpsertCount())

	f.sched.Advance(9*time.Second, time.Second)
	assert.Equal(t, 1, f.store.UpsertCount())

	f.sched.Step(time.Second)
	assert.Equal(t, 2, f.store.UpsertCount())
}

func TestSession_CheckpointAcknowledge(t *testing.T) {
	geocoder := &stubGeocoder{name: "Canal Saint-Martin, Paris"}
	f := newFixture(t, nil, geocoder)
	ctx := context.Background()
	m := f.planAndStart(t)

	_, err := f.session.Acknowledge(ctx, "too early", "")
	assert.ErrorIs(t, err, ErrNotPaused)

	f.sched.Advance(1600*time.Second, 10*time.Second)

	st := f.session.Status()
	require.Equal(t, models.StatusPaused, st.Snapshot.Status)
	assert.Equal(t, "cp-1", st.Snapshot.PendingCheckpoint)
	stored, _ := f.store.Mission(m.ID)
	assert.Equal(t, models.StatusPaused, stored.Status)

	result, err := f.session.Acknowledge(ctx, "stretched", "")
	require.NoError(t, err)
	assert.Equal(t, "cp-1", result.CheckpointID)
	require.NotNil(t, result.Entry)
	assert.Equal(t, "Canal Saint-Martin, Paris", result.Entry.Label)
	assert.InDelta(t, 2083.33, result.Entry.DistanceMarkMeters, 0.01)

	logs, err := f.session.Logs(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "stretched", logs[0].Note)

	st = f.session.Status()
	assert.Equal(t, models.StatusActive, st.Snapshot.Status)
	stored, _ = f.store.Mission(m.ID)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.Equal(t, []string{"cp-1"}, stored.CheckpointRefs)
}

func TestSession_AcknowledgeFallbackLabel(t *testing.T) {
	f := newFixture(t, nil, &stubGeocoder{err: errors.New("offline")})
	ctx := context.Background()
	f.planAndStart(t)

	f.sched.Advance(1600*time.Second, 10*time.Second)

	result, err := f.session.Acknowledge(ctx, "", "")
	require.NoError(t, err)
	require.NotNil(t, result.Entry)
	assert.Equal(t, "Checkpoint 1", result.Entry.Label)
}

func TestSession_AcknowledgeLogFailureStillResumes(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.planAndStart(t)

	f.sched.Advance(1600*time.Second, 10*time.Second)
	f.store.SetLogErr(errors.New("disk full"))

	result, err := f.session.Acknowledge(ctx, "note", "")
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.NotNil(t, result)
	assert.Nil(t, result.Entry)
	assert.Equal(t, "cp-1", result.CheckpointID)

	st := f.session.Status()
	assert.Equal(t, models.StatusActive, st.Snapshot.Status)
	assert.Contains(t, st.Snapshot.Acknowledged, "cp-1")
}

// slowGeocoder blocks until its context ends and records the mission
// status seen while the lookup was running
type slowGeocoder struct {
	session *Session
	seen    models.MissionStatus
}

func (g *slowGeocoder) Reverse(ctx context.Context, p models.RenderPoint) (*geocoding.Place, error) {
	g.seen = g.session.Status().Snapshot.Status
	<-ctx.Done()
	return nil, ctx.Err()
}

func (g *slowGeocoder) Search(ctx context.Context, query string, limit int) ([]geocoding.Place, error) {
	return nil, nil
}

func TestSession_AcknowledgeDoesNotWaitForGeocoder(t *testing.T) {
	geocoder := &slowGeocoder{}
	f := newFixture(t, nil, geocoder)
	geocoder.session = f.session
	f.session.labelTimeout = 50 * time.Millisecond
	ctx := context.Background()
	m := f.planAndStart(t)

	f.sched.Advance(1600*time.Second, 10*time.Second)
	require.Equal(t, models.StatusPaused, f.session.Status().Snapshot.Status)

	began := time.Now()
	result, err := f.session.Acknowledge(ctx, "slow network", "")
	require.NoError(t, err)
	assert.Less(t, time.Since(began), time.Second)

	assert.Equal(t, models.StatusActive, geocoder.seen, "resumed before the place lookup")
	require.NotNil(t, result.Entry)
	assert.Equal(t, "Checkpoint 1", result.Entry.Label)

	logs, err := f.session.Logs(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "slow network", logs[0].Note)
}

func TestSession_PersistFailureKeepsRunning(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	f.store.SetMissionErr(errors.New("disk full"))
	m := f.planAndStart(t)

	st := f.session.Status()
	assert.True(t, st.Degraded)
	assert.Contains(t, st.LastError, "disk full")
	assert.Equal(t, models.StatusActive, st.Snapshot.Status)

	f.sched.Advance(20*time.Second, time.Second)
	assert.Greater(t, f.session.Status().Snapshot.Metrics.Progress, 0.0)

	f.store.SetMissionErr(nil)
	require.NoError(t, f.session.End(ctx))
	assert.False(t, f.session.Status().Degraded)

	stored, ok := f.store.Mission(m.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusFinished, stored.Status)
}

func TestSession_FinishesAtDestination(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	short := testutil.StraightRoute(100, 1)
	f.router.SetRoute(origin, destination, short)

	m := f.planAndStart(t)
	f.sched.Advance(100*time.Second, time.Second)

	st := f.session.Status()
	assert.Equal(t, models.StatusFinished, st.Snapshot.Status)
	assert.Equal(t, 1.0, st.Snapshot.Metrics.Progress)
	assert.Equal(t, 0, f.sched.Pending())

	stored, ok := f.store.Mission(m.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusFinished, stored.Status)
	assert.Equal(t, 1.0, stored.Metrics.Progress)

	active, err := f.session.store.GetActiveMission(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestSession_End(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.session.End(ctx), ErrNotInProgress)

	m := f.planAndStart(t)
	f.sched.Advance(60*time.Second, time.Second)
	require.NoError(t, f.session.End(ctx))

	assert.Equal(t, 0, f.sched.Pending())
	stored, _ := f.store.Mission(m.ID)
	assert.Equal(t, models.StatusFinished, stored.Status)
	assert.Less(t, stored.Metrics.Progress, 1.0)
}

func TestSession_ResetFinalizesRunningMission(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	m := f.planAndStart(t)
	f.sched.Advance(30*time.Second, time.Second)

	require.NoError(t, f.session.Reset(ctx))

	st := f.session.Status()
	assert.Nil(t, st.Mission)
	assert.Equal(t, models.StatusIdle, st.Snapshot.Status)
	assert.Nil(t, st.Snapshot.Route)
	assert.Nil(t, st.Snapshot.Position.Current)
	assert.Equal(t, models.MissionMetrics{}, st.Snapshot.Metrics)
	assert.Equal(t, 0, f.sched.Pending())

	stored, _ := f.store.Mission(m.ID)
	assert.Equal(t, models.StatusFinished, stored.Status)
}

func TestSession_Recover(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()

	first := newFixture(t, store, nil)
	m := first.planAndStart(t)
	first.sched.Advance(1000*time.Second, 10*time.Second)
	persisted, ok := store.Mission(m.ID)
	require.True(t, ok)
	first.session.Close()

	second := newFixture(t, store, nil)
	recovered, err := second.session.Recover(ctx)
	require.NoError(t, err)
	require.NotNil(t, recovered)
	assert.Equal(t, m.ID, recovered.ID)
	assert.Equal(t, models.StatusPaused, recovered.Status)

	snap := second.session.Status().Snapshot
	assert.Equal(t, models.StatusPaused, snap.Status)
	assert.InDelta(t, persisted.Metrics.Progress, snap.Metrics.Progress, 1e-9)
	assert.Equal(t, 0, second.sched.Pending())

	result, err := second.session.Acknowledge(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, result.CheckpointID)
	assert.Nil(t, result.Entry)
	assert.Equal(t, models.StatusActive, second.session.Status().Snapshot.Status)
}

func TestSession_RecoverPausedAtCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()

	first := newFixture(t, store, nil)
	m := first.planAndStart(t)
	first.sched.Advance(1600*time.Second, 10*time.Second)
	require.Equal(t, "cp-1", first.session.Status().Snapshot.PendingCheckpoint)
	first.session.Close()

	second := newFixture(t, store, &stubGeocoder{name: "Quai de Valmy"})
	_, err := second.session.Recover(ctx)
	require.NoError(t, err)

	snap := second.session.Status().Snapshot
	assert.Equal(t, models.StatusPaused, snap.Status)
	assert.Equal(t, "cp-1", snap.PendingCheckpoint)

	result, err := second.session.Acknowledge(ctx, "my rest note", "")
	require.NoError(t, err)
	assert.Equal(t, "cp-1", result.CheckpointID)
	require.NotNil(t, result.Entry)

	logs, err := second.session.Logs(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "my rest note", logs[0].Note)
	assert.Equal(t, "Quai de Valmy", logs[0].Label)

	second.sched.Advance(30*time.Second, 10*time.Second)
	snap = second.session.Status().Snapshot
	assert.Equal(t, models.StatusActive, snap.Status)
	assert.Equal(t, []string{"cp-1"}, snap.Acknowledged)
}

func TestSession_RecoverNothing(t *testing.T) {
	f := newFixture(t, nil, nil)

	m, err := f.session.Recover(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, models.StatusIdle, f.session.Status().Snapshot.Status)
}

func TestSession_UpdateSettingsRederivesIdleMission(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.session.PlanRoute(ctx, origin, destination, "")
	require.NoError(t, err)

	settings := models.DefaultSettings()
	settings.WalkingSpeedKmh = 9
	settings.RestIntervalMinutes = 10
	require.NoError(t, f.session.UpdateSettings(ctx, settings))

	st := f.session.Status()
	assert.Equal(t, settings, st.Settings)
	assert.InDelta(t, 2000, st.Mission.Metrics.TotalTimeSeconds, 1e-6)
	assert.InDelta(t, 2000, st.Snapshot.Metrics.TotalTimeSeconds, 1e-6)
	// 1500 m spacing
	require.Len(t, st.Snapshot.Checkpoints, 3)
	assert.Equal(t, 4500.0, st.Snapshot.Checkpoints[2].DistanceMarkMeters)
	assert.Equal(t, 0, f.store.UpsertCount())

	saved, err := f.store.Settings().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings, *saved)
}

func TestSession_UpdateSettingsWhileRunning(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.planAndStart(t)
	before := f.session.Status().Snapshot

	settings := models.DefaultSettings()
	settings.WalkingSpeedKmh = 10
	settings.RestIntervalMinutes = 5
	require.NoError(t, f.session.UpdateSettings(ctx, settings))

	after := f.session.Status().Snapshot
	assert.InDelta(t, 10000.0/3600, after.SpeedMetersPerSecond, 1e-9)
	assert.Equal(t, before.Checkpoints, after.Checkpoints)
	assert.Equal(t, before.Metrics.TotalTimeSeconds, after.Metrics.TotalTimeSeconds)
	assert.Equal(t, models.StatusActive, after.Status)
}

func TestSession_UpdateSettingsInvalid(t *testing.T) {
	f := newFixture(t, nil, nil)

	settings := models.DefaultSettings()
	settings.WalkingSpeedKmh = 0
	err := f.session.UpdateSettings(context.Background(), settings)

	var invalid *database.ErrInvalidSettings
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "walking_speed_kmh", invalid.Field)
	assert.Equal(t, models.DefaultSettings(), f.session.Settings())
}

func TestSession_DeleteMission(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	m := f.planAndStart(t)

	assert.ErrorIs(t, f.session.DeleteMission(ctx, m.ID), ErrMissionInProgress)

	f.sched.Advance(1600*time.Second, 10*time.Second)
	_, err := f.session.Acknowledge(ctx, "note", "")
	require.NoError(t, err)
	require.NoError(t, f.session.End(ctx))

	require.NoError(t, f.session.DeleteMission(ctx, m.ID))
	_, ok := f.store.Mission(m.ID)
	assert.False(t, ok)
	logs, err := f.session.Logs(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	assert.ErrorIs(t, f.session.DeleteMission(ctx, m.ID), database.ErrNotFound)
}

func TestSession_DeleteMissionPartialFailure(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	m := f.planAndStart(t)
	require.NoError(t, f.session.End(ctx))

	f.store.SetLogErr(errors.New("disk full"))
	err := f.session.DeleteMission(ctx, m.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logs were not")

	_, ok := f.store.Mission(m.ID)
	assert.False(t, ok)
}

func TestSession_History(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	first := f.planAndStart(t)
	require.NoError(t, f.session.End(ctx))
	require.NoError(t, f.session.Reset(ctx))

	f.sched.Step(time.Minute)
	second := f.planAndStart(t)

	history, err := f.session.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
}

func TestSession_LateSnapshotFromPreviousMissionIgnored(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.planAndStart(t)
	f.sched.Advance(60*time.Second, 10*time.Second)

	stale := f.session.Engine().Snapshot()
	stale.Event = engine.EventTick
	require.Equal(t, models.StatusActive, stale.Status)

	require.NoError(t, f.session.Reset(ctx))
	draft, err := f.session.PlanRoute(ctx, origin, destination, "Next")
	require.NoError(t, err)
	writes := f.store.UpsertCount()

	f.session.onSnapshot(stale)

	st := f.session.Status()
	require.NotNil(t, st.Mission)
	assert.Equal(t, draft.ID, st.Mission.ID)
	assert.Equal(t, models.StatusIdle, st.Mission.Status)
	assert.Equal(t, 0.0, st.Mission.Metrics.Progress)
	assert.Equal(t, writes, f.store.UpsertCount())
	_, stored := f.store.Mission(draft.ID)
	assert.False(t, stored)
}
