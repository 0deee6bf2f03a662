// Package engine drives a mission marker along a route in proportion to
// elapsed wall-clock time.
//
// The engine owns its progress accumulator and publishes an immutable
// Snapshot to observers after every transition and tick. Ticks are armed
// one frame at a time through a Scheduler; every transition out of active
// cancels the pending frame, and a generation counter discards any frame
// callback that fires after it was superseded.
package engine

import (
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/samber/lo"

	"focus-walker/internal/geometry"
	"focus-walker/internal/models"
)

// EventType names what produced a snapshot
type EventType string

const (
	EventRouteSet     EventType = "route_set"
	EventStarted      EventType = "started"
	EventTick         EventType = "tick"
	EventCheckpoint   EventType = "checkpoint"
	EventResumed      EventType = "resumed"
	EventFinished     EventType = "finished"
	EventReset        EventType = "reset"
	EventRestored     EventType = "restored"
	EventSpeedChanged EventType = "speed_changed"
)

// ErrMissionInProgress is returned when the route is replaced mid-mission
var ErrMissionInProgress = errors.New("mission in progress")

// ErrNoRoute is returned when restoring a mission without a route
var ErrNoRoute = errors.New("mission has no route")

// Config holds the settings injected into the engine
type Config struct {
	SpeedMetersPerSecond           float64
	ProximityThresholdMeters       float64
	RecomputeDurationOnSpeedChange bool
}

// ConfigFromSettings derives engine configuration from user settings
func ConfigFromSettings(s models.Settings) Config {
	return Config{
		SpeedMetersPerSecond:           s.SpeedMetersPerSecond(),
		ProximityThresholdMeters:       s.ProximityThresholdMeters,
		RecomputeDurationOnSpeedChange: s.RecomputeDurationOnSpeedChange,
	}
}

// Snapshot is the externally observable engine state after one event
type Snapshot struct {
	Event                EventType              `json:"event"`
	Status               models.MissionStatus   `json:"status"`
	Position             models.MissionPosition `json:"position"`
	Metrics              models.MissionMetrics  `json:"metrics"`
	Route                *models.Route          `json:"route,omitempty"`
	Checkpoints          []models.Checkpoint    `json:"checkpoints"`
	Acknowledged         []string               `json:"acknowledged"`
	PendingCheckpoint    string                 `json:"pending_checkpoint,omitempty"`
	SpeedMetersPerSecond float64                `json:"speed_meters_per_second"`
	// Epoch changes whenever the route is replaced, reset or restored
	Epoch uint64 `json:"epoch"`
}

// Engine is the mission progress state machine
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	scheduler Scheduler

	status       models.MissionStatus
	route        *models.Route
	checkpoints  []models.Checkpoint
	acknowledged []string
	pending      string
	progress     float64
	current      *models.RenderPoint

	lastFrame    time.Time
	hasLastFrame bool
	cancelFrame  func()
	generation   uint64
	epoch        uint64

	observers      map[int]func(Snapshot)
	nextObserverID int
}

// New creates an idle engine
func New(cfg Config, scheduler Scheduler) *Engine {
	return &Engine{
		cfg:       cfg,
		scheduler: scheduler,
		status:    models.StatusIdle,
		observers: make(map[int]func(Snapshot)),
	}
}

// Subscribe registers fn to receive every snapshot. Observers run on the
// ticking goroutine and must not block.
func (e *Engine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextObserverID
	e.nextObserverID++
	e.observers[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.observers, id)
	}
}

// Snapshot returns the current state
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked("")
}

// PendingFrame reports whether a frame callback is armed
func (e *Engine) PendingFrame() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelFrame != nil
}

// SetRoute replaces the route and checkpoints wholesale. It is rejected
// while a mission is active or paused.
func (e *Engine) SetRoute(route *models.Route, checkpoints []models.Checkpoint) error {
	e.mu.Lock()
	if e.status.InProgress() {
		e.mu.Unlock()
		return ErrMissionInProgress
	}

	e.stopLocked()
	e.clearLocked()
	e.epoch++
	e.route = route
	e.checkpoints = checkpoints
	e.emitLocked(EventRouteSet)
	return nil
}

// Start begins ticking. It is a no-op unless the engine is idle with a route.
func (e *Engine) Start() bool {
	e.mu.Lock()
	if e.status != models.StatusIdle || e.route == nil {
		e.mu.Unlock()
		return false
	}

	e.status = models.StatusActive
	e.hasLastFrame = false
	gen := e.generation
	log.Printf("[ENGINE] Started: distance=%.0f duration=%.0f checkpoints=%d",
		e.route.TotalDistanceMeters, e.route.DurationSeconds, len(e.checkpoints))
	e.emitLocked(EventStarted)
	e.rearm(gen)
	return true
}

// Resume acknowledges the checkpoint that paused the mission and re-arms
// ticking. It returns the acknowledged checkpoint id, which is empty for a
// mission restored in the paused state.
func (e *Engine) Resume() (string, bool) {
	e.mu.Lock()
	if e.status != models.StatusPaused {
		e.mu.Unlock()
		return "", false
	}

	acked := e.pending
	if acked != "" && !lo.Contains(e.acknowledged, acked) {
		e.acknowledged = append(e.acknowledged, acked)
	}
	e.pending = ""
	e.status = models.StatusActive
	// paused time is not walked
	e.hasLastFrame = false
	gen := e.generation
	log.Printf("[ENGINE] Resumed: checkpoint=%s progress=%.4f", acked, e.progress)
	e.emitLocked(EventResumed)
	e.rearm(gen)
	return acked, true
}

// Finish ends an active or paused mission early
func (e *Engine) Finish() bool {
	e.mu.Lock()
	if !e.status.InProgress() {
		e.mu.Unlock()
		return false
	}

	e.stopLocked()
	e.status = models.StatusFinished
	e.pending = ""
	log.Printf("[ENGINE] Finished early: progress=%.4f", e.progress)
	e.emitLocked(EventFinished)
	return true
}

// Reset returns the engine to idle, clearing the route, position, metrics
// and acknowledgement state
func (e *Engine) Reset() {
	e.mu.Lock()
	e.stopLocked()
	e.clearLocked()
	e.epoch++
	e.route = nil
	e.checkpoints = nil
	log.Printf("[ENGINE] Reset")
	e.emitLocked(EventReset)
}

// SetSpeed changes the walking speed used by subsequent ticks. Elapsed
// progress is never rewritten; the route duration is recomputed only when
// configured to.
func (e *Engine) SetSpeed(speedMetersPerSecond float64) {
	e.mu.Lock()
	if speedMetersPerSecond <= 0 || speedMetersPerSecond == e.cfg.SpeedMetersPerSecond {
		e.mu.Unlock()
		return
	}

	e.cfg.SpeedMetersPerSecond = speedMetersPerSecond
	if e.cfg.RecomputeDurationOnSpeedChange && e.route != nil {
		r := *e.route
		r.DurationSeconds = r.TotalDistanceMeters / speedMetersPerSecond
		e.route = &r
	}
	e.emitLocked(EventSpeedChanged)
}

// SetProximityThreshold changes the checkpoint pause radius
func (e *Engine) SetProximityThreshold(meters float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.ProximityThresholdMeters = meters
}

// SetRecomputeDuration toggles duration recomputation on speed changes
func (e *Engine) SetRecomputeDuration(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.RecomputeDurationOnSpeedChange = enabled
}

// Restore loads a persisted mission. An in-progress mission comes back
// paused so time spent closed is not walked. A mission stored while paused
// at a checkpoint is paused at that checkpoint again.
func (e *Engine) Restore(state *models.MissionState, checkpoints []models.Checkpoint) error {
	if state.Route == nil {
		return ErrNoRoute
	}

	e.mu.Lock()
	e.stopLocked()
	e.clearLocked()
	e.epoch++

	e.route = state.Route
	e.checkpoints = checkpoints
	e.acknowledged = append([]string(nil), state.CheckpointRefs...)
	e.progress = math.Max(0, math.Min(1, state.Metrics.Progress))
	if state.Position.Current != nil {
		p := *state.Position.Current
		e.current = &p
	}

	switch {
	case state.Status.InProgress():
		e.status = models.StatusPaused
		e.pending = e.restoredCheckpointLocked()
	case state.Status == models.StatusFinished:
		e.status = models.StatusFinished
	default:
		e.status = models.StatusIdle
	}

	log.Printf("[ENGINE] Restored: status=%s progress=%.4f acknowledged=%d pending=%s",
		e.status, e.progress, len(e.acknowledged), e.pending)
	e.emitLocked(EventRestored)
	return nil
}

// restoredCheckpointLocked returns the id of the checkpoint the restored
// position has already reached, if any
func (e *Engine) restoredCheckpointLocked() string {
	distanceDone := e.progress * e.route.TotalDistanceMeters

	var pos models.CalcPoint
	havePos := e.current != nil
	if havePos {
		pos = e.current.ToCalc()
	}

	if cp, ok := e.reachedCheckpointLocked(pos, havePos, distanceDone); ok {
		return cp.ID
	}
	return ""
}

func (e *Engine) clearLocked() {
	e.status = models.StatusIdle
	e.acknowledged = nil
	e.pending = ""
	e.progress = 0
	e.current = nil
	e.hasLastFrame = false
}

func (e *Engine) armLocked() {
	e.generation++
	gen := e.generation
	e.cancelFrame = e.scheduler.RequestFrame(func(now time.Time) {
		e.onFrame(gen, now)
	})
}

func (e *Engine) stopLocked() {
	if e.cancelFrame != nil {
		e.cancelFrame()
		e.cancelFrame = nil
	}
	e.generation++
}

func (e *Engine) onFrame(gen uint64, now time.Time) {
	e.mu.Lock()
	if gen != e.generation || e.status != models.StatusActive {
		e.mu.Unlock()
		return
	}
	e.cancelFrame = nil

	event := e.tickLocked(now)

	snap := e.snapshotLocked(event)
	observers := e.observerListLocked()
	e.mu.Unlock()

	notify(observers, snap)
	e.rearm(gen)
}

// rearm requests the next frame unless a transition superseded gen while
// observers were being notified
func (e *Engine) rearm(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen == e.generation && e.status == models.StatusActive && e.cancelFrame == nil {
		e.armLocked()
	}
}

func (e *Engine) tickLocked(now time.Time) EventType {
	delta := 0.0
	if e.hasLastFrame {
		delta = math.Max(0, now.Sub(e.lastFrame).Seconds())
	}
	e.lastFrame = now
	e.hasLastFrame = true

	total := e.route.TotalDistanceMeters
	if total > 0 {
		e.progress = math.Min(1, e.progress+delta*e.cfg.SpeedMetersPerSecond/total)
	} else {
		e.progress = 1
	}
	distanceDone := e.progress * total

	pos, err := geometry.PointAlong(e.route.CalcLine, distanceDone)
	havePos := err == nil
	if havePos {
		rp := pos.ToRender()
		e.current = &rp
	} else {
		log.Printf("[ERROR] Skipping position update: progress=%.4f err=%v", e.progress, err)
	}

	if cp, ok := e.reachedCheckpointLocked(pos, havePos, distanceDone); ok {
		e.status = models.StatusPaused
		e.pending = cp.ID
		log.Printf("[ENGINE] Checkpoint reached: id=%s mark=%.0f progress=%.4f", cp.ID, cp.DistanceMarkMeters, e.progress)
		return EventCheckpoint
	}

	if e.progress >= 1 {
		e.status = models.StatusFinished
		log.Printf("[ENGINE] Finished: distance=%.0f", distanceDone)
		return EventFinished
	}

	return EventTick
}

// reachedCheckpointLocked returns the next unacknowledged checkpoint when the
// marker is within the proximity threshold of it or has passed its mark
func (e *Engine) reachedCheckpointLocked(pos models.CalcPoint, havePos bool, distanceDone float64) (models.Checkpoint, bool) {
	next, ok := lo.Find(e.checkpoints, func(cp models.Checkpoint) bool {
		return !lo.Contains(e.acknowledged, cp.ID)
	})
	if !ok {
		return models.Checkpoint{}, false
	}

	if distanceDone >= next.DistanceMarkMeters {
		return next, true
	}
	if havePos && geometry.Distance(pos, next.Position) < e.cfg.ProximityThresholdMeters {
		return next, true
	}
	return models.Checkpoint{}, false
}

func (e *Engine) metricsLocked() models.MissionMetrics {
	if e.route == nil {
		return models.MissionMetrics{}
	}

	total := e.route.TotalDistanceMeters
	done := e.progress * total
	return models.MissionMetrics{
		Steps:               int(math.Floor(done / models.StrideLengthMeters)),
		Progress:            e.progress,
		DistanceDoneMeters:  done,
		TotalDistanceMeters: total,
		TimeLeftSeconds:     math.Ceil(e.route.DurationSeconds * (1 - e.progress)),
		TotalTimeSeconds:    e.route.DurationSeconds,
	}
}

func (e *Engine) snapshotLocked(event EventType) Snapshot {
	snap := Snapshot{
		Event:                event,
		Status:               e.status,
		Metrics:              e.metricsLocked(),
		Route:                e.route,
		Checkpoints:          e.checkpoints,
		Acknowledged:         append([]string(nil), e.acknowledged...),
		PendingCheckpoint:    e.pending,
		SpeedMetersPerSecond: e.cfg.SpeedMetersPerSecond,
		Epoch:                e.epoch,
	}

	if e.current != nil {
		p := *e.current
		snap.Position.Current = &p
	}
	if e.route != nil && len(e.route.RenderPath) > 0 {
		start, end := e.route.Start(), e.route.End()
		snap.Position.Start = &start
		snap.Position.End = &end
	}
	return snap
}

func (e *Engine) observerListLocked() []func(Snapshot) {
	return lo.Values(e.observers)
}

// emitLocked publishes a transition snapshot and releases the lock
func (e *Engine) emitLocked(event EventType) {
	snap := e.snapshotLocked(event)
	observers := e.observerListLocked()
	e.mu.Unlock()
	notify(observers, snap)
}

func notify(observers []func(Snapshot), snap Snapshot) {
	for _, fn := range observers {
		fn(snap)
	}
}
