// Package engine drives the simulation: it is the only component that
// advances robots and missions on elapsed time. Everything else reacts to
// explicit calls.
package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleetsim/internal/domain"
	"fleetsim/internal/fleet"
	"fleetsim/internal/mission"
	"fleetsim/internal/notify"
)

// Window bounds a uniformly sampled dwell duration, inclusive.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Timing carries the scheduler cadences and per-phase dwell windows.
type Timing struct {
	MissionInterval time.Duration
	MissionsPerTick int
	SweepInterval   time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration

	DwellAssigned   Window
	DwellEnRoute    Window
	DwellDelivering Window
	DwellCompleted  Window
}

// deadline fixes the moment a robot leaves its current phase. The dwell is
// sampled once, on phase entry, so dwell times are truly uniform in the
// configured window instead of being re-rolled every sweep.
type deadline struct {
	status string
	due    time.Time
}

// Engine is the simulation scheduler. One goroutine owns the three periodic
// timers; API-triggered operations (CreateMission, CancelRobotMission,
// Start, Stop) synchronize with it through the engine mutex.
type Engine struct {
	Now func() time.Time

	cfg      Timing
	fleet    *fleet.Registry
	missions *mission.Registry
	pub      notify.Publisher
	log      *zap.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	deadlines map[string]deadline
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg Timing, fl *fleet.Registry, ms *mission.Registry, pub notify.Publisher, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = notify.Nop{}
	}
	return &Engine{
		Now:       time.Now,
		cfg:       cfg,
		fleet:     fl,
		missions:  ms,
		pub:       pub,
		log:       log,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		deadlines: make(map[string]deadline),
	}
}

// Start arms the three timers. Starting a running engine is a caller bug.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(ctx)
	e.pub.Publish(notify.Event{Type: notify.TypeSimStarted, TS: e.Now()})
	e.log.Info("simulation started")
	return nil
}

// Stop disarms the timers. Stopping a stopped engine is benign: it logs a
// warning and returns ErrNotRunning, leaving state untouched.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		e.log.Warn("stop requested but simulation not running")
		return domain.ErrNotRunning
	}
	e.running = false
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	e.pub.Publish(notify.Event{Type: notify.TypeSimStopped, TS: e.Now()})
	e.log.Info("simulation stopped")
	return nil
}

// Running reports whether the timers are armed.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	generate := time.NewTicker(e.cfg.MissionInterval)
	sweep := time.NewTicker(e.cfg.SweepInterval)
	cleanup := time.NewTicker(e.cfg.CleanupInterval)
	defer generate.Stop()
	defer sweep.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-generate.C:
			e.generateMissions()
		case <-sweep.C:
			e.sweepTransitions()
		case <-cleanup.C:
			e.sweepCleanup()
		}
	}
}

// generateMissions creates a batch of missions and immediately attempts
// assignment for each. Missions that find no robot stay PENDING and are
// retried on every transition sweep.
func (e *Engine) generateMissions() {
	for i := 0; i < e.cfg.MissionsPerTick; i++ {
		m := e.missions.Create()
		e.tryAssign(m.ID)
	}
}

// CreateMission services the on-demand API path: create one mission and
// attempt assignment right away. Returns the post-assignment snapshot.
func (e *Engine) CreateMission() domain.Mission {
	m := e.missions.Create()
	e.tryAssign(m.ID)
	snap, err := e.missions.Get(m.ID)
	if err != nil {
		return m
	}
	return snap
}

// tryAssign binds missionID to the first available robot and mirrors the
// assignment on the mission side. Returns false when the fleet is busy.
func (e *Engine) tryAssign(missionID string) bool {
	robot, ok := e.fleet.AssignToAvailable(missionID)
	if !ok {
		return false
	}
	if err := e.missions.Assign(missionID, robot.ID); err != nil {
		// The two registries disagree about this mission. Unwind the robot
		// so it is not stuck bound to a mission that never advances.
		e.log.Error("mission assign failed after robot claim",
			zap.String("mission_id", missionID),
			zap.String("robot_id", robot.ID),
			zap.Error(err))
		e.fleet.CancelMission(robot.ID)
		return false
	}
	e.mu.Lock()
	e.deadlines[robot.ID] = deadline{
		status: domain.RobotAssigned,
		due:    e.Now().Add(e.sample(e.cfg.DwellAssigned)),
	}
	e.mu.Unlock()
	return true
}

// sample draws a uniform dwell from w. Callers must hold e.mu.
func (e *Engine) sample(w Window) time.Duration {
	span := w.Max - w.Min
	if span <= 0 {
		return w.Min
	}
	return w.Min + time.Duration(e.rng.Int63n(int64(span)+1))
}

// CancelRobotMission aborts the robot's current mission and mirrors the
// cancellation on the mission side. False means the robot ID is unknown or
// the robot was already idle.
func (e *Engine) CancelRobotMission(robotID string) bool {
	missionID, ok := e.fleet.CancelMission(robotID)
	if !ok {
		return false
	}
	e.mu.Lock()
	delete(e.deadlines, robotID)
	e.mu.Unlock()
	if missionID != "" {
		if err := e.missions.Cancel(missionID); err != nil {
			e.log.Error("mission cancel failed", zap.String("mission_id", missionID), zap.Error(err))
		}
	}
	return true
}

// sweepTransitions is the 10-second sweep: retry PENDING assignments, then
// advance every robot whose phase deadline has passed. A fault on one
// entity is logged and never halts the rest of the fleet.
func (e *Engine) sweepTransitions() {
	for _, m := range e.missions.Pending() {
		if !e.tryAssign(m.ID) {
			break
		}
	}

	now := e.Now()
	for _, r := range e.fleet.Entities() {
		snap := r.Snapshot()
		if snap.Status == domain.RobotIdle {
			e.mu.Lock()
			delete(e.deadlines, snap.ID)
			e.mu.Unlock()
			e.driftIdle(r)
			continue
		}

		e.mu.Lock()
		d, ok := e.deadlines[snap.ID]
		if !ok || d.status != snap.Status {
			// Robot entered this phase outside the engine's own paths
			// (or the entry is stale); fix the dwell now.
			e.deadlines[snap.ID] = deadline{
				status: snap.Status,
				due:    now.Add(e.sample(e.windowFor(snap.Status))),
			}
			e.mu.Unlock()
			e.driftActive(r)
			continue
		}
		due := !now.Before(d.due)
		e.mu.Unlock()

		if due {
			if err := e.advance(r, snap); err != nil {
				e.log.Error("transition sweep fault",
					zap.String("robot_id", snap.ID),
					zap.String("status", snap.Status),
					zap.Error(err))
				e.mu.Lock()
				delete(e.deadlines, snap.ID)
				e.mu.Unlock()
			}
		}
		e.driftActive(r)
	}
}

// advance performs one robot transition and mirrors it on the mission side,
// then fixes the dwell for the phase just entered.
func (e *Engine) advance(r *fleet.Robot, snap domain.Robot) error {
	var next string
	switch snap.Status {
	case domain.RobotAssigned:
		if err := r.StartMission(); err != nil {
			return err
		}
		if snap.MissionID != nil {
			if err := e.missions.Start(*snap.MissionID); err != nil {
				return err
			}
		}
		next = domain.RobotEnRoute
	case domain.RobotEnRoute:
		if err := r.StartDelivering(); err != nil {
			return err
		}
		next = domain.RobotDelivering
	case domain.RobotDelivering:
		if err := r.CompleteMission(); err != nil {
			return err
		}
		if snap.MissionID != nil {
			if err := e.missions.Complete(*snap.MissionID); err != nil {
				return err
			}
		}
		next = domain.RobotCompleted
	case domain.RobotCompleted:
		if err := r.ReturnToIdle(); err != nil {
			return err
		}
		next = domain.RobotIdle
	default:
		return nil
	}

	e.mu.Lock()
	if next == domain.RobotIdle {
		delete(e.deadlines, snap.ID)
	} else {
		e.deadlines[snap.ID] = deadline{
			status: next,
			due:    e.Now().Add(e.sample(e.windowFor(next))),
		}
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) sweepCleanup() {
	if removed := e.missions.Cleanup(e.cfg.Retention); removed > 0 {
		e.log.Info("cleanup sweep", zap.Int("removed", removed))
	}
}

func (e *Engine) windowFor(status string) Window {
	switch status {
	case domain.RobotAssigned:
		return e.cfg.DwellAssigned
	case domain.RobotEnRoute:
		return e.cfg.DwellEnRoute
	case domain.RobotDelivering:
		return e.cfg.DwellDelivering
	case domain.RobotCompleted:
		return e.cfg.DwellCompleted
	}
	return Window{}
}

// Cosmetic battery/position walks. Display only.

func (e *Engine) driftActive(r *fleet.Robot) {
	e.mu.Lock()
	dBattery := -(0.2 + e.rng.Float64()*0.6)
	dLat := (e.rng.Float64() - 0.5) * 0.002
	dLng := (e.rng.Float64() - 0.5) * 0.002
	e.mu.Unlock()
	r.Drift(dBattery, dLat, dLng)
}

func (e *Engine) driftIdle(r *fleet.Robot) {
	e.mu.Lock()
	dBattery := 0.5 + e.rng.Float64()*0.5
	e.mu.Unlock()
	r.Drift(dBattery, 0, 0)
}
