package engine

import (
	"errors"
	"testing"
	"time"

	"fleetsim/internal/domain"
	"fleetsim/internal/fleet"
	"fleetsim/internal/mission"
	"fleetsim/internal/notify"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

// Fixed-width dwell windows make sweep outcomes deterministic.
func testTiming() Timing {
	return Timing{
		MissionInterval: time.Hour,
		MissionsPerTick: 2,
		SweepInterval:   time.Hour,
		CleanupInterval: time.Hour,
		Retention:       time.Hour,
		DwellAssigned:   Window{Min: 30 * time.Second, Max: 30 * time.Second},
		DwellEnRoute:    Window{Min: 60 * time.Second, Max: 60 * time.Second},
		DwellDelivering: Window{Min: 120 * time.Second, Max: 120 * time.Second},
		DwellCompleted:  Window{Min: 10 * time.Second, Max: 10 * time.Second},
	}
}

func newTestEngine(t *testing.T, robots int) (*Engine, *fleet.Registry, *mission.Registry, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	fl := fleet.NewRegistry(nil, notify.Nop{})
	fl.Now = c.Now
	if err := fl.Init(robots); err != nil {
		t.Fatalf("init fleet: %v", err)
	}
	ms := mission.NewRegistry(nil, notify.Nop{}, mission.EstimateRange{
		Min: 180 * time.Second,
		Max: 480 * time.Second,
	})
	ms.Now = c.Now
	eng := New(testTiming(), fl, ms, notify.Nop{}, nil)
	eng.Now = c.Now
	return eng, fl, ms, c
}

func robotStatus(t *testing.T, fl *fleet.Registry, id string) string {
	t.Helper()
	snap, err := fl.Get(id)
	if err != nil {
		t.Fatalf("get robot %s: %v", id, err)
	}
	return snap.Status
}

func missionStatus(t *testing.T, ms *mission.Registry, id string) string {
	t.Helper()
	snap, err := ms.Get(id)
	if err != nil {
		t.Fatalf("get mission %s: %v", id, err)
	}
	return snap.Status
}

func TestMissionLifecycle(t *testing.T) {
	eng, fl, ms, c := newTestEngine(t, 3)

	m := eng.CreateMission()
	if m.Status != domain.MissionAssigned {
		t.Fatalf("mission should be assigned immediately, got %s", m.Status)
	}
	if m.RobotID == nil || *m.RobotID != "robot-001" {
		t.Fatalf("expected robot-001 binding, got %+v", m)
	}
	if got := robotStatus(t, fl, "robot-001"); got != domain.RobotAssigned {
		t.Fatalf("robot should be assigned, got %s", got)
	}

	// not yet due: nothing moves
	c.advance(10 * time.Second)
	eng.sweepTransitions()
	if got := robotStatus(t, fl, "robot-001"); got != domain.RobotAssigned {
		t.Fatalf("premature transition to %s", got)
	}

	c.advance(20 * time.Second)
	eng.sweepTransitions()
	if got := robotStatus(t, fl, "robot-001"); got != domain.RobotEnRoute {
		t.Fatalf("expected en_route, got %s", got)
	}
	if got := missionStatus(t, ms, m.ID); got != domain.MissionInProgress {
		t.Fatalf("expected in_progress, got %s", got)
	}

	c.advance(60 * time.Second)
	eng.sweepTransitions()
	if got := robotStatus(t, fl, "robot-001"); got != domain.RobotDelivering {
		t.Fatalf("expected delivering, got %s", got)
	}

	c.advance(120 * time.Second)
	eng.sweepTransitions()
	if got := robotStatus(t, fl, "robot-001"); got != domain.RobotCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	if got := missionStatus(t, ms, m.ID); got != domain.MissionCompleted {
		t.Fatalf("expected mission completed, got %s", got)
	}

	c.advance(10 * time.Second)
	eng.sweepTransitions()
	snap, err := fl.Get("robot-001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Status != domain.RobotIdle || snap.MissionID != nil {
		t.Fatalf("robot should be idle and unbound, got %+v", snap)
	}
}

func TestDwellFixedAtPhaseEntry(t *testing.T) {
	eng, _, _, c := newTestEngine(t, 1)
	m := eng.CreateMission()
	if m.RobotID == nil {
		t.Fatalf("mission not assigned")
	}

	eng.mu.Lock()
	before, ok := eng.deadlines[*m.RobotID]
	eng.mu.Unlock()
	if !ok {
		t.Fatalf("deadline missing after assignment")
	}

	// early sweeps must not re-roll the deadline
	for i := 0; i < 3; i++ {
		c.advance(5 * time.Second)
		eng.sweepTransitions()
	}
	eng.mu.Lock()
	after := eng.deadlines[*m.RobotID]
	eng.mu.Unlock()
	if !after.due.Equal(before.due) || after.status != before.status {
		t.Fatalf("deadline re-sampled: before=%+v after=%+v", before, after)
	}
}

func TestPendingRetry(t *testing.T) {
	eng, fl, ms, c := newTestEngine(t, 1)

	first := eng.CreateMission()
	second := eng.CreateMission()
	if second.Status != domain.MissionPending {
		t.Fatalf("second mission should stay pending, got %s", second.Status)
	}

	// fleet still busy: retry changes nothing
	c.advance(5 * time.Second)
	eng.sweepTransitions()
	if got := missionStatus(t, ms, second.ID); got != domain.MissionPending {
		t.Fatalf("pending mission advanced while fleet busy: %s", got)
	}

	// free the robot; next sweep picks the pending mission up
	if !eng.CancelRobotMission("robot-001") {
		t.Fatalf("cancel should succeed")
	}
	if got := missionStatus(t, ms, first.ID); got != domain.MissionCancelled {
		t.Fatalf("first mission should be cancelled, got %s", got)
	}
	eng.sweepTransitions()
	if got := missionStatus(t, ms, second.ID); got != domain.MissionAssigned {
		t.Fatalf("pending mission should be assigned after retry, got %s", got)
	}
	if got := robotStatus(t, fl, "robot-001"); got != domain.RobotAssigned {
		t.Fatalf("robot should be re-assigned, got %s", got)
	}
}

func TestCancelRobotMission(t *testing.T) {
	eng, fl, ms, c := newTestEngine(t, 1)
	m := eng.CreateMission()

	// advance into delivering before cancelling
	c.advance(30 * time.Second)
	eng.sweepTransitions()
	c.advance(60 * time.Second)
	eng.sweepTransitions()
	if got := robotStatus(t, fl, "robot-001"); got != domain.RobotDelivering {
		t.Fatalf("setup failed, robot is %s", got)
	}

	if !eng.CancelRobotMission("robot-001") {
		t.Fatalf("cancel should succeed")
	}
	if got := robotStatus(t, fl, "robot-001"); got != domain.RobotIdle {
		t.Fatalf("robot should be idle after cancel, got %s", got)
	}
	if got := missionStatus(t, ms, m.ID); got != domain.MissionCancelled {
		t.Fatalf("mission should be cancelled, got %s", got)
	}

	// idempotent
	if eng.CancelRobotMission("robot-001") {
		t.Fatalf("second cancel should report false")
	}
	// unknown robot
	if eng.CancelRobotMission("robot-999") {
		t.Fatalf("cancel on unknown robot should report false")
	}
}

func TestGenerateMissions(t *testing.T) {
	eng, _, ms, _ := newTestEngine(t, 1)
	eng.generateMissions()
	all := ms.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 missions per tick, got %d", len(all))
	}
	if all[0].Status != domain.MissionAssigned {
		t.Fatalf("first mission should claim the robot, got %s", all[0].Status)
	}
	if all[1].Status != domain.MissionPending {
		t.Fatalf("second mission should stay pending, got %s", all[1].Status)
	}
}

func TestCleanupSweep(t *testing.T) {
	eng, _, ms, c := newTestEngine(t, 1)
	m := eng.CreateMission()
	if !eng.CancelRobotMission("robot-001") {
		t.Fatalf("cancel should succeed")
	}

	// inside retention: survives
	c.advance(30 * time.Minute)
	eng.sweepCleanup()
	if _, err := ms.Get(m.ID); err != nil {
		t.Fatalf("mission removed inside retention: %v", err)
	}

	c.advance(time.Hour)
	eng.sweepCleanup()
	if _, err := ms.Get(m.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("mission should be cleaned up, got %v", err)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	eng, _, _, _ := newTestEngine(t, 1)

	if err := eng.Stop(); !errors.Is(err, domain.ErrNotRunning) {
		t.Fatalf("stop before start: expected ErrNotRunning, got %v", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !eng.Running() {
		t.Fatalf("engine should report running")
	}
	if err := eng.Start(); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("double start: expected ErrAlreadyRunning, got %v", err)
	}
	if err := eng.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if eng.Running() {
		t.Fatalf("engine should report stopped")
	}
	if err := eng.Stop(); !errors.Is(err, domain.ErrNotRunning) {
		t.Fatalf("double stop: expected ErrNotRunning, got %v", err)
	}
}

func TestSweepFaultContainment(t *testing.T) {
	eng, fl, ms, c := newTestEngine(t, 2)

	first := eng.CreateMission()
	second := eng.CreateMission()
	if second.RobotID == nil || *second.RobotID != "robot-002" {
		t.Fatalf("setup: second mission should land on robot-002")
	}

	// desynchronize the first pair: complete the mission behind the
	// engine's back so the sweep's mirror call fails
	if err := ms.Start(first.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	c.advance(30 * time.Second)
	eng.sweepTransitions()

	// the fault on robot-001 must not stop robot-002 from advancing
	if got := robotStatus(t, fl, "robot-002"); got != domain.RobotEnRoute {
		t.Fatalf("healthy robot blocked by faulty one, got %s", got)
	}
	if got := missionStatus(t, ms, second.ID); got != domain.MissionInProgress {
		t.Fatalf("healthy mission blocked, got %s", got)
	}
}
