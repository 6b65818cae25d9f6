// Package fleet owns the robot collection: the per-robot state machine,
// the assignment policy, and the derived fleet statistics.
package fleet

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"fleetsim/internal/domain"
	"fleetsim/internal/notify"
)

// Robot is a single delivery robot. All mutation goes through its
// operations; the registry and the scheduler never touch fields directly.
type Robot struct {
	id string

	mu        sync.Mutex
	status    string
	missionID string
	battery   float64
	lat       float64
	lng       float64
	createdAt time.Time
	updatedAt time.Time

	log *zap.Logger
	pub notify.Publisher
	now func() time.Time
}

func newRobot(id string, lat, lng float64, log *zap.Logger, pub notify.Publisher, now func() time.Time) *Robot {
	ts := now()
	return &Robot{
		id:        id,
		status:    domain.RobotIdle,
		battery:   100,
		lat:       lat,
		lng:       lng,
		createdAt: ts,
		updatedAt: ts,
		log:       log.With(zap.String("robot_id", id)),
		pub:       pub,
		now:       now,
	}
}

func (r *Robot) ID() string { return r.id }

// Status returns the current lifecycle status.
func (r *Robot) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Assign binds a mission to an idle robot. It is a try-operation: a false
// return means the robot was not idle, which is an expected race under
// concurrent assignment, not a fault.
func (r *Robot) Assign(missionID string) bool {
	r.mu.Lock()
	if r.status != domain.RobotIdle {
		r.mu.Unlock()
		return false
	}
	r.status = domain.RobotAssigned
	r.missionID = missionID
	r.updatedAt = r.now()
	r.mu.Unlock()

	r.publishStatus(domain.RobotAssigned, missionID)
	return true
}

// StartMission moves ASSIGNED -> EN_ROUTE.
func (r *Robot) StartMission() error {
	return r.advance(domain.RobotAssigned, domain.RobotEnRoute)
}

// StartDelivering moves EN_ROUTE -> DELIVERING.
func (r *Robot) StartDelivering() error {
	return r.advance(domain.RobotEnRoute, domain.RobotDelivering)
}

// CompleteMission moves DELIVERING -> COMPLETED.
func (r *Robot) CompleteMission() error {
	return r.advance(domain.RobotDelivering, domain.RobotCompleted)
}

// ReturnToIdle moves COMPLETED -> IDLE and clears the mission binding.
func (r *Robot) ReturnToIdle() error {
	r.mu.Lock()
	if r.status != domain.RobotCompleted {
		err := domain.NewInvalidTransition("robot", r.id, r.status, domain.RobotIdle)
		r.mu.Unlock()
		return err
	}
	r.status = domain.RobotIdle
	r.missionID = ""
	r.updatedAt = r.now()
	r.mu.Unlock()

	r.publishStatus(domain.RobotIdle, "")
	return nil
}

// advance performs a forward transition. These paths are scheduler-internal,
// so a precondition violation is a logic fault and fails loudly.
func (r *Robot) advance(from, to string) error {
	r.mu.Lock()
	if r.status != from {
		err := domain.NewInvalidTransition("robot", r.id, r.status, to)
		r.mu.Unlock()
		return err
	}
	r.status = to
	r.updatedAt = r.now()
	missionID := r.missionID
	r.mu.Unlock()

	r.publishStatus(to, missionID)
	return nil
}

// CancelCurrentMission aborts whatever the robot is doing and returns it to
// idle. Cancelling an already-idle robot is a logged no-op, never an error,
// so cancellation can race the scheduler's forward progression safely.
// It returns the unbound mission ID and whether a cancellation happened.
func (r *Robot) CancelCurrentMission() (string, bool) {
	r.mu.Lock()
	if r.status == domain.RobotIdle {
		r.mu.Unlock()
		r.log.Debug("cancel requested but robot is idle")
		return "", false
	}
	missionID := r.missionID
	r.status = domain.RobotIdle
	r.missionID = ""
	r.updatedAt = r.now()
	r.mu.Unlock()

	r.pub.Publish(notify.Event{
		Type:      notify.TypeMissionCancelled,
		RobotID:   r.id,
		MissionID: missionID,
		TS:        r.now(),
	})
	r.publishStatus(domain.RobotIdle, "")
	return missionID, true
}

// Drift applies a cosmetic battery/position random walk. Display only; it
// never touches the lifecycle state.
func (r *Robot) Drift(dBattery, dLat, dLng float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.battery += dBattery
	if r.battery > 100 {
		r.battery = 100
	}
	if r.battery < 0 {
		r.battery = 0
	}
	r.lat += dLat
	r.lng += dLng
}

// Snapshot returns a detached copy for external consumers.
func (r *Robot) Snapshot() domain.Robot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := domain.Robot{
		ID:        r.id,
		Status:    r.status,
		Battery:   r.battery,
		Lat:       r.lat,
		Lng:       r.lng,
		CreatedAt: r.createdAt.UTC().Format(time.RFC3339),
		UpdatedAt: r.updatedAt.UTC().Format(time.RFC3339),
	}
	if r.missionID != "" {
		id := r.missionID
		snap.MissionID = &id
	}
	return snap
}

func (r *Robot) publishStatus(status, missionID string) {
	evt := notify.Event{
		Type:    notify.TypeRobotStatus,
		RobotID: r.id,
		Status:  status,
		TS:      r.now(),
	}
	if missionID != "" {
		evt.MissionID = missionID
	}
	r.pub.Publish(evt)
	r.log.Debug("robot status changed", zap.String("status", status), zap.String("mission_id", missionID))
}
