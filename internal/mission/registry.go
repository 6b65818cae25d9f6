package mission

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetsim/internal/domain"
	"fleetsim/internal/notify"
)

// EstimateRange bounds the display-only estimated mission duration.
type EstimateRange struct {
	Min time.Duration
	Max time.Duration
}

// Registry owns the mission collection: creation, transitions, cleanup,
// and snapshot queries.
type Registry struct {
	Now func() time.Time

	log      *zap.Logger
	pub      notify.Publisher
	estimate EstimateRange

	mu       sync.Mutex
	missions map[string]*mission
	rng      *rand.Rand
}

func NewRegistry(log *zap.Logger, pub notify.Publisher, estimate EstimateRange) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = notify.Nop{}
	}
	if estimate.Max < estimate.Min {
		estimate.Max = estimate.Min
	}
	return &Registry{
		Now:      time.Now,
		log:      log,
		pub:      pub,
		estimate: estimate,
		missions: make(map[string]*mission),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Create adds a fresh PENDING mission with a random estimated duration
// drawn from the configured range (inclusive bounds).
func (g *Registry) Create() domain.Mission {
	g.mu.Lock()
	m := &mission{
		id:        uuid.NewString(),
		status:    domain.MissionPending,
		estimated: g.sampleEstimate(),
		createdAt: g.Now(),
	}
	g.missions[m.id] = m
	snap := m.snapshot()
	g.mu.Unlock()

	g.publish(snap.ID, snap.Status, "")
	g.log.Debug("mission created", zap.String("mission_id", snap.ID))
	return snap
}

func (g *Registry) sampleEstimate() time.Duration {
	span := g.estimate.Max - g.estimate.Min
	if span <= 0 {
		return g.estimate.Min
	}
	return g.estimate.Min + time.Duration(g.rng.Int63n(int64(span)+1))
}

// Assign records the robot binding. Requires PENDING.
func (g *Registry) Assign(missionID, robotID string) error {
	return g.transition(missionID, domain.MissionPending, domain.MissionAssigned, func(m *mission) {
		m.robotID = robotID
		m.assignedAt = g.Now()
	})
}

// Start moves ASSIGNED -> IN_PROGRESS.
func (g *Registry) Start(missionID string) error {
	return g.transition(missionID, domain.MissionAssigned, domain.MissionInProgress, func(m *mission) {
		m.startedAt = g.Now()
	})
}

// Complete moves IN_PROGRESS -> COMPLETED.
func (g *Registry) Complete(missionID string) error {
	return g.transition(missionID, domain.MissionInProgress, domain.MissionCompleted, func(m *mission) {
		m.completedAt = g.Now()
	})
}

// transition performs a registry-mediated state change. These calls follow
// a successful robot-side operation, so a mismatch means the two registries
// desynchronized and must fail loudly.
func (g *Registry) transition(missionID, from, to string, apply func(*mission)) error {
	g.mu.Lock()
	m, ok := g.missions[missionID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("mission %s: %w", missionID, domain.ErrNotFound)
	}
	if m.status != from {
		err := domain.NewInvalidTransition("mission", missionID, m.status, to)
		g.mu.Unlock()
		return err
	}
	m.status = to
	apply(m)
	robotID := m.robotID
	g.mu.Unlock()

	g.publish(missionID, to, robotID)
	return nil
}

// Cancel marks the mission CANCELLED. Cancelling a terminal mission is a
// logged no-op so cancellation can race completion safely.
func (g *Registry) Cancel(missionID string) error {
	g.mu.Lock()
	m, ok := g.missions[missionID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("mission %s: %w", missionID, domain.ErrNotFound)
	}
	if domain.MissionTerminal(m.status) {
		status := m.status
		g.mu.Unlock()
		g.log.Warn("cancel on terminal mission ignored",
			zap.String("mission_id", missionID),
			zap.String("status", status))
		return nil
	}
	m.status = domain.MissionCancelled
	m.cancelledAt = g.Now()
	robotID := m.robotID
	g.mu.Unlock()

	g.publish(missionID, domain.MissionCancelled, robotID)
	return nil
}

// Cleanup removes terminal missions created more than maxAge ago and
// returns the removed count. maxAge 0 removes every terminal mission.
func (g *Registry) Cleanup(maxAge time.Duration) int {
	cutoff := g.Now().Add(-maxAge)
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for id, m := range g.missions {
		if domain.MissionTerminal(m.status) && !m.createdAt.After(cutoff) {
			delete(g.missions, id)
			removed++
		}
	}
	if removed > 0 {
		g.log.Debug("mission cleanup", zap.Int("removed", removed))
	}
	return removed
}

// Get returns a snapshot of one mission.
func (g *Registry) Get(id string) (domain.Mission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.missions[id]
	if !ok {
		return domain.Mission{}, fmt.Errorf("mission %s: %w", id, domain.ErrNotFound)
	}
	return m.snapshot(), nil
}

// All returns snapshots of every mission, oldest first.
func (g *Registry) All() []domain.Mission {
	return g.filtered(func(*mission) bool { return true })
}

// ByStatus returns snapshots of missions in status, oldest first.
func (g *Registry) ByStatus(status string) []domain.Mission {
	return g.filtered(func(m *mission) bool { return m.status == status })
}

// Active returns ASSIGNED and IN_PROGRESS missions, oldest first.
func (g *Registry) Active() []domain.Mission {
	return g.filtered(func(m *mission) bool {
		return m.status == domain.MissionAssigned || m.status == domain.MissionInProgress
	})
}

// Pending returns unassigned missions, oldest first. The scheduler retries
// assignment for these on every transition sweep.
func (g *Registry) Pending() []domain.Mission {
	return g.filtered(func(m *mission) bool { return m.status == domain.MissionPending })
}

func (g *Registry) filtered(keep func(*mission) bool) []domain.Mission {
	g.mu.Lock()
	var out []domain.Mission
	for _, m := range g.missions {
		if keep(m) {
			out = append(out, m.snapshot())
		}
	}
	g.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (g *Registry) publish(missionID, status, robotID string) {
	g.pub.Publish(notify.Event{
		Type:      notify.TypeMissionStatus,
		MissionID: missionID,
		RobotID:   robotID,
		Status:    status,
		TS:        g.Now(),
	})
}
