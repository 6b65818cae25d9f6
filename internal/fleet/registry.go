package fleet

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleetsim/internal/domain"
	"fleetsim/internal/notify"
)

// Depot coordinates every robot starts from. Cosmetic only.
const (
	depotLat = 37.7749
	depotLng = -122.4194
)

// Registry owns the robot collection. Robots are created once by Init and
// never destroyed during the process lifetime.
type Registry struct {
	Now func() time.Time

	log *zap.Logger
	pub notify.Publisher

	mu          sync.RWMutex
	robots      map[string]*Robot
	ids         []string // insertion order == ascending ID order
	initialized bool
}

func NewRegistry(log *zap.Logger, pub notify.Publisher) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = notify.Nop{}
	}
	return &Registry{
		Now:    time.Now,
		log:    log,
		pub:    pub,
		robots: make(map[string]*Robot),
	}
}

// Init populates the fleet with count idle robots with sequential IDs.
// A second call returns ErrAlreadyInitialized.
func (g *Registry) Init(count int) error {
	if count <= 0 {
		return fmt.Errorf("fleet size must be positive, got %d", count)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initialized {
		return domain.ErrAlreadyInitialized
	}
	for i := 1; i <= count; i++ {
		id := fmt.Sprintf("robot-%03d", i)
		g.robots[id] = newRobot(id, depotLat, depotLng, g.log, g.pub, g.now)
		g.ids = append(g.ids, id)
	}
	g.initialized = true
	g.log.Info("fleet initialized", zap.Int("robots", count))
	return nil
}

func (g *Registry) now() time.Time { return g.Now() }

// AssignToAvailable binds the mission to the first available robot, lowest
// ID first. The per-robot Assign is the atomic claim, so two interleaved
// calls can never select the same robot. Returns false when the whole
// fleet is busy.
func (g *Registry) AssignToAvailable(missionID string) (domain.Robot, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range g.ids {
		r := g.robots[id]
		if r.Assign(missionID) {
			return r.Snapshot(), true
		}
	}
	return domain.Robot{}, false
}

// CancelMission cancels whatever mission the robot holds. An unknown robot
// ID is a benign failure: external callers routinely send stale IDs.
// Returns the unbound mission ID and whether a cancellation happened.
func (g *Registry) CancelMission(robotID string) (string, bool) {
	g.mu.RLock()
	r, ok := g.robots[robotID]
	g.mu.RUnlock()
	if !ok {
		g.log.Debug("cancel for unknown robot", zap.String("robot_id", robotID))
		return "", false
	}
	return r.CancelCurrentMission()
}

// Get returns a snapshot of one robot.
func (g *Registry) Get(id string) (domain.Robot, error) {
	g.mu.RLock()
	r, ok := g.robots[id]
	g.mu.RUnlock()
	if !ok {
		return domain.Robot{}, fmt.Errorf("robot %s: %w", id, domain.ErrNotFound)
	}
	return r.Snapshot(), nil
}

// Lookup hands the scheduler the live entity so it can drive the forward
// transitions. External callers should use Get.
func (g *Registry) Lookup(id string) (*Robot, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.robots[id]
	return r, ok
}

// EntitiesByStatus returns the live robots currently in status, in ID order.
// Scheduler use only.
func (g *Registry) EntitiesByStatus(status string) []*Robot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Robot
	for _, id := range g.ids {
		if r := g.robots[id]; r.Status() == status {
			out = append(out, r)
		}
	}
	return out
}

// Entities returns every live robot in ID order. Scheduler use only.
func (g *Registry) Entities() []*Robot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Robot, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, g.robots[id])
	}
	return out
}

// All returns snapshots of every robot in ID order.
func (g *Registry) All() []domain.Robot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.Robot, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, g.robots[id].Snapshot())
	}
	return out
}

// ByStatus returns snapshots of robots currently in status.
func (g *Registry) ByStatus(status string) []domain.Robot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []domain.Robot
	for _, id := range g.ids {
		if snap := g.robots[id].Snapshot(); snap.Status == status {
			out = append(out, snap)
		}
	}
	return out
}

// Available returns the idle robots.
func (g *Registry) Available() []domain.Robot {
	return g.ByStatus(domain.RobotIdle)
}

// Active returns every non-idle robot.
func (g *Registry) Active() []domain.Robot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []domain.Robot
	for _, id := range g.ids {
		if snap := g.robots[id].Snapshot(); snap.Status != domain.RobotIdle {
			out = append(out, snap)
		}
	}
	return out
}

// Stats computes the per-status count snapshot. Every status is present in
// the map, zero or not, so the counts always sum to Total.
func (g *Registry) Stats() domain.FleetStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	counts := make(map[string]int, len(domain.RobotStatuses))
	for _, s := range domain.RobotStatuses {
		counts[s] = 0
	}
	for _, r := range g.robots {
		counts[r.Status()]++
	}
	return domain.FleetStats{ByStatus: counts, Total: len(g.robots)}
}
