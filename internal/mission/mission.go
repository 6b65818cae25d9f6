// Package mission owns the mission collection and its lifecycle. All
// transitions are mediated by the Registry and keyed by mission ID.
package mission

import (
	"time"

	"fleetsim/internal/domain"
)

// mission is the registry-internal record. Guarded by the registry lock;
// nothing outside the package holds a reference.
type mission struct {
	id          string
	status      string
	estimated   time.Duration
	robotID     string
	createdAt   time.Time
	assignedAt  time.Time
	startedAt   time.Time
	completedAt time.Time
	cancelledAt time.Time
}

func (m *mission) snapshot() domain.Mission {
	snap := domain.Mission{
		ID:          m.id,
		Status:      m.status,
		EstimatedMs: m.estimated.Milliseconds(),
		CreatedAt:   m.createdAt.UTC().Format(time.RFC3339),
	}
	if m.robotID != "" {
		id := m.robotID
		snap.RobotID = &id
	}
	snap.AssignedAt = stamp(m.assignedAt)
	snap.StartedAt = stamp(m.startedAt)
	snap.CompletedAt = stamp(m.completedAt)
	snap.CancelledAt = stamp(m.cancelledAt)
	return snap
}

func stamp(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
