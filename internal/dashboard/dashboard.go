// Package dashboard composes the fleet and mission registries into a
// single read-only snapshot for external consumers.
package dashboard

import (
	"time"

	"fleetsim/internal/domain"
	"fleetsim/internal/fleet"
	"fleetsim/internal/mission"
)

type Aggregator struct {
	Now func() time.Time

	fleet    *fleet.Registry
	missions *mission.Registry
}

func New(fl *fleet.Registry, ms *mission.Registry) *Aggregator {
	return &Aggregator{Now: time.Now, fleet: fl, missions: ms}
}

// Snapshot returns a fully-detached view of the whole simulation.
func (a *Aggregator) Snapshot() domain.Dashboard {
	return domain.Dashboard{
		Robots:         a.fleet.All(),
		Stats:          a.fleet.Stats(),
		ActiveMissions: a.missions.Active(),
		Timestamp:      a.Now().UTC().Format(time.RFC3339),
	}
}
