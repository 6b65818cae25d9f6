// Package notify fans state-change notifications out to subscribers over
// bounded channels. Publishing never blocks a state transition: when a
// subscriber's buffer is full the event is dropped for that subscriber.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types emitted by the core.
const (
	TypeRobotStatus      = "robot.status_changed"
	TypeMissionStatus    = "mission.status_changed"
	TypeMissionCancelled = "mission.cancelled"
	TypeSimStarted       = "simulation.started"
	TypeSimStopped       = "simulation.stopped"
)

type Event struct {
	Type      string         `json:"type"`
	RobotID   string         `json:"robot_id,omitempty"`
	MissionID string         `json:"mission_id,omitempty"`
	Status    string         `json:"status,omitempty"`
	TS        time.Time      `json:"ts"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Publisher is the capability handed to the registries and the scheduler.
type Publisher interface {
	Publish(Event)
}

// Nop discards every event. Useful in tests.
type Nop struct{}

func (Nop) Publish(Event) {}

const defaultBuffer = 64

// Broker is a Publisher that fans events out to subscribed channels.
type Broker struct {
	log    *zap.Logger
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func NewBroker(log *zap.Logger) *Broker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broker{log: log, subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function. The channel is closed on cancel.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	return b.SubscribeBuffered(defaultBuffer)
}

func (b *Broker) SubscribeBuffered(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber with buffer room.
func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.log.Warn("notification dropped: subscriber buffer full",
				zap.Int("subscriber", id),
				zap.String("type", evt.Type))
		}
	}
}
