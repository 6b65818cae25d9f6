package domain

// Robot lifecycle statuses.
const (
	RobotIdle       = "idle"
	RobotAssigned   = "assigned"
	RobotEnRoute    = "en_route"
	RobotDelivering = "delivering"
	RobotCompleted  = "completed"
)

// RobotStatuses lists every robot status in lifecycle order.
var RobotStatuses = []string{RobotIdle, RobotAssigned, RobotEnRoute, RobotDelivering, RobotCompleted}

// Mission lifecycle statuses. MissionFailed is reserved; no transition
// currently produces it.
const (
	MissionPending    = "pending"
	MissionAssigned   = "assigned"
	MissionInProgress = "in_progress"
	MissionCompleted  = "completed"
	MissionCancelled  = "cancelled"
	MissionFailed     = "failed"
)

// MissionTerminal reports whether a mission status is terminal.
func MissionTerminal(status string) bool {
	return status == MissionCompleted || status == MissionCancelled || status == MissionFailed
}

type Robot struct {
	ID        string  `json:"id"`
	Status    string  `json:"status" enum:"idle,assigned,en_route,delivering,completed"`
	MissionID *string `json:"mission_id,omitempty"`
	Battery   float64 `json:"battery"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

type Mission struct {
	ID          string  `json:"id"`
	Status      string  `json:"status" enum:"pending,assigned,in_progress,completed,cancelled,failed"`
	EstimatedMs int64   `json:"estimated_duration_ms"`
	RobotID     *string `json:"robot_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	AssignedAt  *string `json:"assigned_at,omitempty" format:"date-time"`
	StartedAt   *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	CancelledAt *string `json:"cancelled_at,omitempty" format:"date-time"`
}

// FleetStats is a derived per-status count snapshot. Counts sum to Total.
type FleetStats struct {
	ByStatus map[string]int `json:"by_status"`
	Total    int            `json:"total"`
}

type Dashboard struct {
	Robots         []Robot    `json:"robots"`
	Stats          FleetStats `json:"stats"`
	ActiveMissions []Mission  `json:"active_missions"`
	Timestamp      string     `json:"timestamp" format:"date-time"`
}
