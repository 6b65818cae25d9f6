package server

import (
	"fleetsim/internal/domain"
	"fleetsim/internal/events"
)

// Inputs

type listRobotsInput struct {
	Status string `query:"status" required:"false" doc:"Filter by robot status"`
}

type robotPathInput struct {
	RobotID string `path:"robot_id"`
}

type listMissionsInput struct {
	Status string `query:"status" required:"false" doc:"Filter by mission status"`
	Limit  int    `query:"limit" required:"false" minimum:"0" doc:"Cap the result count"`
}

type missionPathInput struct {
	MissionID string `path:"mission_id"`
}

type listEventsInput struct {
	N         int    `query:"n" required:"false" minimum:"0" doc:"Number of events, newest first"`
	Type      string `query:"type" required:"false"`
	RobotID   string `query:"robot_id" required:"false"`
	MissionID string `query:"mission_id" required:"false"`
}

// Outputs

type healthOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type robotListOutput struct {
	Body struct {
		Robots []domain.Robot `json:"robots"`
	}
}

type robotOutput struct {
	Body domain.Robot
}

type cancelOutput struct {
	Body struct {
		RobotID   string `json:"robot_id"`
		Cancelled bool   `json:"cancelled"`
	}
}

type missionListOutput struct {
	Body struct {
		Missions []domain.Mission `json:"missions"`
	}
}

type missionOutput struct {
	Body domain.Mission
}

type dashboardOutput struct {
	Body domain.Dashboard
}

type statsOutput struct {
	Body domain.FleetStats
}

type simulationOutput struct {
	Body struct {
		Running bool `json:"running"`
	}
}

type eventListOutput struct {
	Body struct {
		Events []events.Record `json:"events"`
	}
}
