// Package server exposes the simulation core over HTTP. It is a thin
// collaborator: every operation delegates to the registries, the engine,
// or the aggregator and translates errors into the API envelope.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fleetsim/internal/dashboard"
	"fleetsim/internal/domain"
	"fleetsim/internal/engine"
	"fleetsim/internal/events"
	"fleetsim/internal/fleet"
	"fleetsim/internal/mission"
	"fleetsim/internal/notify"
)

// Config for the HTTP API handler.
type Config struct {
	Fleet     *fleet.Registry
	Missions  *mission.Registry
	Engine    *engine.Engine
	Dashboard *dashboard.Aggregator
	Broker    *notify.Broker
	Journal   *events.Writer
	BasePath  string
	Logger    *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"robot robot-099: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the fleetsim API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Fleetsim API", "0.1.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerRobots(group, cfg)
	registerMissions(group, cfg)
	registerDashboard(group, cfg)
	registerSimulation(group, cfg)
	registerEvents(group, cfg)
	registerStream(group, cfg)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps core errors onto the envelope. Nothing the core raises
// should ever surface as an unhandled crash.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case domain.IsInvalidTransition(err):
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, domain.ErrAlreadyRunning):
		return newAPIError(http.StatusConflict, "already_running", err.Error(), nil)
	case errors.Is(err, domain.ErrNotRunning):
		return newAPIError(http.StatusConflict, "not_running", err.Error(), nil)
	case errors.Is(err, domain.ErrAlreadyInitialized):
		return newAPIError(http.StatusConflict, "already_initialized", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

func registerRobots(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-robots",
		Method:      http.MethodGet,
		Path:        "/robots",
		Summary:     "List robots",
	}, func(ctx context.Context, input *listRobotsInput) (*robotListOutput, error) {
		out := &robotListOutput{}
		if input.Status != "" {
			if !validRobotStatus(input.Status) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown robot status "+input.Status, nil)
			}
			out.Body.Robots = cfg.Fleet.ByStatus(input.Status)
		} else {
			out.Body.Robots = cfg.Fleet.All()
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-robot",
		Method:      http.MethodGet,
		Path:        "/robots/{robot_id}",
		Summary:     "Get one robot",
	}, func(ctx context.Context, input *robotPathInput) (*robotOutput, error) {
		snap, err := cfg.Fleet.Get(input.RobotID)
		if err != nil {
			return nil, handleError(err)
		}
		return &robotOutput{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-robot-mission",
		Method:      http.MethodPost,
		Path:        "/robots/{robot_id}/cancel",
		Summary:     "Cancel the robot's current mission",
	}, func(ctx context.Context, input *robotPathInput) (*cancelOutput, error) {
		out := &cancelOutput{}
		out.Body.RobotID = input.RobotID
		out.Body.Cancelled = cfg.Engine.CancelRobotMission(input.RobotID)
		return out, nil
	})
}

func registerMissions(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions",
	}, func(ctx context.Context, input *listMissionsInput) (*missionListOutput, error) {
		var items []domain.Mission
		if input.Status != "" {
			if !validMissionStatus(input.Status) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown mission status "+input.Status, nil)
			}
			items = cfg.Missions.ByStatus(input.Status)
		} else {
			items = cfg.Missions.All()
		}
		if input.Limit > 0 && len(items) > input.Limit {
			items = items[:input.Limit]
		}
		out := &missionListOutput{}
		out.Body.Missions = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-active-missions",
		Method:      http.MethodGet,
		Path:        "/missions/active",
		Summary:     "List assigned and in-progress missions",
	}, func(ctx context.Context, _ *struct{}) (*missionListOutput, error) {
		out := &missionListOutput{}
		out.Body.Missions = cfg.Missions.Active()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}",
		Summary:     "Get one mission",
	}, func(ctx context.Context, input *missionPathInput) (*missionOutput, error) {
		snap, err := cfg.Missions.Get(input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionOutput{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-mission",
		Method:      http.MethodPost,
		Path:        "/missions",
		Summary:     "Create a mission and attempt assignment",
	}, func(ctx context.Context, _ *struct{}) (*missionOutput, error) {
		return &missionOutput{Body: cfg.Engine.CreateMission()}, nil
	})
}

func registerDashboard(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Dashboard snapshot",
	}, func(ctx context.Context, _ *struct{}) (*dashboardOutput, error) {
		return &dashboardOutput{Body: cfg.Dashboard.Snapshot()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fleet-stats",
		Method:      http.MethodGet,
		Path:        "/fleet/stats",
		Summary:     "Fleet statistics",
	}, func(ctx context.Context, _ *struct{}) (*statsOutput, error) {
		return &statsOutput{Body: cfg.Fleet.Stats()}, nil
	})
}

func registerSimulation(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "start-simulation",
		Method:      http.MethodPost,
		Path:        "/simulation/start",
		Summary:     "Arm the simulation timers",
	}, func(ctx context.Context, _ *struct{}) (*simulationOutput, error) {
		if err := cfg.Engine.Start(); err != nil {
			return nil, handleError(err)
		}
		out := &simulationOutput{}
		out.Body.Running = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-simulation",
		Method:      http.MethodPost,
		Path:        "/simulation/stop",
		Summary:     "Disarm the simulation timers",
	}, func(ctx context.Context, _ *struct{}) (*simulationOutput, error) {
		if err := cfg.Engine.Stop(); err != nil {
			return nil, handleError(err)
		}
		out := &simulationOutput{}
		out.Body.Running = false
		return out, nil
	})
}

func registerEvents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the event journal",
	}, func(ctx context.Context, input *listEventsInput) (*eventListOutput, error) {
		out := &eventListOutput{}
		if cfg.Journal == nil {
			out.Body.Events = []events.Record{}
			return out, nil
		}
		records, err := cfg.Journal.Latest(ctx, input.N, events.Filters{
			Type:      input.Type,
			RobotID:   input.RobotID,
			MissionID: input.MissionID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if records == nil {
			records = []events.Record{}
		}
		out.Body.Events = records
		return out, nil
	})
}

func validRobotStatus(status string) bool {
	for _, s := range domain.RobotStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func validMissionStatus(status string) bool {
	switch status {
	case domain.MissionPending, domain.MissionAssigned, domain.MissionInProgress,
		domain.MissionCompleted, domain.MissionCancelled, domain.MissionFailed:
		return true
	}
	return false
}
