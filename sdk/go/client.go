// Package fleetsimsdk is a minimal HTTP client for the fleetsim API.
package fleetsimsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a fleetsim API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Robot mirrors the API robot snapshot.
type Robot struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	MissionID *string `json:"mission_id,omitempty"`
	Battery   float64 `json:"battery"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// Mission mirrors the API mission snapshot.
type Mission struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	EstimatedMs int64   `json:"estimated_duration_ms"`
	RobotID     *string `json:"robot_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
	AssignedAt  *string `json:"assigned_at,omitempty"`
	StartedAt   *string `json:"started_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	CancelledAt *string `json:"cancelled_at,omitempty"`
}

// FleetStats mirrors the API per-status counts.
type FleetStats struct {
	ByStatus map[string]int `json:"by_status"`
	Total    int            `json:"total"`
}

// Dashboard mirrors the API dashboard snapshot.
type Dashboard struct {
	Robots         []Robot    `json:"robots"`
	Stats          FleetStats `json:"stats"`
	ActiveMissions []Mission  `json:"active_missions"`
	Timestamp      string     `json:"timestamp"`
}

// Event mirrors one journal record.
type Event struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	RobotID   string         `json:"robot_id,omitempty"`
	MissionID string         `json:"mission_id,omitempty"`
	Status    string         `json:"status,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Robots lists every robot, optionally filtered by status.
func (c *Client) Robots(ctx context.Context, status string) ([]Robot, error) {
	endpoint := "v1/robots"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Robots []Robot `json:"robots"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Robots, err
}

// Robot fetches one robot by ID.
func (c *Client) Robot(ctx context.Context, id string) (Robot, error) {
	var resp Robot
	err := c.do(ctx, http.MethodGet, "v1/robots/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CancelRobotMission cancels whatever mission the robot holds.
func (c *Client) CancelRobotMission(ctx context.Context, id string) (bool, error) {
	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	err := c.do(ctx, http.MethodPost, "v1/robots/"+url.PathEscape(id)+"/cancel", nil, &resp)
	return resp.Cancelled, err
}

// Missions lists missions with optional status filter and limit.
func (c *Client) Missions(ctx context.Context, status string, limit int) ([]Mission, error) {
	endpoint := "v1/missions"
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp struct {
		Missions []Mission `json:"missions"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Missions, err
}

// ActiveMissions lists assigned and in-progress missions.
func (c *Client) ActiveMissions(ctx context.Context) ([]Mission, error) {
	var resp struct {
		Missions []Mission `json:"missions"`
	}
	err := c.do(ctx, http.MethodGet, "v1/missions/active", nil, &resp)
	return resp.Missions, err
}

// Mission fetches one mission by ID.
func (c *Client) Mission(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, "v1/missions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateMission creates a mission and attempts immediate assignment.
func (c *Client) CreateMission(ctx context.Context) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, "v1/missions", nil, &resp)
	return resp, err
}

// Dashboard fetches the composed snapshot.
func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "v1/dashboard", nil, &resp)
	return resp, err
}

// Stats fetches the fleet statistics.
func (c *Client) Stats(ctx context.Context) (FleetStats, error) {
	var resp FleetStats
	err := c.do(ctx, http.MethodGet, "v1/fleet/stats", nil, &resp)
	return resp, err
}

// Events tails the journal, newest first.
func (c *Client) Events(ctx context.Context, n int) ([]Event, error) {
	endpoint := "v1/events"
	if n > 0 {
		endpoint = fmt.Sprintf("%s?n=%d", endpoint, n)
	}
	var resp struct {
		Events []Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Events, err
}

// StartSimulation arms the scheduler timers.
func (c *Client) StartSimulation(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "v1/simulation/start", nil, nil)
}

// StopSimulation disarms the scheduler timers.
func (c *Client) StopSimulation(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "v1/simulation/stop", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
