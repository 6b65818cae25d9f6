package events

import (
	"context"
	"testing"
	"time"

	"fleetsim/internal/db"
	"fleetsim/internal/migrate"
	"fleetsim/internal/notify"
)

func newTestWriter(t *testing.T) Writer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Writer{DB: conn}
}

func seed(t *testing.T, w Writer, evts ...notify.Event) {
	t.Helper()
	ctx := context.Background()
	for _, evt := range evts {
		if err := w.Append(ctx, evt); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestAppendAndLatest(t *testing.T) {
	w := newTestWriter(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, w,
		notify.Event{Type: notify.TypeRobotStatus, RobotID: "robot-001", Status: "assigned", MissionID: "m-1", TS: ts},
		notify.Event{Type: notify.TypeMissionStatus, MissionID: "m-1", Status: "assigned", TS: ts.Add(time.Second)},
		notify.Event{Type: notify.TypeRobotStatus, RobotID: "robot-002", Status: "assigned", MissionID: "m-2", TS: ts.Add(2 * time.Second)},
	)

	ctx := context.Background()
	records, err := w.Latest(ctx, 10, Filters{})
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	// newest first
	if records[0].RobotID != "robot-002" {
		t.Fatalf("expected newest first, got %+v", records[0])
	}

	byType, err := w.Latest(ctx, 10, Filters{Type: notify.TypeMissionStatus})
	if err != nil {
		t.Fatalf("latest by type: %v", err)
	}
	if len(byType) != 1 || byType[0].Type != notify.TypeMissionStatus {
		t.Fatalf("type filter failed: %+v", byType)
	}

	byRobot, err := w.Latest(ctx, 10, Filters{RobotID: "robot-001"})
	if err != nil {
		t.Fatalf("latest by robot: %v", err)
	}
	if len(byRobot) != 1 || byRobot[0].RobotID != "robot-001" {
		t.Fatalf("robot filter failed: %+v", byRobot)
	}
}

func TestAfterCursor(t *testing.T) {
	w := newTestWriter(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, w,
		notify.Event{Type: notify.TypeSimStarted, TS: ts},
		notify.Event{Type: notify.TypeRobotStatus, RobotID: "robot-001", Status: "assigned", TS: ts},
		notify.Event{Type: notify.TypeRobotStatus, RobotID: "robot-001", Status: "en_route", TS: ts},
	)

	ctx := context.Background()
	last, err := w.LastID(ctx)
	if err != nil {
		t.Fatalf("last id: %v", err)
	}
	if last == 0 {
		t.Fatalf("expected non-zero last id")
	}

	all, err := w.After(ctx, 10, 0)
	if err != nil {
		t.Fatalf("after: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	// oldest first
	if all[0].Type != notify.TypeSimStarted {
		t.Fatalf("expected oldest first, got %+v", all[0])
	}

	rest, err := w.After(ctx, 10, all[0].ID)
	if err != nil {
		t.Fatalf("after cursor: %v", err)
	}
	if len(rest) != 2 || rest[0].ID <= all[0].ID {
		t.Fatalf("cursor not respected: %+v", rest)
	}

	none, err := w.After(ctx, 10, last)
	if err != nil {
		t.Fatalf("after last: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no records past the head, got %d", len(none))
	}
}

func TestEmptyJournal(t *testing.T) {
	w := newTestWriter(t)
	ctx := context.Background()
	last, err := w.LastID(ctx)
	if err != nil {
		t.Fatalf("last id on empty journal: %v", err)
	}
	if last != 0 {
		t.Fatalf("expected 0, got %d", last)
	}
	records, err := w.Latest(ctx, 10, Filters{})
	if err != nil {
		t.Fatalf("latest on empty journal: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	w := newTestWriter(t)
	seed(t, w, notify.Event{
		Type:    notify.TypeSimStarted,
		TS:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Payload: map[string]any{"fleet_size": float64(8)},
	})
	records, err := w.Latest(context.Background(), 1, Filters{})
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(records) != 1 || records[0].Payload["fleet_size"] != float64(8) {
		t.Fatalf("payload lost: %+v", records)
	}
}
