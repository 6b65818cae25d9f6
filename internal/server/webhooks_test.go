package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fleetsim/internal/config"
	"fleetsim/internal/db"
	"fleetsim/internal/events"
	"fleetsim/internal/migrate"
	"fleetsim/internal/notify"
)

func newTestJournal(t *testing.T) events.Writer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return events.Writer{DB: conn}
}

func TestWebhookDispatchDeliversNewEvents(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	// pre-existing event: must not be delivered, cursors start at the head
	if err := journal.Append(ctx, notify.Event{Type: notify.TypeSimStarted, TS: time.Now()}); err != nil {
		t.Fatalf("append: %v", err)
	}

	var mu sync.Mutex
	var batches [][]events.Record
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Events []events.Record `json:"events"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		mu.Lock()
		batches = append(batches, payload.Events)
		mu.Unlock()
	}))
	defer hook.Close()

	d := NewWebhookDispatcher(journal, []config.WebhookConfig{{URL: hook.URL}}, nil)

	// first pass initializes the cursor; nothing to deliver yet
	d.dispatchAll(ctx)
	mu.Lock()
	if len(batches) != 0 {
		mu.Unlock()
		t.Fatalf("pre-existing events must not be delivered")
	}
	mu.Unlock()

	if err := journal.Append(ctx, notify.Event{
		Type:    notify.TypeRobotStatus,
		RobotID: "robot-001",
		Status:  "assigned",
		TS:      time.Now(),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	d.dispatchAll(ctx)
	mu.Lock()
	if len(batches) != 1 || len(batches[0]) != 1 || batches[0][0].RobotID != "robot-001" {
		mu.Unlock()
		t.Fatalf("unexpected batches: %+v", batches)
	}
	mu.Unlock()

	// cursor advanced: no redelivery
	d.dispatchAll(ctx)
	mu.Lock()
	if len(batches) != 1 {
		mu.Unlock()
		t.Fatalf("event redelivered")
	}
	mu.Unlock()
}

func TestWebhookDisabledHookSkipped(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()
	if err := journal.Append(ctx, notify.Event{Type: notify.TypeSimStarted, TS: time.Now()}); err != nil {
		t.Fatalf("append: %v", err)
	}

	hit := false
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer hook.Close()

	off := false
	d := NewWebhookDispatcher(journal, []config.WebhookConfig{{URL: hook.URL, Enabled: &off}}, nil)
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)
	if hit {
		t.Fatalf("disabled hook must not be called")
	}
}
