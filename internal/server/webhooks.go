package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleetsim/internal/config"
	"fleetsim/internal/events"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// WebhookDispatcher polls the event journal and POSTs new batches to each
// configured hook. Cursors start at the journal head, so a hook only sees
// events produced after the dispatcher came up.
type WebhookDispatcher struct {
	journal events.Writer
	hooks   []config.WebhookConfig
	client  *http.Client
	log     *zap.Logger

	mu      sync.Mutex
	cursors map[int]int64
}

func NewWebhookDispatcher(journal events.Writer, hooks []config.WebhookConfig, log *zap.Logger) *WebhookDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookDispatcher{
		journal: journal,
		hooks:   hooks,
		client:  &http.Client{Timeout: defaultWebhookTimeout},
		log:     log,
		cursors: make(map[int]int64),
	}
}

// Run polls until ctx is cancelled. Returns immediately when no hooks are
// configured.
func (d *WebhookDispatcher) Run(ctx context.Context) {
	if len(d.hooks) == 0 {
		return
	}
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *WebhookDispatcher) dispatchAll(ctx context.Context) {
	for i, hook := range d.hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchHook(ctx, i, hook)
	}
}

func (d *WebhookDispatcher) dispatchHook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor, err := d.cursorFor(ctx, idx)
	if err != nil {
		d.log.Error("webhook cursor init failed", zap.String("url", hook.URL), zap.Error(err))
		return
	}
	records, err := d.journal.After(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		d.log.Error("webhook fetch failed", zap.String("url", hook.URL), zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}
	if err := d.deliver(ctx, hook.URL, records); err != nil {
		d.log.Warn("webhook delivery failed", zap.String("url", hook.URL), zap.Error(err))
		return
	}
	d.mu.Lock()
	d.cursors[idx] = records[len(records)-1].ID
	d.mu.Unlock()
}

func (d *WebhookDispatcher) cursorFor(ctx context.Context, idx int) (int64, error) {
	d.mu.Lock()
	cursor, ok := d.cursors[idx]
	d.mu.Unlock()
	if ok {
		return cursor, nil
	}
	last, err := d.journal.LastID(ctx)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	d.cursors[idx] = last
	d.mu.Unlock()
	return last, nil
}

func (d *WebhookDispatcher) deliver(ctx context.Context, url string, records []events.Record) error {
	payload := map[string]any{"events": records}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
