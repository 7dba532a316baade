package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"crisisline/internal/config"
	"crisisline/internal/domain"
	"crisisline/internal/engine"
)

const webhookPollInterval = 2 * time.Second

// webhookDispatcher forwards engine events to configured webhook URLs.
// Each webhook keeps its own cursor into the event log so a slow or
// failing endpoint never blocks the others.
type webhookDispatcher struct {
	engine   engine.Engine
	webhooks []config.WebhookConfig
	client   *http.Client

	mu      sync.Mutex
	cursors map[int]int64
}

func startWebhookDispatcher(e engine.Engine) {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return
	}
	var enabled []config.WebhookConfig
	for _, wh := range e.Config.Webhooks {
		if wh.Enabled != nil && !*wh.Enabled {
			continue
		}
		enabled = append(enabled, wh)
	}
	if len(enabled) == 0 {
		return
	}
	d := &webhookDispatcher{
		engine:   e,
		webhooks: enabled,
		client:   &http.Client{Timeout: 10 * time.Second},
		cursors:  make(map[int]int64),
	}
	go d.run()
}

func (d *webhookDispatcher) run() {
	ticker := time.NewTicker(webhookPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		for i, wh := range d.webhooks {
			if err := d.dispatch(i, wh); err != nil {
				log.Printf("webhook %s: %v", wh.URL, err)
			}
		}
	}
}

func (d *webhookDispatcher) dispatch(idx int, wh config.WebhookConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d.mu.Lock()
	cursor, seen := d.cursors[idx]
	d.mu.Unlock()
	if !seen {
		// Start at the tail so a freshly configured webhook does not
		// replay the full history.
		latest, err := d.engine.Repo.LatestEventID(ctx, "")
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.cursors[idx] = latest
		d.mu.Unlock()
		return nil
	}

	events, err := d.engine.Repo.EventsAfter(ctx, 100, cursor, "")
	if err != nil {
		return err
	}
	for _, evt := range events {
		if eventFilter(wh.Events, evt.Type) {
			if err := d.postEvent(ctx, wh, evt); err != nil {
				return err
			}
		}
		d.mu.Lock()
		d.cursors[idx] = evt.ID
		d.mu.Unlock()
	}
	return nil
}

// eventFilter reports whether an event type matches a webhook's
// subscription list. An empty list matches everything.
func eventFilter(patterns []string, eventType string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if p == eventType || p == "*" {
			return true
		}
	}
	return false
}

func (d *webhookDispatcher) postEvent(ctx context.Context, wh config.WebhookConfig, evt domain.Event) error {
	raw := evt.Payload
	if raw == "" {
		raw = "null"
	}
	payload, err := json.Marshal(map[string]any{
		"id":          evt.ID,
		"ts":          evt.TS,
		"type":        evt.Type,
		"owner_id":    evt.OwnerID,
		"entity_kind": evt.EntityKind,
		"entity_id":   evt.EntityID,
		"actor_id":    evt.ActorID,
		"payload":     json.RawMessage(raw),
	})
	if err != nil {
		return err
	}
	timeout := 10 * time.Second
	if wh.TimeoutSeconds > 0 {
		timeout = time.Duration(wh.TimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, wh.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Crisisline-Event", evt.Type)
	req.Header.Set("X-Crisisline-Delivery", fmt.Sprintf("%d", evt.ID))
	if wh.Secret != "" {
		req.Header.Set("X-Crisisline-Secret", wh.Secret)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
