package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitepulse/internal/config"
	"sitepulse/internal/engine"
	"sitepulse/internal/progress"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	webhookQueueSize      = 256
)

// Webhook event types.
const (
	EventRecordCreated     = "record.created"
	EventRecordDeleted     = "record.deleted"
	EventProjectUpdated    = "project.updated"
	EventDesignStepUpdated = "design_step.updated"
	EventStepCompleted     = "step.completed"
	EventStepScheduled     = "step.scheduled"
	EventStepMoved         = "step.moved"
	EventAwardRecorded     = "award.recorded"
	EventLifecycleChanged  = "lifecycle.changed"
)

// webhookEvent carries the record as derived right after the mutation.
type webhookEvent struct {
	ID          string               `json:"id"`
	Type        string               `json:"type"`
	WorkspaceID string               `json:"workspace_id"`
	Phase       string               `json:"phase"`
	EntityID    string               `json:"entity_id"`
	Subject     string               `json:"subject,omitempty"`
	TS          string               `json:"ts"`
	Record      progress.Record      `json:"record"`
	Transition  *progress.Transition `json:"transition,omitempty"`
}

type webhookTarget struct {
	config.WebhookConfig
	filter eventFilter
	client *http.Client
}

// webhookDispatcher delivers events best effort from a single goroutine that
// runs until ctx is done. Nothing is persisted; events that do not fit the
// queue, or arrive after shutdown, are dropped.
type webhookDispatcher struct {
	workspace string
	targets   []webhookTarget
	queue     chan webhookEvent
	done      chan struct{}
	logger    *log.Logger
	now       func() time.Time
}

func startWebhookDispatcher(ctx context.Context, e engine.Engine, logger *log.Logger) *webhookDispatcher {
	if e.Config == nil {
		return nil
	}
	var targets []webhookTarget
	for _, hook := range e.Config.Webhooks {
		if !hook.Active() {
			continue
		}
		timeout := defaultWebhookTimeout
		if hook.TimeoutSeconds > 0 {
			timeout = time.Duration(hook.TimeoutSeconds) * time.Second
		}
		targets = append(targets, webhookTarget{
			WebhookConfig: hook,
			filter:        newEventFilter(hook.Events),
			client:        &http.Client{Timeout: timeout},
		})
	}
	if len(targets) == 0 {
		return nil
	}
	if logger == nil {
		logger = log.Default()
	}
	now := e.Now
	if now == nil {
		now = time.Now
	}
	d := &webhookDispatcher{
		workspace: e.Config.Workspace.ID,
		targets:   targets,
		queue:     make(chan webhookEvent, webhookQueueSize),
		done:      make(chan struct{}),
		logger:    logger,
		now:       now,
	}
	go d.run(ctx)
	return d
}

func (d *webhookDispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.logger.Printf("webhook: shutting down, dropping %d queued events", n)
			}
			return
		case evt := <-d.queue:
			d.deliver(ctx, evt)
		}
	}
}

func (d *webhookDispatcher) deliver(ctx context.Context, evt webhookEvent) {
	for _, t := range d.targets {
		if !t.filter.match(evt.Type) {
			continue
		}
		if err := t.post(ctx, evt); err != nil {
			d.logger.Printf("webhook: deliver %s to %s failed: %v", evt.Type, t.URL, err)
		}
	}
}

// notify is safe on a nil dispatcher.
func (d *webhookDispatcher) notify(ctx context.Context, typ, phase, id string, rec progress.Record, tr *progress.Transition) {
	if d == nil {
		return
	}
	select {
	case <-d.done:
		return
	default:
	}
	evt := webhookEvent{
		ID:          uuid.NewString(),
		Type:        typ,
		WorkspaceID: d.workspace,
		Phase:       phase,
		EntityID:    id,
		TS:          d.now().UTC().Format(time.RFC3339),
		Record:      rec,
		Transition:  tr,
	}
	if p, ok := principalFromContext(ctx); ok {
		evt.Subject = p.Subject
	}
	select {
	case d.queue <- evt:
	default:
		d.logger.Printf("webhook: queue full, dropping %s for %s %s", typ, phase, id)
	}
}

func (t webhookTarget) post(ctx context.Context, evt webhookEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SitePulse-Event", evt.Type)
	req.Header.Set("X-SitePulse-Delivery", evt.ID)
	req.Header.Set("X-SitePulse-Workspace", evt.WorkspaceID)
	if strings.TrimSpace(t.Secret) != "" {
		req.Header.Set("X-SitePulse-Secret", t.Secret)
	}
	res, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
