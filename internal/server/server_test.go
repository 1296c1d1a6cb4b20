package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/config"
	"sitepulse/internal/db"
	"sitepulse/internal/engine"
	"sitepulse/internal/migrate"
	"sitepulse/internal/progress"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, authCfg AuthConfig, configure ...func(*config.Config)) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err, "open db")
	require.NoError(t, migrate.Migrate(context.Background(), conn), "migrate")
	cfg := config.Default("sitepulse")
	for _, fn := range configure {
		fn(cfg)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	ctx, cancel := context.WithCancel(context.Background())
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: authCfg, Context: ctx})
	require.NoError(t, err, "build handler")
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err, "listen")
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			cancel()
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err, "marshal body")
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err, "new request")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err, "do request")
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err, "read body")
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

func TestHealthAndOpenAPI(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/v0/packages/{package_id}/steps/{step}/complete")
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"id":                "p1",
		"name":              "Feed mill",
		"business_unit":     "FE",
		"budget":            1000,
		"design_plan_start": "2024-01-01",
		"design_plan_end":   "2024-05-01",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created engine.ProjectView
	require.NoError(t, json.Unmarshal(data, &created))
	assert.Len(t, created.Steps, 7)

	for _, pos := range []string{"2", "3", "4"} {
		res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/p1/design-steps/"+pos, map[string]any{"status": "completed"}, nil)
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/p1/progress", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var prog ProjectProgressResponse
	require.NoError(t, json.Unmarshal(data, &prog))
	assert.Equal(t, 60, prog.Design.ActualPercent)
	assert.Equal(t, progress.StatusOnPlan, prog.Design.Status)
	assert.InDelta(t, 6.6, prog.Design.EarnedRevenue, 1e-9)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/p1/construction", map[string]any{"percent": 150}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects?business_unit=FE", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var list []engine.ProjectView
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Len(t, list, 1)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/rollups", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var ro progress.Rollups
	require.NoError(t, json.Unmarshal(data, &ro))
	assert.InDelta(t, 6.6, ro.TotalEarned, 1e-9)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/kanban", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var lanes []progress.KanbanLane
	require.NoError(t, json.Unmarshal(data, &lanes))
	require.Len(t, lanes, 7)
	assert.Len(t, lanes[4].Cards, 1)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/timeline?phase=design", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var tl progress.Timeline
	require.NoError(t, json.Unmarshal(data, &tl))
	assert.Len(t, tl.Bars, 1)
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, data).Error.Code)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{"name": "x", "design_plan_start": "someday"}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	env := decodeError(t, data)
	assert.Equal(t, "bad_request", env.Error.Code)
	assert.Contains(t, env.Error.Message, "design_plan_start")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/packages", map[string]any{"id": "b1", "name": "Civil", "budget": 1000}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/packages/b1/steps/6/complete", map[string]any{"date": "2024-02-01"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var pkg engine.PackageView
	require.NoError(t, json.Unmarshal(data, &pkg))
	require.NotNil(t, pkg.Transition)
	assert.Equal(t, 6, pkg.Transition.To)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/packages/b1/current-step", map[string]any{"step": 2}, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	env = decodeError(t, data)
	assert.Equal(t, "invalid_transition", env.Error.Code)
	assert.Equal(t, "bidding", env.Error.Details["phase"])
	assert.EqualValues(t, 6, env.Error.Details["from"])

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/timeline?phase=handover", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestPackagesAndContracts(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/packages", map[string]any{
		"id": "b1", "name": "Civil", "owner": "Ann", "budget": 1000,
		"plan_start": "2024-01-01", "plan_end": "2024-05-01",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/packages/b1/steps/3/schedule", map[string]any{"date": "2024-03-04", "time": "09:30"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/packages/b1/steps/10/complete", map[string]any{}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/packages/b1/award", map[string]any{"winner": "ACME", "final_price": 900}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var pkg engine.PackageView
	require.NoError(t, json.Unmarshal(data, &pkg))
	require.NotNil(t, pkg.Progress.Saving)
	assert.InDelta(t, 100, *pkg.Progress.Saving, 1e-9)
	assert.Equal(t, progress.StateScheduled, pkg.Marks[2].State)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/packages/summary", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var sum progress.BiddingSummary
	require.NoError(t, json.Unmarshal(data, &sum))
	assert.Equal(t, 1, sum.Done)
	assert.InDelta(t, 2.7, sum.EarnedFee, 1e-9)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/contracts", map[string]any{"id": "c1", "name": "Civil works", "package_id": "b1"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var c engine.ContractView
	require.NoError(t, json.Unmarshal(data, &c))
	require.NotNil(t, c.Contract.Value)
	assert.InDelta(t, 900, *c.Contract.Value, 1e-9)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/contracts/c1/current-step", map[string]any{"step": 5}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &c))
	assert.Equal(t, progress.StatusCompleted, c.Progress.Status)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/contracts?package_id=b1", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var contracts []engine.ContractView
	require.NoError(t, json.Unmarshal(data, &contracts))
	assert.Len(t, contracts, 1)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), `sitepulse_step_transitions_total{phase="contract",result="accepted"} 1`)
}

func TestBearerAuth(t *testing.T) {
	secret := "test-secret"
	srv := newTestServer(t, AuthConfig{JWTSecret: secret})
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, data).Error.Code)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	reader, err := IssueToken(secret, "viewer")
	require.NoError(t, err)
	editor, err := IssueToken(secret, "ann", "editor")
	require.NoError(t, err)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/whoami", nil, map[string]string{"Authorization": "Bearer " + reader})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.True(t, strings.Contains(string(data), `"subject":"viewer"`))

	body := map[string]any{"name": "Barn"}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", body, map[string]string{"Authorization": "Bearer " + reader})
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", body, map[string]string{"Authorization": "Bearer " + editor})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
}

func TestWebhookDelivery(t *testing.T) {
	type delivery struct {
		header http.Header
		event  webhookEvent
	}
	got := make(chan delivery, 8)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		got <- delivery{header: r.Header.Clone(), event: evt}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	srv := newTestServer(t, AuthConfig{}, func(c *config.Config) {
		c.Webhooks = []config.WebhookConfig{{
			URL:    receiver.URL,
			Secret: "s3cret",
			Events: []string{EventStepCompleted},
		}}
	})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/packages", map[string]any{
		"id":         "b1",
		"name":       "Steel",
		"plan_start": "2024-01-01",
		"plan_end":   "2024-12-31",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/packages/b1/steps/1/complete", map[string]any{"date": "2024-02-01"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	select {
	case d := <-got:
		assert.Equal(t, EventStepCompleted, d.header.Get("X-SitePulse-Event"))
		assert.Equal(t, "s3cret", d.header.Get("X-SitePulse-Secret"))
		assert.Equal(t, d.event.ID, d.header.Get("X-SitePulse-Delivery"))
		assert.Equal(t, "sitepulse", d.event.WorkspaceID)
		assert.Equal(t, progress.PhaseBidding, d.event.Phase)
		assert.Equal(t, "b1", d.event.EntityID)
		assert.Equal(t, 10, d.event.Record.ActualPercent)
		require.NotNil(t, d.event.Transition)
		assert.Equal(t, 1, d.event.Transition.To)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
	select {
	case d := <-got:
		t.Fatalf("unexpected delivery %s", d.event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDeleteProjectAndContract(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{"id": "p1", "name": "Mill", "budget": 1000}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/p1/lifecycle", map[string]any{"status": "Cancelled", "cancel_reason": "site sold"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var v engine.ProjectView
	require.NoError(t, json.Unmarshal(data, &v))
	assert.Equal(t, "site sold", v.Project.CancelReason)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/contracts", map[string]any{"id": "c1", "name": "Civil"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/contracts/c1", nil, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/contracts/c1", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/projects/p1", nil, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/projects/p1", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, string(data), "not_found")
}

func TestWebhookDispatcherStopsWithContext(t *testing.T) {
	cfg := config.Default("sitepulse")
	cfg.Webhooks = []config.WebhookConfig{{URL: "http://127.0.0.1:1/hook"}}
	ctx, cancel := context.WithCancel(context.Background())
	d := startWebhookDispatcher(ctx, engine.Engine{Config: cfg}, log.New(io.Discard, "", 0))
	require.NotNil(t, d)

	cancel()
	select {
	case <-d.done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher still running after cancel")
	}
	d.notify(context.Background(), EventStepMoved, progress.PhaseBidding, "b1", progress.Record{}, nil)
	assert.Zero(t, len(d.queue))

	assert.Nil(t, startWebhookDispatcher(context.Background(), engine.Engine{Config: config.Default("sitepulse")}, nil))
}

func TestEventFilter(t *testing.T) {
	assert.True(t, newEventFilter(nil).match(EventStepMoved))
	assert.True(t, newEventFilter([]string{" "}).match(EventStepMoved))
	f := newEventFilter([]string{EventStepMoved, EventAwardRecorded})
	assert.True(t, f.match(EventAwardRecorded))
	assert.False(t, f.match(EventRecordCreated))
	var d *webhookDispatcher
	d.notify(context.Background(), EventStepMoved, progress.PhaseBidding, "b1", progress.Record{}, nil)
}
