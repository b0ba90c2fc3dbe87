package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"folionotify/internal/config"
	"folionotify/internal/eventbus"
	"folionotify/internal/mailer"
	"folionotify/internal/notify"
	"folionotify/internal/stats"
	"folionotify/internal/store"
	"folionotify/pkg/logx"
)

type mapCheckpoints struct {
	mu   sync.Mutex
	vals map[string]string
}

func (c *mapCheckpoints) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[key]
	return v, ok
}

func (c *mapCheckpoints) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vals == nil {
		c.vals = map[string]string{}
	}
	c.vals[key] = value
	return nil
}

type testServer struct {
	*Server
	store notify.Store
	feed  *notify.Feed
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	bus := eventbus.New()
	st := store.NewMemory(bus, logx.Nop())
	cps := &mapCheckpoints{}
	tracker := stats.NewTracker(cps, logx.Nop(), stats.Thresholds{})
	engine := notify.NewService(st, cps, tracker, logx.Nop(), notify.Config{})
	feed := notify.NewFeed(st, logx.Nop(), 10)
	if err := feed.Start(); err != nil {
		t.Fatalf("feed start: %v", err)
	}
	t.Cleanup(feed.Stop)

	registry := NewRegistry([]config.ProjectConfig{
		{ID: "p1", Title: "Weather App", Published: true},
		{ID: "p2", Title: "Draft Thing"},
	})
	tracker.SetProjectCounts(registry.Counts())

	srv := New(config.WebConfig{
		AdminPassword: "hunter2",
		JWTSecret:     "test-secret",
	}, engine, feed, tracker, registry, mailer.New(mailer.Config{}, logx.Nop()), logx.Nop())

	return &testServer{Server: srv, store: st, feed: feed}
}

func (ts *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/auth/login", `{"password":"hunter2"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if env.Data.Token == "" {
		t.Fatal("empty token")
	}
	return env.Data.Token
}

func TestContactEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/contact",
		`{"name":"Alice","email":"a@x.com","subject":"Hi","message":"hello"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	recs, err := ts.store.QueryByField(context.Background(),
		notify.FieldEq{Field: "category", Value: "contact"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("contact records = %d, want 1", len(recs))
	}
	if recs[0].Type != notify.SeverityInfo {
		t.Fatalf("Type = %s", recs[0].Type)
	}
}

func TestContactValidation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/contact", `{"name":"Alice","message":"hello"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var env struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error == nil || env.Error.Code != "validation_error" {
		t.Fatalf("error envelope = %+v", env.Error)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/auth/login", `{"password":"wrong"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/api/admin/notifications", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/admin/notifications", "", "garbage"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", rec.Code)
	}

	token := ts.login(t)
	if rec := ts.do(t, http.MethodGet, "/api/admin/notifications", "", token); rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d", rec.Code)
	}
}

func TestNotificationsFeed(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	token := ts.login(t)

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/contact",
			`{"name":"A","email":"a@x.com","message":"m"}`, "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed contact %d: %d", i, rec.Code)
		}
	}

	rec := ts.do(t, http.MethodGet, "/api/admin/notifications", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var env struct {
		Data feedResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data.Notifications) != 2 || env.Data.Unread != 2 {
		t.Fatalf("feed = %d items, %d unread", len(env.Data.Notifications), env.Data.Unread)
	}
	if env.Data.Notifications[0].Action.Kind != "message" {
		t.Fatalf("contact action = %+v", env.Data.Notifications[0].Action)
	}

	id := env.Data.Notifications[0].ID
	if rec := ts.do(t, http.MethodPost, "/api/admin/notifications/"+id+"/read", "", token); rec.Code != http.StatusOK {
		t.Fatalf("mark read status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/api/admin/notifications/"+id, "", token); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/api/admin/notifications/"+id, "", token); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestProjectView(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/projects/p1/view", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Data struct {
			Views int `json:"views"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Views != 1 {
		t.Fatalf("views = %d, want 1", env.Data.Views)
	}

	if rec := ts.do(t, http.MethodPost, "/api/projects/missing/view", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing project status = %d, want 404", rec.Code)
	}
}

func TestProjectViewMilestone(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	// The 10th view lands exactly on the first milestone.
	for i := 0; i < 10; i++ {
		if rec := ts.do(t, http.MethodPost, "/api/projects/p1/view", "", ""); rec.Code != http.StatusOK {
			t.Fatalf("view %d: status = %d", i, rec.Code)
		}
	}

	recs, err := ts.store.QueryByField(context.Background(),
		notify.FieldEq{Field: "category", Value: "milestone"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("milestone records = %d, want 1", len(recs))
	}
	meta := recs[0].Metadata.(notify.MilestoneMeta)
	if meta.Milestone != 10 || meta.ProjectID != "p1" {
		t.Fatalf("metadata = %+v", meta)
	}
}

func TestPublicProjectsHidesUnpublished(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/projects", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var env struct {
		Data []notify.Project `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data) != 1 || env.Data[0].ID != "p1" {
		t.Fatalf("public projects = %+v", env.Data)
	}
}

func TestProjectUpdateNotifies(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	token := ts.login(t)

	rec := ts.do(t, http.MethodPatch, "/api/admin/projects/p2", `{"published":true}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	recs, err := ts.store.QueryByField(context.Background(),
		notify.FieldEq{Field: "category", Value: "project"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("status records = %d, want 1", len(recs))
	}
	meta := recs[0].Metadata.(notify.ProjectMeta)
	if meta.OldStatus != "unpublished" || meta.NewStatus != "published" {
		t.Fatalf("transition = %s -> %s", meta.OldStatus, meta.NewStatus)
	}

	// Same toggle again: no transition, no new record.
	if rec := ts.do(t, http.MethodPatch, "/api/admin/projects/p2", `{"published":true}`, token); rec.Code != http.StatusOK {
		t.Fatalf("second patch status = %d", rec.Code)
	}
	recs, _ = ts.store.QueryByField(context.Background(),
		notify.FieldEq{Field: "category", Value: "project"})
	if len(recs) != 1 {
		t.Fatalf("status records after no-op = %d, want 1", len(recs))
	}
}

func TestEventEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	token := ts.login(t)

	tests := []struct {
		name     string
		body     string
		status   int
		category string
		severity notify.Severity
	}{
		{
			"scheduled maintenance",
			`{"type":"maintenance","kind":"scheduled","detail":"db upgrade"}`,
			http.StatusCreated, "maintenance", notify.SeverityWarning,
		},
		{
			"critical security",
			`{"type":"security","kind":"brute_force","severity":"critical"}`,
			http.StatusCreated, "security", notify.SeverityError,
		},
		{
			"failed backup",
			`{"type":"backup","status":"failed","detail":"disk full"}`,
			http.StatusCreated, "backup", notify.SeverityError,
		},
		{
			"unknown type",
			`{"type":"party"}`,
			http.StatusBadRequest, "", "",
		},
		{
			"bad maintenance kind",
			`{"type":"maintenance","kind":"sometime"}`,
			http.StatusBadRequest, "", "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/admin/events", tt.body, token)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.category == "" {
				return
			}
			recs, err := ts.store.QueryByField(context.Background(),
				notify.FieldEq{Field: "category", Value: tt.category})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(recs) != 1 {
				t.Fatalf("%s records = %d, want 1", tt.category, len(recs))
			}
			if recs[0].Type != tt.severity {
				t.Fatalf("Type = %s, want %s", recs[0].Type, tt.severity)
			}
		})
	}
}
