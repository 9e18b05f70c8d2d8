package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ryanhung919/x-men-sub002/internal/config"
	"github.com/ryanhung919/x-men-sub002/internal/db"
	"github.com/ryanhung919/x-men-sub002/internal/domain"
	"github.com/ryanhung919/x-men-sub002/internal/engine"
	"github.com/ryanhung919/x-men-sub002/internal/migrate"
	"github.com/ryanhung919/x-men-sub002/internal/reminder"
)

const testSecret = "server-test-secret"

var fixedNow = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

type testServer struct {
	URL    string
	engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

type dropMailer struct{}

func (dropMailer) Send(ctx context.Context, to, subject, body string) error { return nil }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return fixedNow }

	ctx := context.Background()
	if err := e.Repo.InsertDepartment(ctx, domain.Department{ID: "eng", Name: "Engineering"}); err != nil {
		t.Fatalf("seed department: %v", err)
	}
	eng := "eng"
	aliceMail := "alice@example.com"
	for _, u := range []domain.User{
		{ID: "alice", Email: &aliceMail, FirstName: "Alice", LastName: "Tan", DepartmentID: &eng, CreatedAt: "2024-01-01T00:00:00Z"},
		{ID: "bob", FirstName: "Bob", LastName: "Ng", DepartmentID: &eng, CreatedAt: "2024-01-01T00:00:00Z"},
	} {
		if err := e.Repo.InsertUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	if _, err := e.CreateTask(ctx, engine.TaskCreateOptions{
		ID: "task-1", Title: "Ship release", CreatorID: "alice",
	}); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	handler, err := New(Config{
		Engine:  e,
		Sweeper: e.Sweeper(dropMailer{}),
		Auth:    AuthConfig{JWTSecret: testSecret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func tokenFor(t *testing.T, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authHeader(t *testing.T, subject string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tokenFor(t, subject)}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/notifications", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/notifications", nil,
		map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status %d", res.StatusCode)
	}
}

func TestAssignmentEventNotifies(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/events/assignments", map[string]any{
		"task_id":     "task-1",
		"assignee_id": "bob",
	}, authHeader(t, "alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", res.StatusCode, string(data))
	}
	var a domain.TaskAssignment
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal assignment: %v", err)
	}
	if a.AssigneeID != "bob" || a.AssignorID == nil || *a.AssignorID != "alice" {
		t.Fatalf("unexpected assignment %+v", a)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/notifications?unread=true", nil, authHeader(t, "bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var out struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if len(out.Notifications) != 1 {
		t.Fatalf("bob has %d notifications: %s", len(out.Notifications), string(data))
	}
	n := out.Notifications[0]
	if n.Type != domain.NotificationTaskAssigned {
		t.Fatalf("type = %q", n.Type)
	}
	if n.Message != `Alice Tan assigned you to task: "Ship release"` {
		t.Fatalf("message = %q", n.Message)
	}
}

func TestMarkReadEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v1/events/assignments", map[string]any{
		"task_id": "task-1", "assignee_id": "bob",
	}, authHeader(t, "alice"))
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/events/comments", map[string]any{
		"task_id": "task-1", "text": "ping",
	}, authHeader(t, "alice"))

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/notifications?unread=true", nil, authHeader(t, "bob"))
	var out struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Notifications) != 2 {
		t.Fatalf("bob has %d unread: %s", len(out.Notifications), string(data))
	}

	res, data = doJSON(t, client, http.MethodPost,
		srv.URL+"/v1/notifications/"+out.Notifications[0].ID+"/read", nil, authHeader(t, "bob"))
	if res.StatusCode >= 300 {
		t.Fatalf("mark read status %d: %s", res.StatusCode, string(data))
	}

	// another user cannot mark bob's notification
	res, _ = doJSON(t, client, http.MethodPost,
		srv.URL+"/v1/notifications/"+out.Notifications[1].ID+"/read", nil, authHeader(t, "alice"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-user mark read status %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/notifications/read-all", nil, authHeader(t, "bob"))
	if res.StatusCode >= 300 {
		t.Fatalf("read-all status %d: %s", res.StatusCode, string(data))
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/notifications?unread=true", nil, authHeader(t, "bob"))
	out.Notifications = nil
	_ = json.Unmarshal(data, &out)
	if len(out.Notifications) != 0 {
		t.Fatalf("after read-all bob still has %d unread", len(out.Notifications))
	}
}

func TestTaskUpdateEvent(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v1/events/assignments", map[string]any{
		"task_id": "task-1", "assignee_id": "bob",
	}, authHeader(t, "alice"))

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/events/tasks/task-1", map[string]any{
		"status":   "In Progress",
		"deadline": "2024-03-15T17:00:00Z",
	}, authHeader(t, "alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var updated domain.Task
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if updated.Status != domain.StatusInProgress || updated.Deadline == nil {
		t.Fatalf("unexpected task %+v", updated)
	}

	res, _ = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/events/tasks/task-1", map[string]any{
		"deadline": "not-a-date",
	}, authHeader(t, "alice"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad deadline status %d", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/events/tasks/no-such-task", map[string]any{
		"status": "In Progress",
	}, authHeader(t, "alice"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown task status %d", res.StatusCode)
	}
}

func TestVisibilityEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	check := func(actor string, want bool) {
		t.Helper()
		res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/task-1/visibility", nil, authHeader(t, actor))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("visibility status %d: %s", res.StatusCode, string(data))
		}
		var out struct {
			Visible bool `json:"visible"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if out.Visible != want {
			t.Fatalf("visible(%s) = %v, want %v", actor, out.Visible, want)
		}
	}
	check("alice", true)
	check("bob", false)

	doJSON(t, client, http.MethodPost, srv.URL+"/v1/events/assignments", map[string]any{
		"task_id": "task-1", "assignee_id": "bob",
	}, authHeader(t, "alice"))
	check("bob", true)
}

func TestSweepEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v1/events/assignments", map[string]any{
		"task_id": "task-1", "assignee_id": "alice",
	}, authHeader(t, "bob"))
	doJSON(t, client, http.MethodPatch, srv.URL+"/v1/events/tasks/task-1", map[string]any{
		"deadline": "2024-03-15T17:00:00Z",
	}, authHeader(t, "bob"))

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/sweeps", nil, authHeader(t, "alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sweep status %d: %s", res.StatusCode, string(data))
	}
	var result reminder.SweepResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal sweep result: %v", err)
	}
	if !result.Success || result.Sent != 1 {
		t.Fatalf("unexpected sweep result %+v", result)
	}
	if result.EmailsSent[0].Email != "alice@example.com" || result.EmailsSent[0].Bucket != reminder.BucketDueToday {
		t.Fatalf("emails sent = %+v", result.EmailsSent)
	}
}
