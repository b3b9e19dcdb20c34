package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cathouse/taskmanager/internal/action"
	"github.com/cathouse/taskmanager/internal/service"
	"github.com/cathouse/taskmanager/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const testAdminKey = "test-admin-key-0123456789"

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server *Server
	store  *store.Store
	keys   *service.KeyService
	now    time.Time
}

// newTestEnv creates a fresh test environment with an in-memory store and a
// fully wired Server whose clock is controlled by the test.
func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	st, err := store.NewMemoryStore()
	if err != nil {
		t.Fatalf("store.NewMemoryStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	env := &testEnv{store: st, now: time.Now().UTC()}
	clock := func() time.Time { return env.now }

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.keys = service.NewKeyService(st, logger, 0, clock)

	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	env.server = New(cfg, Deps{
		Store:    st,
		Keys:     env.keys,
		Admin:    service.NewAdminAuth(testAdminKey),
		Registry: action.NewRegistry(clock),
		Version:  "test",
	}, logger)
	return env
}

// do sends a request with the given headers and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) admin(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{"X-Admin-Key": testAdminKey})
}

func (e *testEnv) execute(t *testing.T, secret string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return e.do(t, "POST", "/execute", string(raw), map[string]string{"X-Service-Key": secret})
}

// issue creates a key through the admin API and returns its secret.
func (e *testEnv) issue(t *testing.T, name, env string) string {
	t.Helper()
	rr := e.admin(t, "POST", "/admin/service-keys", `{"key_name":"`+name+`","environment":"`+env+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("issue %s: got %d: %s", name, rr.Code, rr.Body.String())
	}
	var out struct {
		ServiceKey string `json:"service_key"`
	}
	decode(t, rr, &out)
	return out.ServiceKey
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   *string                `json:"error"`
}

type detail struct {
	Detail string `json:"detail"`
}

// ---------------------------------------------------------------------------
// Probes and docs
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	var out map[string]string
	decode(t, rr, &out)
	if out["status"] != "healthy" || out["version"] != "test" {
		t.Errorf("unexpected body %v", out)
	}
	if _, err := time.Parse(time.RFC3339Nano, out["timestamp"]); err != nil {
		t.Errorf("timestamp not RFC3339: %v", err)
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/readyz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOpenAPIDocument(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/openapi.json", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	var doc map[string]interface{}
	decode(t, rr, &doc)
	paths, _ := doc["paths"].(map[string]interface{})
	for _, p := range []string{"/execute", "/admin/service-keys", "/admin/rotate-key"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("document missing path %s", p)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "GET", "/health", "", nil)
	rr := env.do(t, "GET", "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "taskmanager_http_requests_total") {
		t.Error("metrics output missing http request counter")
	}
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MetricsEnabled = false })
	rr := env.do(t, "GET", "/metrics", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Admin endpoints
// ---------------------------------------------------------------------------

func TestAdminRequiresKey(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/admin/service-keys", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing key: got %d", rr.Code)
	}
	rr = env.do(t, "GET", "/admin/service-keys", "", map[string]string{"X-Admin-Key": "nope"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: got %d", rr.Code)
	}
}

func TestIssueKey(t *testing.T) {
	env := newTestEnv(t)

	rr := env.admin(t, "POST", "/admin/service-keys", `{"key_name":"mobile-app","environment":"prod"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	var out map[string]interface{}
	decode(t, rr, &out)
	if out["key_name"] != "mobile-app" {
		t.Errorf("key_name = %v", out["key_name"])
	}
	secret, _ := out["service_key"].(string)
	if !strings.HasPrefix(secret, "sk_prod_") || len(secret) != len("sk_prod_")+64 {
		t.Errorf("unexpected secret %q", secret)
	}

	// Duplicate name.
	rr = env.admin(t, "POST", "/admin/service-keys", `{"key_name":"mobile-app","environment":"dev"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("duplicate: got %d", rr.Code)
	}
	var d detail
	decode(t, rr, &d)
	if d.Detail != "service key with name 'mobile-app' already exists" {
		t.Errorf("duplicate detail = %q", d.Detail)
	}
}

func TestIssueKeyValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		body    string
		wantLoc string
	}{
		{"bad environment", `{"key_name":"mobile-app","environment":"staging"}`, "environment"},
		{"short name", `{"key_name":"ab","environment":"prod"}`, "key_name"},
		{"uppercase name", `{"key_name":"Mobile","environment":"prod"}`, "key_name"},
		{"missing name", `{"environment":"prod"}`, "key_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.admin(t, "POST", "/admin/service-keys", tt.body)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
			}
			var out struct {
				Detail []struct {
					Loc []string `json:"loc"`
				} `json:"detail"`
			}
			decode(t, rr, &out)
			if len(out.Detail) == 0 {
				t.Fatal("no field errors")
			}
			loc := out.Detail[0].Loc
			if len(loc) != 2 || loc[0] != "body" || loc[1] != tt.wantLoc {
				t.Errorf("loc = %v", loc)
			}
		})
	}
}

func TestRotateKeyOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	oldSecret := env.issue(t, "web-app", "dev")

	rr := env.admin(t, "POST", "/admin/rotate-key", `{"key_name":"web-app"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		NewKey          string    `json:"new_key"`
		OldKeyExpiresAt time.Time `json:"old_key_expires_at"`
	}
	decode(t, rr, &out)
	if !strings.HasPrefix(out.NewKey, "sk_dev_") || out.NewKey == oldSecret {
		t.Errorf("unexpected new key %q", out.NewKey)
	}
	want := env.now.Add(service.DefaultGracePeriod)
	if d := out.OldKeyExpiresAt.Sub(want); d > time.Second || d < -time.Second {
		t.Errorf("old_key_expires_at = %v, want about %v", out.OldKeyExpiresAt, want)
	}

	// Both secrets work inside the grace period.
	for _, secret := range []string{oldSecret, out.NewKey} {
		rr := env.execute(t, secret, map[string]interface{}{"action": "list-tasks", "user_id": "u1"})
		if rr.Code != http.StatusOK {
			t.Errorf("secret rejected during grace period: %d", rr.Code)
		}
	}

	// Only the new secret works after it.
	env.now = env.now.Add(service.DefaultGracePeriod + time.Second)
	rr = env.execute(t, oldSecret, map[string]interface{}{"action": "list-tasks", "user_id": "u1"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("old secret after grace: got %d", rr.Code)
	}
	rr = env.execute(t, out.NewKey, map[string]interface{}{"action": "list-tasks", "user_id": "u1"})
	if rr.Code != http.StatusOK {
		t.Errorf("new secret after grace: got %d", rr.Code)
	}
}

func TestRotateUnknownKey(t *testing.T) {
	env := newTestEnv(t)
	rr := env.admin(t, "POST", "/admin/rotate-key", `{"key_name":"ghost"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d", rr.Code)
	}
	var d detail
	decode(t, rr, &d)
	if d.Detail != "active service key 'ghost' not found" {
		t.Errorf("detail = %q", d.Detail)
	}
}

func TestListAndRevokeKeys(t *testing.T) {
	env := newTestEnv(t)
	secret := env.issue(t, "reporting", "prod")

	rr := env.admin(t, "GET", "/admin/service-keys", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), secret) {
		t.Fatal("list response leaks the secret")
	}
	var list struct {
		Keys []struct {
			ID        string `json:"id"`
			KeyName   string `json:"key_name"`
			KeyPrefix string `json:"key_prefix"`
		} `json:"keys"`
		Count int `json:"count"`
	}
	decode(t, rr, &list)
	if list.Count != 1 || len(list.Keys) != 1 {
		t.Fatalf("count = %d", list.Count)
	}
	if list.Keys[0].KeyPrefix != secret[:16] {
		t.Errorf("key_prefix = %q, want %q", list.Keys[0].KeyPrefix, secret[:16])
	}

	rr = env.admin(t, "DELETE", "/admin/service-keys/"+list.Keys[0].ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("revoke: got %d", rr.Code)
	}
	rr = env.execute(t, secret, map[string]interface{}{"action": "list-tasks", "user_id": "u1"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("revoked secret: got %d", rr.Code)
	}

	rr = env.admin(t, "DELETE", "/admin/service-keys/not-a-uuid", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("invalid id: got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Command endpoint
// ---------------------------------------------------------------------------

func TestExecuteAuthentication(t *testing.T) {
	env := newTestEnv(t)

	rr := env.execute(t, "", map[string]interface{}{"action": "list-tasks", "user_id": "u1"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: got %d", rr.Code)
	}
	var d detail
	decode(t, rr, &d)
	if d.Detail != "Missing service key" {
		t.Errorf("detail = %q", d.Detail)
	}

	rr = env.execute(t, "sk_prod_deadbeef", map[string]interface{}{"action": "list-tasks", "user_id": "u1"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("invalid key: got %d", rr.Code)
	}
	decode(t, rr, &d)
	if d.Detail != "Invalid or expired service key" {
		t.Errorf("detail = %q", d.Detail)
	}
}

func TestExecuteAuthBeforeBodyValidation(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "POST", "/execute", `{not json`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401 before body parsing", rr.Code)
	}
}

func TestExecuteMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	secret := env.issue(t, "web-app", "dev")

	rr := env.do(t, "POST", "/execute", `{"action":"list-tasks"}`, map[string]string{"X-Service-Key": secret})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "user_id") {
		t.Errorf("body should name user_id: %s", rr.Body.String())
	}
}

func TestExecuteUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	secret := env.issue(t, "web-app", "dev")

	rr := env.execute(t, secret, map[string]interface{}{"action": "launch-rocket", "user_id": "u1"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d", rr.Code)
	}
	var d detail
	decode(t, rr, &d)
	if d.Detail != "Unknown action: launch-rocket" {
		t.Errorf("detail = %q", d.Detail)
	}
}

func TestExecuteTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	secret := env.issue(t, "web-app", "dev")

	rr := env.execute(t, secret, map[string]interface{}{
		"action":  "create-task",
		"user_id": "user-1",
		"payload": map[string]interface{}{"title": "Write report", "priority": "high"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create: got %d: %s", rr.Code, rr.Body.String())
	}
	var created envelope
	decode(t, rr, &created)
	if !created.Success || created.Error != nil {
		t.Fatalf("create envelope = %+v", created)
	}
	id, _ := created.Data["id"].(string)
	if id == "" || created.Data["status"] != "pending" {
		t.Fatalf("created task = %v", created.Data)
	}

	rr = env.execute(t, secret, map[string]interface{}{
		"action":  "update-task",
		"user_id": "user-1",
		"payload": map[string]interface{}{"task_id": id, "status": "completed"},
	})
	var updated envelope
	decode(t, rr, &updated)
	if rr.Code != http.StatusOK || !updated.Success || updated.Data["completed_at"] == nil {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}

	// The task is addressed by id, whichever user_id the caller asserts.
	rr = env.execute(t, secret, map[string]interface{}{
		"action":  "get-task",
		"user_id": "user-2",
		"payload": map[string]interface{}{"task_id": id},
	})
	var fetched envelope
	decode(t, rr, &fetched)
	if rr.Code != http.StatusOK || !fetched.Success || fetched.Data["user_id"] != "user-1" {
		t.Errorf("get as user-2: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.execute(t, secret, map[string]interface{}{"action": "get-stats", "user_id": "user-1"})
	var stats envelope
	decode(t, rr, &stats)
	if stats.Data["total_tasks"] != float64(1) || stats.Data["completion_rate"] != float64(100) {
		t.Errorf("stats = %v", stats.Data)
	}

	rr = env.execute(t, secret, map[string]interface{}{
		"action":  "delete-task",
		"user_id": "user-1",
		"payload": map[string]interface{}{"task_id": id},
	})
	var deleted envelope
	decode(t, rr, &deleted)
	if rr.Code != http.StatusOK || deleted.Data["deleted_id"] != id {
		t.Errorf("delete: %d %s", rr.Code, rr.Body.String())
	}
}

func TestExecuteBadPayload(t *testing.T) {
	env := newTestEnv(t)
	secret := env.issue(t, "web-app", "dev")

	rr := env.execute(t, secret, map[string]interface{}{
		"action":  "get-task",
		"user_id": "user-1",
		"payload": map[string]interface{}{"task_id": "123"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rr.Code)
	}
	var d detail
	decode(t, rr, &d)
	if d.Detail != "Invalid UUID format for task_id" {
		t.Errorf("detail = %q", d.Detail)
	}
}

func TestExecuteBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MaxBodySize = 64 })
	secret := env.issue(t, "web-app", "dev")

	big := `{"action":"create-task","user_id":"u1","payload":{"title":"` + strings.Repeat("x", 200) + `"}}`
	rr := env.do(t, "POST", "/execute", big, map[string]string{"X-Service-Key": secret})
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("got %d, want 413", rr.Code)
	}
}

func TestExecuteRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.RateLimit = 1 })
	secret := env.issue(t, "web-app", "dev")

	body := map[string]interface{}{"action": "list-tasks", "user_id": "u1"}
	if rr := env.execute(t, secret, body); rr.Code != http.StatusOK {
		t.Fatalf("first call: got %d", rr.Code)
	}
	if rr := env.execute(t, secret, body); rr.Code != http.StatusTooManyRequests {
		t.Errorf("second call: got %d, want 429", rr.Code)
	}
}

func TestAdminRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.AdminRateLimit = 2 })

	wrong := map[string]string{"X-Admin-Key": "guess"}
	for i := 0; i < 2; i++ {
		if rr := env.do(t, "GET", "/admin/service-keys", "", wrong); rr.Code != http.StatusUnauthorized {
			t.Fatalf("guess %d: got %d, want 401", i+1, rr.Code)
		}
	}
	rr := env.do(t, "GET", "/admin/service-keys", "", wrong)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third guess: got %d, want 429", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Rate limit exceeded") {
		t.Errorf("body = %s", rr.Body.String())
	}

	// Routes outside /admin have no such budget.
	if rr := env.do(t, "GET", "/health", "", nil); rr.Code != http.StatusOK {
		t.Errorf("health: got %d", rr.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/health", "", map[string]string{"X-Request-ID": "trace-1"})
	if got := rr.Header().Get("X-Request-ID"); got != "trace-1" {
		t.Errorf("X-Request-ID = %q", got)
	}
}
