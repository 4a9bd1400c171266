package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/tgienger/taskmanager/internal/db"
	"github.com/tgienger/taskmanager/internal/events"
)

var testOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

func newTestRouter(t *testing.T) (http.Handler, *db.DB) {
	t.Helper()
	database, err := db.Open(db.Options{DSN: filepath.Join(t.TempDir(), "stm.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("db.Open failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	svc := NewTaskService(database, events.Nop{}, zap.NewNop())
	h := NewTaskHandler(svc, zap.NewNop())
	return NewRouter(h, RouterConfig{AllowedOrigins: testOrigins}, database, zap.NewNop()), database
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeTask(t *testing.T, rec *httptest.ResponseRecorder) TaskDTO {
	t.Helper()
	var dto TaskDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode task %q: %v", rec.Body.String(), err)
	}
	return dto
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error %q: %v", rec.Body.String(), err)
	}
	return body
}

func listLen(t *testing.T, h http.Handler) int {
	t.Helper()
	rec := do(t, h, http.MethodGet, "/api/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var tasks []TaskDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return len(tasks)
}

func TestScenario_CreateToggleDelete(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/tasks", `{"title":"Buy milk"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body)
	}
	if got := decodeTask(t, rec); got != (TaskDTO{ID: 1, Title: "Buy milk", IsDone: false, UserID: 1}) {
		t.Fatalf("create body = %#v", got)
	}

	rec = do(t, h, http.MethodPut, "/api/tasks/1", `{"title":"Buy milk","isDone":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d body=%s", rec.Code, rec.Body)
	}
	if got := decodeTask(t, rec); got != (TaskDTO{ID: 1, Title: "Buy milk", IsDone: true, UserID: 1}) {
		t.Fatalf("update body = %#v", got)
	}

	rec = do(t, h, http.MethodDelete, "/api/tasks/1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("delete body should be empty, got %q", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/tasks/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Error != "Task with id 1 not found" || got.Message != "" {
		t.Fatalf("not found body = %#v", got)
	}
}

func TestCreate_TrimsTitleAndRoundTrips(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, title := range []string{"plain", "  padded  ", "\ttabbed\n", "ünïcödé ✓"} {
		rec := do(t, h, http.MethodPost, "/api/tasks", `{"title":`+mustJSON(t, title)+`}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %q status = %d", title, rec.Code)
		}
		created := decodeTask(t, rec)

		rec = do(t, h, http.MethodGet, "/api/tasks/"+itoa(created.ID), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("get status = %d", rec.Code)
		}
		got := decodeTask(t, rec)
		if got != created {
			t.Fatalf("round trip mismatch: %#v vs %#v", got, created)
		}
		if got.Title != strings.TrimSpace(title) || got.IsDone {
			t.Fatalf("unexpected task for %q: %#v", title, got)
		}
	}
}

func TestCreate_RejectsBlankTitle(t *testing.T) {
	h, _ := newTestRouter(t)
	before := listLen(t, h)

	for _, body := range []string{`{"title":""}`, `{"title":"   "}`, `{}`, ``, `{"userId":1}`} {
		rec := do(t, h, http.MethodPost, "/api/tasks", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d", body, rec.Code)
		}
		if got := decodeError(t, rec); got.Error != "Title is required" {
			t.Fatalf("body %q: error = %#v", body, got)
		}
	}

	if after := listLen(t, h); after != before {
		t.Fatalf("list length changed from %d to %d", before, after)
	}
}

func TestCreate_InvalidJSON(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/tasks", `{"title":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Error != "Invalid request body" {
		t.Fatalf("error = %#v", got)
	}
}

func TestCreate_IgnoresEntityFields(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/tasks", `{"id":99,"title":"x","isDone":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeTask(t, rec)
	if got.ID != 1 || got.IsDone {
		t.Fatalf("store must assign id and isDone=false, got %#v", got)
	}
}

func TestCreate_WithExplicitUser(t *testing.T) {
	h, database := newTestRouter(t)

	if _, err := database.EnsureDefaultUser(context.Background()); err != nil {
		t.Fatalf("EnsureDefaultUser failed: %v", err)
	}
	other, err := database.CreateUser(context.Background(), "other@example.com", "x")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	rec := do(t, h, http.MethodPost, "/api/tasks", `{"title":"theirs","userId":`+itoa(other.ID)+`}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if got := decodeTask(t, rec); got.UserID != other.ID {
		t.Fatalf("userId = %d, want %d", got.UserID, other.ID)
	}
}

func TestCreate_UnknownUserIsStoreError(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/tasks", `{"title":"orphan","userId":999}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeError(t, rec)
	if got.Error != "An error occurred while creating the task" || got.Message == "" {
		t.Fatalf("error body = %#v", got)
	}
	if n := listLen(t, h); n != 0 {
		t.Fatalf("no task should exist, got %d", n)
	}
}

func TestCreate_UserIDZeroAndNegative(t *testing.T) {
	h, database := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/tasks", `{"title":"mine","userId":0}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	owner, err := database.FirstUser(context.Background())
	if err != nil {
		t.Fatalf("FirstUser failed: %v", err)
	}
	if got := decodeTask(t, rec); got.UserID != owner.ID {
		t.Fatalf("userId = %d, want default %d", got.UserID, owner.ID)
	}

	rec = do(t, h, http.MethodPost, "/api/tasks", `{"title":"nobody's","userId":-3}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if got := decodeError(t, rec); got.Error != "An error occurred while creating the task" {
		t.Fatalf("error = %#v", got)
	}
	if n := listLen(t, h); n != 1 {
		t.Fatalf("expected 1 task, got %d", n)
	}
}

func TestUpdate_Validation(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/api/tasks", `{"title":"keep me"}`)

	rec := do(t, h, http.MethodPut, "/api/tasks/1", `{"title":"  ","isDone":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/tasks/1", "")
	if got := decodeTask(t, rec); got.Title != "keep me" || got.IsDone {
		t.Fatalf("task changed by rejected update: %#v", got)
	}
}

func TestUpdate_NotFoundLeavesStoreUnchanged(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/api/tasks", `{"title":"a"}`)

	rec := do(t, h, http.MethodPut, "/api/tasks/42", `{"title":"b","isDone":true}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Error != "Task with id 42 not found" {
		t.Fatalf("error = %#v", got)
	}

	rec = do(t, h, http.MethodGet, "/api/tasks", "")
	var tasks []TaskDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "a" || tasks[0].IsDone {
		t.Fatalf("store changed: %#v", tasks)
	}
}

func TestUpdate_TrimsTitleAndKeepsOwner(t *testing.T) {
	h, _ := newTestRouter(t)
	created := decodeTask(t, do(t, h, http.MethodPost, "/api/tasks", `{"title":"a"}`))

	rec := do(t, h, http.MethodPut, "/api/tasks/1", `{"title":"  b  ","isDone":false,"userId":77}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeTask(t, rec)
	if got.Title != "b" || got.UserID != created.UserID {
		t.Fatalf("unexpected update result: %#v", got)
	}
}

func TestToggleTwiceRestoresState(t *testing.T) {
	h, _ := newTestRouter(t)
	original := decodeTask(t, do(t, h, http.MethodPost, "/api/tasks", `{"title":"Walk dog"}`))

	current := original
	for i := 0; i < 2; i++ {
		body := `{"title":` + mustJSON(t, current.Title) + `,"isDone":` + boolStr(!current.IsDone) + `}`
		rec := do(t, h, http.MethodPut, "/api/tasks/"+itoa(current.ID), body)
		if rec.Code != http.StatusOK {
			t.Fatalf("toggle %d status = %d", i, rec.Code)
		}
		current = decodeTask(t, rec)
	}

	if current != original {
		t.Fatalf("after two toggles got %#v, want %#v", current, original)
	}
}

func TestDelete_TwiceIsNotFound(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/api/tasks", `{"title":"gone soon"}`)

	if rec := do(t, h, http.MethodDelete, "/api/tasks/1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("first delete status = %d", rec.Code)
	}
	rec := do(t, h, http.MethodDelete, "/api/tasks/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Error != "Task with id 1 not found" {
		t.Fatalf("error = %#v", got)
	}
	if n := listLen(t, h); n != 0 {
		t.Fatalf("expected empty list, got %d", n)
	}
}

func TestInvalidPathID(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, path := range []string{"/api/tasks/abc", "/api/tasks/1.5", "/api/tasks/99999999999999999999"} {
		rec := do(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		if got := decodeError(t, rec); got.Error != "Invalid task id" {
			t.Fatalf("%s: error = %#v", path, got)
		}
	}
}

func TestNonPositiveIDsAreNotFound(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/api/tasks", `{"title":"untouched"}`)

	cases := []struct {
		method, path, body, want string
	}{
		{http.MethodGet, "/api/tasks/0", "", "Task with id 0 not found"},
		{http.MethodGet, "/api/tasks/-1", "", "Task with id -1 not found"},
		{http.MethodPut, "/api/tasks/0", `{"title":"x","isDone":true}`, "Task with id 0 not found"},
		{http.MethodPut, "/api/tasks/-1", `{"title":"x","isDone":true}`, "Task with id -1 not found"},
		{http.MethodDelete, "/api/tasks/0", "", "Task with id 0 not found"},
		{http.MethodDelete, "/api/tasks/-1", "", "Task with id -1 not found"},
	}
	for _, tc := range cases {
		rec := do(t, h, tc.method, tc.path, tc.body)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s: status = %d", tc.method, tc.path, rec.Code)
		}
		if got := decodeError(t, rec); got.Error != tc.want {
			t.Fatalf("%s %s: error = %#v", tc.method, tc.path, got)
		}
	}

	if n := listLen(t, h); n != 1 {
		t.Fatalf("store changed, %d tasks", n)
	}
}

func TestCreate_RejectsTrailingData(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, body := range []string{`{"title":"a"} trailing`, `{"title":"a"}{"title":"b"}`} {
		rec := do(t, h, http.MethodPost, "/api/tasks", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d", body, rec.Code)
		}
		if got := decodeError(t, rec); got.Error != "Invalid request body" {
			t.Fatalf("body %q: error = %#v", body, got)
		}
	}

	rec := do(t, h, http.MethodPut, "/api/tasks/1", `{"title":"a","isDone":true} 1`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("update status = %d", rec.Code)
	}
	if n := listLen(t, h); n != 0 {
		t.Fatalf("expected no tasks, got %d", n)
	}

	// Trailing whitespace is still a single value.
	if rec := do(t, h, http.MethodPost, "/api/tasks", "{\"title\":\"a\"}\n  "); rec.Code != http.StatusCreated {
		t.Fatalf("whitespace body status = %d", rec.Code)
	}
}

func TestUnknownRouteAndMethodUseErrorShape(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/nothing-here", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Error != "Resource not found" {
		t.Fatalf("error = %#v", got)
	}

	rec = do(t, h, http.MethodPatch, "/api/tasks/1", `{"title":"x"}`)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Error != "Method not allowed" {
		t.Fatalf("error = %#v", got)
	}
}

func TestList_EmptyIsJSONArray(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("body = %q, want []", got)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}
}

func TestCORS_AllowsDevOriginWithCredentials(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks/1", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Custom")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("allow credentials = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin for foreign origin: %q", got)
	}
}

func TestHealthReadyAndTrace(t *testing.T) {
	h, _ := newTestRouter(t)

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	do(t, h, http.MethodPost, "/api/tasks", `{"title":"counted"}`)
	ready := do(t, h, http.MethodGet, "/readyz", "")
	if ready.Code != http.StatusOK {
		t.Fatalf("readyz status = %d body=%s", ready.Code, ready.Body)
	}
	var status struct {
		Status  string `json:"status"`
		Dialect string `json:"dialect"`
		Tasks   int    `json:"tasks"`
	}
	if err := json.Unmarshal(ready.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if status.Status != "ready" || status.Dialect != "sqlite" || status.Tasks != 1 {
		t.Fatalf("readyz body = %#v", status)
	}

	rec := do(t, h, http.MethodGet, "/api/tasks", "")
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatalf("expected generated trace id")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("X-Trace-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Trace-ID"); got != "abc-123" {
		t.Fatalf("trace id = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodGet, "/api/tasks", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http_request_duration_seconds") {
		t.Fatalf("metrics output missing request histogram")
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
